package progress

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/compozy/tenantflow/cli/cmd"
	"github.com/compozy/tenantflow/cli/helpers"
	"github.com/compozy/tenantflow/engine/progress"
	"github.com/spf13/cobra"
)

const minWatchInterval = time.Second

// NewProgressCommand reports aggregated progress for one tenant or for all of them.
func NewProgressCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "progress",
		Short: "Show pipeline progress",
		Long:  "Aggregate task progress for one tenant, or for every tenant with an overall total",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{RequireStore: true}, handleProgress, args)
		},
	}
	command.Flags().String("tenant", "", "Tenant to report (default: all tenants)")
	command.Flags().Bool("json", false, "Output progress as JSON")
	command.Flags().Duration("watch", 0, "Refresh at this interval until interrupted (e.g. 5s)")
	return command
}

func handleProgress(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	name, err := cobraCmd.Flags().GetString("tenant")
	if err != nil {
		return err
	}
	watch, err := cobraCmd.Flags().GetDuration("watch")
	if err != nil {
		return err
	}
	svc := progress.NewService(executor.TaskRepo(), nil)
	report := func() error { return reportOnce(ctx, executor, svc, name) }
	if watch <= 0 {
		return report()
	}
	watch = max(watch, minWatchInterval)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ticker := time.NewTicker(watch)
	defer ticker.Stop()
	for {
		if err := report(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func reportOnce(ctx context.Context, executor *cmd.CommandExecutor, svc *progress.Service, name string) error {
	registry, err := executor.Tenants(ctx)
	if err != nil {
		return err
	}
	mode := executor.Mode()
	if name != "" {
		if err := registry.Validate(name); err != nil {
			return helpers.NewCliError("UNKNOWN_TENANT", err.Error()).WithContext("tenant", name)
		}
		p, err := svc.Tenant(ctx, name)
		if err != nil {
			return err
		}
		if mode == helpers.ModeJSON {
			return helpers.WriteJSON(os.Stdout, progress.TenantResult{Tenant: name, Progress: p})
		}
		fmt.Println(helpers.Title("Progress: " + name))
		fmt.Println(helpers.Table(headers, [][]string{row(name, p)}))
		return nil
	}
	overview := svc.All(ctx, registry.All())
	if mode == helpers.ModeJSON {
		return helpers.WriteJSON(os.Stdout, overview)
	}
	rows := make([][]string, 0, len(overview.Tenants)+1)
	for _, r := range overview.Tenants {
		if r.Error != "" {
			rows = append(rows, []string{r.Tenant, "error", "-", "-", r.Error})
			continue
		}
		rows = append(rows, row(r.Tenant, r.Progress))
	}
	rows = append(rows, row("TOTAL", overview.Overall))
	fmt.Println(helpers.Title("Progress"))
	fmt.Println(helpers.Table(headers, rows))
	return nil
}

var headers = []string{"TENANT", "STATE", "UNITS", "TASKS", "PROGRESS"}

func row(name string, p progress.Progress) []string {
	tasks := 0
	for _, n := range p.Histogram {
		tasks += n
	}
	return []string{
		name,
		state(p),
		fmt.Sprintf("%d/%d", p.Current, p.Total),
		fmt.Sprintf("%d", tasks),
		helpers.ProgressBar(p.Percent),
	}
}

func state(p progress.Progress) string {
	switch {
	case p.IsRunning:
		return "running"
	case p.IsPending:
		return "pending"
	case p.IsComplete:
		return "complete"
	default:
		return "idle"
	}
}
