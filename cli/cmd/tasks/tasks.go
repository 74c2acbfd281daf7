package tasks

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/compozy/tenantflow/cli/cmd"
	"github.com/compozy/tenantflow/cli/helpers"
	"github.com/compozy/tenantflow/engine/progress"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/spf13/cobra"
)

const (
	defaultTaskLimit = 100
	maxTaskLimit     = 1000
	dateTimeFormat   = "2006-01-02 15:04"
)

// NewTasksCommand groups the task record subcommands.
func NewTasksCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and clean up task records",
	}
	command.AddCommand(newListCommand(), newDeleteCommand())
	return command
}

func newListCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "list",
		Short: "List task records",
		Long:  "List task records in trigger order, oldest first. --live resolves running tasks against the execution backend.",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			live, err := cobraCmd.Flags().GetBool("live")
			if err != nil {
				return err
			}
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{
				RequireStore:   true,
				RequireBackend: live,
			}, handleList, args)
		},
	}
	addFilterFlags(command)
	command.Flags().Uint64("limit", defaultTaskLimit, fmt.Sprintf("Maximum number of tasks (max %d)", maxTaskLimit))
	command.Flags().Bool("live", false, "Resolve running task progress from the execution backend")
	command.Flags().Bool("json", false, "Output tasks as JSON")
	return command
}

func newDeleteCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "delete",
		Short: "Delete task records",
		Long: "Delete task records of one tenant, or of every eligible tenant when --tenant is omitted. " +
			"Use --status to keep active tasks, e.g. --status completed.",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{RequireStore: true}, handleDelete, args)
		},
	}
	addFilterFlags(command)
	return command
}

func addFilterFlags(command *cobra.Command) {
	command.Flags().String("tenant", "", "Tenant to filter by")
	command.Flags().String("status", "", "Status selector: all, active or a status name")
	command.Flags().String("type", "", "Task type to filter by")
}

func filterFromFlags(cobraCmd *cobra.Command) (*task.Filter, error) {
	tenant, _ := cobraCmd.Flags().GetString("tenant")
	status, _ := cobraCmd.Flags().GetString("status")
	typ, _ := cobraCmd.Flags().GetString("type")
	statuses, err := task.ParseSelector(status)
	if err != nil {
		return nil, helpers.NewCliError("INVALID_FLAG", err.Error()).WithContext("flag", "status")
	}
	filter := &task.Filter{Tenant: tenant, Statuses: statuses, OrderBy: task.OrderByTriggered}
	if typ != "" {
		t, err := task.ParseType(strings.ToUpper(typ))
		if err != nil {
			return nil, helpers.NewCliError("INVALID_FLAG", err.Error()).WithContext("flag", "type")
		}
		filter.Types = []task.Type{t}
	}
	return filter, nil
}

func handleList(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	filter, err := filterFromFlags(cobraCmd)
	if err != nil {
		return err
	}
	limit, err := cobraCmd.Flags().GetUint64("limit")
	if err != nil {
		return err
	}
	filter.Limit = min(max(limit, 1), maxTaskLimit)
	var source progress.Source
	if backend := executor.Backend(); backend != nil {
		source = backend
	}
	views, err := progress.NewService(executor.TaskRepo(), source).Tasks(ctx, filter)
	if err != nil {
		return err
	}
	if executor.Mode() == helpers.ModeJSON {
		return helpers.WriteJSON(os.Stdout, views)
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.Tenant,
			v.Name,
			string(v.Type),
			string(v.Status),
			fmt.Sprintf("%d/%d", v.Current, v.Total),
			helpers.ProgressBar(v.Percent),
			formatTime(v.TriggeredAt),
		})
	}
	fmt.Println(helpers.Title(fmt.Sprintf("Tasks (%d)", len(views))))
	fmt.Println(helpers.Table([]string{"TENANT", "NAME", "TYPE", "STATUS", "UNITS", "PROGRESS", "TRIGGERED"}, rows))
	return nil
}

func handleDelete(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	filter, err := filterFromFlags(cobraCmd)
	if err != nil {
		return err
	}
	tenants := []string{filter.Tenant}
	if filter.Tenant == "" {
		registry, err := executor.Tenants(ctx)
		if err != nil {
			return err
		}
		tenants = registry.Eligible()
	}
	results, err := deleteTasks(ctx, executor.TaskRepo(), tenants, filter)
	if err != nil {
		return err
	}
	if executor.Mode() == helpers.ModeJSON {
		return helpers.WriteJSON(os.Stdout, results)
	}
	for _, r := range results {
		fmt.Printf("Deleted %d task(s) of tenant %s\n", r.Deleted, r.Tenant)
	}
	return nil
}

type deleteResult struct {
	Tenant  string `json:"tenant"`
	Deleted int64  `json:"deleted"`
}

// deleteTasks applies filter to each tenant in turn and stops at the first error.
func deleteTasks(ctx context.Context, repo task.Repository, tenants []string, filter *task.Filter) ([]deleteResult, error) {
	results := make([]deleteResult, 0, len(tenants))
	for _, name := range tenants {
		scoped := *filter
		scoped.Tenant = name
		deleted, err := repo.Delete(ctx, &scoped)
		if err != nil {
			return results, fmt.Errorf("failed to delete tasks of tenant %s: %w", name, err)
		}
		results = append(results, deleteResult{Tenant: name, Deleted: deleted})
	}
	return results, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(dateTimeFormat)
}
