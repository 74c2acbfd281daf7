package trigger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/compozy/tenantflow/cli/cmd"
	"github.com/compozy/tenantflow/cli/helpers"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/spf13/cobra"
)

// NewTriggerCommand starts the pipeline for one tenant, or for every eligible
// tenant when --tenant is omitted.
func NewTriggerCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger the tenant pipeline",
		Long:  "Start the pipeline for one tenant, or for every eligible tenant when --tenant is omitted",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{
				RequireStore:   true,
				RequireLocks:   true,
				RequireBackend: true,
			}, handleTrigger, args)
		},
	}
	command.Flags().String("tenant", "", "Tenant to trigger (default: all eligible tenants)")
	command.Flags().Bool("json", false, "Output results as JSON")
	return command
}

func handleTrigger(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	name, err := cobraCmd.Flags().GetString("tenant")
	if err != nil {
		return err
	}
	registry, err := executor.Tenants(ctx)
	if err != nil {
		return err
	}
	orch, err := executor.Orchestrator(nil)
	if err != nil {
		return err
	}
	var results []trigger.Result
	if name != "" {
		results = []trigger.Result{orch.Trigger(ctx, registry, name)}
	} else {
		results = orch.TriggerAll(ctx, registry)
	}
	if err := render(executor.Mode(), results); err != nil {
		return err
	}
	return failedError(results)
}

func render(mode helpers.Mode, results []trigger.Result) error {
	if mode == helpers.ModeJSON {
		return helpers.WriteJSON(os.Stdout, results)
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		detail := r.Reason
		if r.Error != "" {
			detail = r.Error
		}
		rows = append(rows, []string{r.Tenant, string(r.Outcome), detail, r.Handle.ID})
	}
	fmt.Println(helpers.Title("Trigger results"))
	fmt.Println(helpers.Table([]string{"TENANT", "OUTCOME", "DETAIL", "HANDLE"}, rows))
	return nil
}

func failedError(results []trigger.Result) error {
	var failed []string
	for _, r := range results {
		if r.Outcome == trigger.OutcomeFailed {
			failed = append(failed, r.Tenant)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return helpers.NewCliError("TRIGGER_FAILED",
		fmt.Sprintf("%d of %d trigger(s) failed", len(failed), len(results)),
		strings.Join(failed, ", "),
	).WithContext("tenants", failed)
}
