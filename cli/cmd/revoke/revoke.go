package revoke

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/compozy/tenantflow/cli/cmd"
	"github.com/compozy/tenantflow/cli/helpers"
	"github.com/compozy/tenantflow/engine/worker"
	"github.com/spf13/cobra"
)

// NewRevokeCommand cancels the running pipeline of a tenant.
func NewRevokeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "revoke",
		Short: "Cancel the running pipeline of a tenant",
		Long:  "Cancel the running pipeline of a tenant. Unfinished tasks end up REVOKED.",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{RequireBackend: true}, handleRevoke, args)
		},
	}
	command.Flags().String("tenant", "", "Tenant whose pipeline to cancel")
	command.Flags().Bool("json", false, "Output the result as JSON")
	return command
}

func handleRevoke(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	name, err := cmd.RequireTenantFlag(cobraCmd)
	if err != nil {
		return err
	}
	registry, err := executor.Tenants(ctx)
	if err != nil {
		return err
	}
	if err := registry.Validate(name); err != nil {
		return helpers.NewCliError("UNKNOWN_TENANT", err.Error()).WithContext("tenant", name)
	}
	if err := executor.Backend().Cancel(ctx, name); err != nil {
		if errors.Is(err, worker.ErrNoPipeline) {
			return helpers.NewCliError("NO_PIPELINE", "no running pipeline", name).WithContext("tenant", name)
		}
		return err
	}
	if executor.Mode() == helpers.ModeJSON {
		return helpers.WriteJSON(os.Stdout, map[string]any{"tenant": name, "revoked": true})
	}
	fmt.Printf("Cancellation requested for tenant %s\n", name)
	return nil
}
