package migrate

import (
	"context"
	"fmt"
	"os"

	"github.com/compozy/tenantflow/cli/cmd"
	"github.com/compozy/tenantflow/cli/helpers"
	"github.com/spf13/cobra"
)

// NewMigrateCommand applies pending schema migrations to the task store.
func NewMigrateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Apply task store migrations",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{RequireStore: true}, handleMigrate, args)
		},
	}
	command.Flags().Bool("json", false, "Output the schema version as JSON")
	return command
}

func handleMigrate(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	store := executor.Store()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	version, err := store.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	if executor.Mode() == helpers.ModeJSON {
		return helpers.WriteJSON(os.Stdout, map[string]any{"driver": store.Driver(), "version": version})
	}
	fmt.Printf("Task store (%s) at schema version %d\n", store.Driver(), version)
	return nil
}
