package tenants

import (
	"context"
	"fmt"
	"os"

	"github.com/compozy/tenantflow/cli/cmd"
	"github.com/compozy/tenantflow/cli/helpers"
	"github.com/spf13/cobra"
)

type tenantView struct {
	Name     string `json:"name"`
	Admin    bool   `json:"admin"`
	Eligible bool   `json:"eligible"`
}

// NewTenantsCommand groups tenant registry subcommands.
func NewTenantsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "tenants",
		Short: "Inspect the tenant registry",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{}, handleList, args)
		},
	}
	list.Flags().Bool("json", false, "Output tenants as JSON")
	command.AddCommand(list)
	return command
}

func handleList(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	registry, err := executor.Tenants(ctx)
	if err != nil {
		return err
	}
	views := make([]tenantView, 0, len(registry.All()))
	for _, name := range registry.All() {
		admin := registry.IsAdmin(name)
		views = append(views, tenantView{Name: name, Admin: admin, Eligible: !admin})
	}
	if executor.Mode() == helpers.ModeJSON {
		return helpers.WriteJSON(os.Stdout, views)
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.Name, fmt.Sprintf("%t", v.Admin), fmt.Sprintf("%t", v.Eligible)})
	}
	fmt.Println(helpers.Title(fmt.Sprintf("Tenants (%d)", len(views))))
	fmt.Println(helpers.Table([]string{"NAME", "ADMIN", "ELIGIBLE"}, rows))
	return nil
}
