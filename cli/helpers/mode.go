package helpers

import (
	"os"

	"github.com/compozy/tenantflow/pkg/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// Mode selects how commands render their results.
type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// DetectMode resolves the output mode. An explicit --json flag wins, then a
// configured output format; with neither, text goes to terminals and JSON to
// pipes.
func DetectMode(cmd *cobra.Command) Mode {
	if cmd != nil {
		if jsonFlag, err := cmd.Flags().GetBool("json"); err == nil && jsonFlag {
			return ModeJSON
		}
	}
	var ctxMode Mode
	if cmd != nil {
		ctx := cmd.Context()
		if ctx != nil {
			if cfg := config.FromContext(ctx); cfg != nil {
				ctxMode = Mode(cfg.CLI.Output)
				if mgr := config.ManagerFromContext(ctx); mgr != nil &&
					mgr.Service.GetSource("cli.output") != config.SourceDefault {
					return ctxMode
				}
			}
		}
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return ModeJSON
	}
	if ctxMode == ModeJSON {
		return ModeJSON
	}
	return ModeText
}
