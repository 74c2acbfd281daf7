// Package cli assembles the tenantflow command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/compozy/tenantflow/cli/cmd/migrate"
	"github.com/compozy/tenantflow/cli/cmd/progress"
	"github.com/compozy/tenantflow/cli/cmd/revoke"
	"github.com/compozy/tenantflow/cli/cmd/start"
	"github.com/compozy/tenantflow/cli/cmd/tasks"
	"github.com/compozy/tenantflow/cli/cmd/tenants"
	"github.com/compozy/tenantflow/cli/cmd/trigger"
	"github.com/compozy/tenantflow/cli/cmd/worker"
	"github.com/compozy/tenantflow/cli/helpers"
	"github.com/compozy/tenantflow/pkg/config"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/compozy/tenantflow/pkg/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	defaultConfigFile = "tenantflow.yaml"
	defaultEnvFile    = ".env"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tenantflow",
		Short:         "Multi-tenant pipeline orchestration",
		Long:          "Trigger per-tenant task pipelines, track their progress and run the pipeline worker.",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := SetupGlobalConfig(cmd); err != nil {
				helpers.OutputError(err, helpers.DetectMode(cmd))
				return err
			}
			return nil
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		helpers.OutputError(helpers.NewCliError("INVALID_FLAG", err.Error()), helpers.DetectMode(cmd))
		return err
	})
	addGlobalFlags(root)
	root.AddCommand(
		start.NewStartCommand(),
		worker.NewWorkerCommand(),
		trigger.NewTriggerCommand(),
		progress.NewProgressCommand(),
		tasks.NewTasksCommand(),
		tenants.NewTenantsCommand(),
		revoke.NewRevokeCommand(),
		migrate.NewMigrateCommand(),
	)
	return root
}

func addGlobalFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the config file")
	flags.String("env-file", defaultEnvFile, "Path to an environment file loaded before configuration")
	flags.String("log-level", "info", "Log level: debug, info, warn, error or disabled")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include source locations in logs")
	flags.String("output", "", "Output format: text or json")

	flags.String("host", "", "HTTP server host")
	flags.Int("port", 0, "HTTP server port")
	flags.String("db-driver", "", "Task store driver: postgres or sqlite")
	flags.String("db-conn-string", "", "PostgreSQL connection string")
	flags.String("db-path", "", "SQLite database path")
	flags.String("temporal-host", "", "Temporal frontend address")
	flags.String("temporal-namespace", "", "Temporal namespace")
	flags.String("temporal-task-queue", "", "Temporal task queue")
	flags.String("redis-url", "", "Redis URL for tenant locks")
	flags.StringSlice("tenants", nil, "Tenant names (comma separated)")
	flags.String("tenant-dir", "", "Directory whose subdirectories are tenants")
	flags.Int("batch-size", 0, "Units processed per batch")
	flags.String("schedule", "", "Cron expression of the periodic trigger")
}

// SetupGlobalConfig loads the env file, configures logging and attaches the
// configuration manager to the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	if err := loadEnvFile(cmd); err != nil {
		return err
	}
	level, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.SetupLogger(level, logJSON, logSource)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.ContextWithLogger(ctx, log)
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	mgr := config.NewManager(config.NewService())
	if _, err := mgr.Load(ctx,
		config.NewDefaultProvider(),
		config.NewYAMLProvider(configFile),
		config.NewCLIProvider(changedFlags(cmd.Flags())),
		config.NewEnvProvider(),
	); err != nil {
		return err
	}
	cfg := mgr.Get()
	cfg.CLI.ConfigFile = configFile
	cfg.CLI.EnvFile, _ = cmd.Flags().GetString("env-file")
	log.Debug("Configuration loaded", "config_file", configFile, "mode", cfg.Mode)
	cmd.SetContext(config.ContextWithManager(ctx, mgr))
	return nil
}

// changedFlags collects explicitly set flags with their typed values.
func changedFlags(flags *pflag.FlagSet) map[string]any {
	out := make(map[string]any)
	flags.Visit(func(f *pflag.Flag) {
		var (
			value any
			err   error
		)
		switch f.Value.Type() {
		case "stringSlice":
			value, err = flags.GetStringSlice(f.Name)
		case "int":
			value, err = flags.GetInt(f.Name)
		case "bool":
			value, err = flags.GetBool(f.Name)
		default:
			value = f.Value.String()
		}
		if err == nil {
			out[f.Name] = value
		}
	})
	return out
}

// loadEnvFile loads the env file when it exists. A missing file is not an error.
func loadEnvFile(cmd *cobra.Command) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile == "" {
		return nil
	}
	absPath, err := filepath.Abs(filepath.Clean(envFile))
	if err != nil {
		return fmt.Errorf("failed to resolve env file path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("env file path '%s' is not a regular file", envFile)
	}
	if err := godotenv.Load(absPath); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", absPath, err)
	}
	return nil
}
