package start

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/compozy/tenantflow/cli/cmd"
	"github.com/compozy/tenantflow/engine/infra/monitoring"
	"github.com/compozy/tenantflow/engine/infra/server"
	"github.com/compozy/tenantflow/engine/infra/server/appstate"
	"github.com/compozy/tenantflow/engine/progress"
	"github.com/compozy/tenantflow/pkg/config"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
)

const productionEnvironment = "production"

// NewStartCommand creates the start command: HTTP API, Temporal worker and
// trigger schedule in one process.
func NewStartCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "start",
		Aliases: []string{"server"},
		Short:   "Start the tenantflow server",
		Long:    "Start the HTTP API together with the pipeline worker and the trigger schedule",
		RunE:    executeStartCommand,
	}
	command.Flags().String("mode", "", "Deployment mode: standalone or distributed")
	return command
}

func executeStartCommand(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return fmt.Errorf("configuration missing from context; attach a manager with config.ContextWithManager")
	}
	mon := monitoring.NewMonitoringServiceWithFallback(ctx, monitoring.FromAppConfig(&cfg.Monitoring))
	mon.SetAsGlobal()
	defer func() {
		if err := mon.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.FromContext(ctx).Warn("Failed to shut down monitoring", "error", err)
		}
	}()
	return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{
		RequireStore:   true,
		RequireLocks:   true,
		RequireBackend: true,
	}, func(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
		return runServer(ctx, executor, mon)
	}, args)
}

func runServer(ctx context.Context, executor *cmd.CommandExecutor, mon *monitoring.Service) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := executor.Config()
	log := logger.FromContext(ctx)
	if cfg.Runtime.Environment == productionEnvironment {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info("Starting tenantflow server", "mode", cfg.Mode)
	if cfg.Mode == config.ModeStandalone {
		log.Warn("Standalone mode uses an embedded lock store; run a single instance")
	}
	rt, err := cmd.StartRuntime(ctx, executor, mon)
	if err != nil {
		return err
	}
	defer rt.Worker.Stop(context.WithoutCancel(ctx))
	go func() {
		if err := rt.ReconcileSchedule(ctx, cfg.Pipeline.Schedule, cfg.Pipeline.ScheduleEnabled); err != nil {
			log.Error("Trigger schedule not reconciled", "error", err)
		}
	}()
	state, err := newState(executor, rt)
	if err != nil {
		return err
	}
	srv, err := server.NewServer(ctx, &cfg.Server, state, mon)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run(ctx)
}

func newState(executor *cmd.CommandExecutor, rt *cmd.Runtime) (*appstate.State, error) {
	state, err := appstate.NewState(appstate.BaseDeps{
		Repo:         executor.TaskRepo(),
		Progress:     progress.NewService(executor.TaskRepo(), executor.Backend()),
		Tenants:      executor.Tenants,
		Orchestrator: rt.Orchestrator,
		Pipelines:    executor.Backend(),
		Events:       executor.Events(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build application state: %w", err)
	}
	state.AddHealthCheck("database", executor.Store().HealthCheck)
	state.AddHealthCheck("redis", executor.Cache().HealthCheck)
	state.AddHealthCheck("temporal", func(ctx context.Context) error {
		_, err := executor.Client().CheckHealth(ctx, &client.CheckHealthRequest{})
		return err
	})
	return state, nil
}
