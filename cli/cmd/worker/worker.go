package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/compozy/tenantflow/cli/cmd"
	"github.com/compozy/tenantflow/engine/infra/monitoring"
	"github.com/compozy/tenantflow/pkg/config"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/spf13/cobra"
)

// NewWorkerCommand runs the pipeline worker and the trigger schedule without
// the HTTP API.
func NewWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the pipeline worker",
		Long:  "Poll the task queue for pipeline runs and keep the periodic trigger schedule reconciled",
		RunE:  executeWorkerCommand,
	}
}

func executeWorkerCommand(cobraCmd *cobra.Command, args []string) error {
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
		return runWorker(ctx, executor, mon)
	}, args)
}

func runWorker(ctx context.Context, executor *cmd.CommandExecutor, mon *monitoring.Service) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := executor.Config()
	rt, err := cmd.StartRuntime(ctx, executor, mon)
	if err != nil {
		return err
	}
	defer rt.Worker.Stop(context.WithoutCancel(ctx))
	if err := rt.ReconcileSchedule(ctx, cfg.Pipeline.Schedule, cfg.Pipeline.ScheduleEnabled); err != nil {
		return err
	}
	<-ctx.Done()
	logger.FromContext(ctx).Info("Shutdown signal received")
	return nil
}
