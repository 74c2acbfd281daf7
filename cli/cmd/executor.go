package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/tenantflow/cli/helpers"
	"github.com/compozy/tenantflow/engine/infra/cache"
	"github.com/compozy/tenantflow/engine/infra/pubsub"
	"github.com/compozy/tenantflow/engine/infra/repo"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/tenant"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/compozy/tenantflow/engine/units"
	"github.com/compozy/tenantflow/engine/worker"
	"github.com/compozy/tenantflow/engine/workflow"
	"github.com/compozy/tenantflow/pkg/config"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.temporal.io/sdk/interceptor"
)

// CommandExecutor handles common setup and execution patterns for CLI commands.
// It opens only the dependencies a command asks for and closes them in
// reverse order once the handler returns.
type CommandExecutor struct {
	mode     helpers.Mode
	cfg      *config.Config
	fs       afero.Fs
	store    *repo.Provider
	cache    *cache.Cache
	events   pubsub.Provider
	client   *worker.Client
	backend  *worker.Backend
	cleanups []func()
}

// HandlerFunc defines the signature for command handlers.
type HandlerFunc func(ctx context.Context, cmd *cobra.Command, executor *CommandExecutor, args []string) error

// ExecutorOptions selects the dependencies a command needs.
type ExecutorOptions struct {
	RequireStore   bool
	RequireLocks   bool
	RequireBackend bool
	// ClientInterceptors are passed to the Temporal client when RequireBackend is set.
	ClientInterceptors []interceptor.ClientInterceptor
}

// NewCommandExecutor creates a new command executor with all necessary setup.
func NewCommandExecutor(ctx context.Context, cmd *cobra.Command, opts ExecutorOptions) (*CommandExecutor, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, errors.New("configuration manager not found in context")
	}
	e := &CommandExecutor{mode: helpers.DetectMode(cmd), cfg: cfg, fs: afero.NewOsFs()}
	logger.FromContext(ctx).Debug("detected execution mode", "mode", e.mode)
	if err := e.setup(ctx, opts); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *CommandExecutor) setup(ctx context.Context, opts ExecutorOptions) error {
	if opts.RequireStore {
		store, err := repo.NewProvider(ctx, &e.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open task store: %w", err)
		}
		e.store = store
		e.cleanups = append(e.cleanups, func() { _ = store.Close(context.WithoutCancel(ctx)) })
	}
	if opts.RequireLocks {
		c, cleanup, err := cache.SetupCache(ctx)
		if err != nil {
			return fmt.Errorf("failed to set up lock store: %w", err)
		}
		e.cache = c
		e.cleanups = append(e.cleanups, cleanup)
		events, err := pubsub.NewRedisProvider(c.Client)
		if err != nil {
			return err
		}
		e.events = events
	}
	if opts.RequireBackend {
		client, err := worker.NewClient(ctx, worker.TemporalConfigFrom(&e.cfg.Temporal), opts.ClientInterceptors...)
		if err != nil {
			return err
		}
		e.client = client
		e.backend = worker.NewBackend(client, client.Config())
		e.cleanups = append(e.cleanups, client.Close)
	}
	return nil
}

// Close releases every dependency opened by the executor.
func (e *CommandExecutor) Close() {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
	e.cleanups = nil
}

func (e *CommandExecutor) Mode() helpers.Mode { return e.mode }

func (e *CommandExecutor) Config() *config.Config { return e.cfg }

func (e *CommandExecutor) Store() *repo.Provider { return e.store }

func (e *CommandExecutor) TaskRepo() task.Repository {
	if e.store == nil {
		return nil
	}
	return e.store.TaskRepo()
}

func (e *CommandExecutor) Cache() *cache.Cache { return e.cache }

// Events publishes and streams trigger events over the lock store's Redis.
// It is nil unless RequireLocks was set.
func (e *CommandExecutor) Events() pubsub.Provider { return e.events }

func (e *CommandExecutor) Client() *worker.Client { return e.client }

func (e *CommandExecutor) Backend() *worker.Backend { return e.backend }

// Tenants loads the registry from configured names and the tenant directory.
func (e *CommandExecutor) Tenants(_ context.Context) (*tenant.Registry, error) {
	p := e.cfg.Pipeline
	return tenant.Load(e.fs, p.AdminTenant, p.Tenants, p.TenantDir)
}

// Units binds every task type to the batching counter units.
func (e *CommandExecutor) Units() *units.Registry {
	return units.Default(int64(e.cfg.Pipeline.BatchSize))
}

// Orchestrator wires the trigger entry point onto the opened store, locks and
// backend. meter may be nil.
func (e *CommandExecutor) Orchestrator(meter metric.Meter) (*trigger.Orchestrator, error) {
	if e.store == nil || e.cache == nil || e.backend == nil {
		return nil, errors.New("orchestrator requires the task store, the lock store and the backend")
	}
	def, err := workflow.DefinitionFromConfig(e.cfg.Pipeline.Steps)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline steps: %w", err)
	}
	return trigger.NewOrchestrator(trigger.Options{
		Repo:       e.store.TaskRepo(),
		Units:      e.Units(),
		Submitter:  e.backend,
		Locker:     e.cache.Locker,
		Definition: def,
		LockTTL:    e.cfg.Pipeline.LockTTL,
		Meter:      meter,
		Events:     e.events,
	})
}

// ExecuteCommand is a convenience function that combines executor creation and execution.
func ExecuteCommand(cobraCmd *cobra.Command, opts ExecutorOptions, handler HandlerFunc, args []string) error {
	ctx, cancel := context.WithCancel(cobraCmd.Context())
	defer cancel()
	executor, err := NewCommandExecutor(ctx, cobraCmd, opts)
	if err != nil {
		return HandleCommonErrors(err, helpers.DetectMode(cobraCmd))
	}
	defer executor.Close()
	return HandleCommonErrors(handler(ctx, cobraCmd, executor, args), executor.Mode())
}

// RequireTenantFlag returns the --tenant flag or a structured error when it is blank.
func RequireTenantFlag(cobraCmd *cobra.Command) (string, error) {
	name, err := cobraCmd.Flags().GetString("tenant")
	if err != nil || name == "" {
		return "", helpers.NewCliError("MISSING_FLAG", "required flag 'tenant' not specified")
	}
	return name, nil
}

// HandleCommonErrors provides consistent error handling across all commands.
func HandleCommonErrors(err error, mode helpers.Mode) error {
	if err == nil {
		return nil
	}
	helpers.OutputError(err, mode)
	if cliErr := helpers.CategorizeError(err); cliErr != nil {
		return cliErr
	}
	return err
}
