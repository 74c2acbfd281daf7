// Package repo selects the task store driver from configuration.
package repo

import (
	"context"
	"fmt"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/infra/postgres"
	"github.com/compozy/tenantflow/engine/infra/sqlite"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/pkg/config"
	"github.com/compozy/tenantflow/pkg/logger"
)

// Provider exposes the task repository behind the configured driver.
// Callers only see task.Repository.
type Provider struct {
	driver  string
	tasks   task.Repository
	health  func(context.Context) error
	close   func(context.Context) error
	migrate func(context.Context) error
	version func(context.Context) (int64, error)
}

// NewProvider opens the configured store and runs migrations when
// database.auto_migrate is set.
func NewProvider(ctx context.Context, cfg *config.DatabaseConfig) (*Provider, error) {
	if cfg == nil {
		return nil, core.ConfigurationError(fmt.Errorf("database config is required"), nil)
	}
	var (
		p   *Provider
		err error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		p, err = newPostgresProvider(ctx, cfg)
	case config.DriverSQLite, "":
		p, err = newSQLiteProvider(ctx, cfg)
	default:
		return nil, core.ConfigurationError(
			fmt.Errorf("unsupported database driver %q", cfg.Driver),
			map[string]any{"driver": cfg.Driver},
		)
	}
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := p.Migrate(ctx); err != nil {
			_ = p.Close(ctx)
			return nil, err
		}
	}
	return p, nil
}

func newPostgresProvider(ctx context.Context, cfg *config.DatabaseConfig) (*Provider, error) {
	pgCfg := &postgres.Config{
		ConnString:   cfg.ConnString.Value(),
		Host:         cfg.Host,
		Port:         cfg.Port,
		User:         cfg.User,
		Password:     cfg.Password.Value(),
		DBName:       cfg.DBName,
		SSLMode:      cfg.SSLMode,
		MaxOpenConns: cfg.MaxOpenConns,
	}
	st, err := postgres.NewStore(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	dsn := pgCfg.DSN()
	return &Provider{
		driver: config.DriverPostgres,
		tasks:  postgres.NewTaskRepo(st.Pool()),
		health: st.HealthCheck,
		close:  st.Close,
		migrate: func(ctx context.Context) error {
			return postgres.ApplyMigrationsWithLock(ctx, dsn)
		},
		version: func(ctx context.Context) (int64, error) {
			return postgres.MigrationStatus(ctx, dsn)
		},
	}, nil
}

func newSQLiteProvider(ctx context.Context, cfg *config.DatabaseConfig) (*Provider, error) {
	st, err := sqlite.NewStore(ctx, &sqlite.Config{Path: cfg.Path, MaxOpenConns: cfg.MaxOpenConns})
	if err != nil {
		return nil, err
	}
	return &Provider{
		driver: config.DriverSQLite,
		tasks:  sqlite.NewTaskRepo(st.DB()),
		health: st.HealthCheck,
		close:  st.Close,
		migrate: func(ctx context.Context) error {
			return sqlite.ApplyMigrations(ctx, st.DB())
		},
		version: func(ctx context.Context) (int64, error) {
			return sqlite.MigrationStatus(ctx, st.DB())
		},
	}, nil
}

func (p *Provider) Driver() string { return p.driver }

func (p *Provider) TaskRepo() task.Repository { return p.tasks }

func (p *Provider) HealthCheck(ctx context.Context) error { return p.health(ctx) }

func (p *Provider) Migrate(ctx context.Context) error {
	logger.FromContext(ctx).Info("Applying task store migrations", "driver", p.driver)
	if err := p.migrate(ctx); err != nil {
		return fmt.Errorf("%s migrations: %w", p.driver, err)
	}
	return nil
}

func (p *Provider) MigrationVersion(ctx context.Context) (int64, error) {
	return p.version(ctx)
}

func (p *Provider) Close(ctx context.Context) error {
	if p == nil || p.close == nil {
		return nil
	}
	return p.close(ctx)
}
