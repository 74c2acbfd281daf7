package config

import (
	"context"
	"time"
)

const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the complete configuration for the tenantflow service.
type Config struct {
	Mode       string           `koanf:"mode"       validate:"oneof=standalone distributed" env:"TENANTFLOW_MODE"`
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Database   DatabaseConfig   `koanf:"database"   validate:"required"`
	Temporal   TemporalConfig   `koanf:"temporal"   validate:"required"`
	Redis      RedisConfig      `koanf:"redis"`
	Pipeline   PipelineConfig   `koanf:"pipeline"   validate:"required"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Runtime    RuntimeConfig    `koanf:"runtime"    validate:"required"`
	CLI        CLIConfig        `koanf:"cli"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"             validate:"required"        env:"SERVER_HOST"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535" env:"SERVER_PORT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"                            env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig selects and configures the task store.
type DatabaseConfig struct {
	Driver       string          `koanf:"driver"         validate:"oneof=postgres sqlite" env:"DB_DRIVER"`
	ConnString   SensitiveString `koanf:"conn_string"                                     env:"DB_CONN_STRING"     sensitive:"true"`
	Host         string          `koanf:"host"                                            env:"DB_HOST"`
	Port         string          `koanf:"port"                                            env:"DB_PORT"`
	User         string          `koanf:"user"                                            env:"DB_USER"`
	Password     SensitiveString `koanf:"password"                                        env:"DB_PASSWORD"        sensitive:"true"`
	DBName       string          `koanf:"name"                                            env:"DB_NAME"`
	SSLMode      string          `koanf:"ssl_mode"                                        env:"DB_SSL_MODE"`
	MaxOpenConns int             `koanf:"max_open_conns" validate:"min=0"                 env:"DB_MAX_OPEN_CONNS"`
	Path         string          `koanf:"path"                                            env:"DB_PATH"`
	AutoMigrate  bool            `koanf:"auto_migrate"                                    env:"DB_AUTO_MIGRATE"`
}

// TemporalConfig contains Temporal workflow engine configuration.
type TemporalConfig struct {
	HostPort         string        `koanf:"host_port"         validate:"required" env:"TEMPORAL_HOST_PORT"`
	Namespace        string        `koanf:"namespace"         validate:"required" env:"TEMPORAL_NAMESPACE"`
	TaskQueue        string        `koanf:"task_queue"        validate:"required" env:"TEMPORAL_TASK_QUEUE"`
	ActivityTimeout  time.Duration `koanf:"activity_timeout"                      env:"TEMPORAL_ACTIVITY_TIMEOUT"`
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout"                     env:"TEMPORAL_HEARTBEAT_TIMEOUT"`
}

// RedisConfig configures the tenant lock backend. Mode overrides the global
// deployment mode when set.
type RedisConfig struct {
	Mode     string          `koanf:"mode"      validate:"omitempty,oneof=standalone distributed" env:"REDIS_MODE"`
	URL      string          `koanf:"url"                                                         env:"REDIS_URL"`
	Addr     string          `koanf:"addr"                                                        env:"REDIS_ADDR"`
	Password SensitiveString `koanf:"password"                                                    env:"REDIS_PASSWORD" sensitive:"true"`
	DB       int             `koanf:"db"        validate:"min=0"                                  env:"REDIS_DB"`
	PoolSize int             `koanf:"pool_size" validate:"min=0"                                  env:"REDIS_POOL_SIZE"`
}

// StepConfig declares one pipeline step.
type StepConfig struct {
	Name     string `koanf:"name"     validate:"required"`
	Type     string `koanf:"type"     validate:"required,oneof=GENERIC IMPORT UPDATE EXPORT PROCESS"`
	Parallel bool   `koanf:"parallel"`
	Count    int    `koanf:"count"    validate:"min=1"`
	Total    int64  `koanf:"total"    validate:"min=1"`
}

// PipelineConfig contains tenant discovery, scheduling and step layout.
type PipelineConfig struct {
	Tenants         []string      `koanf:"tenants"          env:"PIPELINE_TENANTS"`
	TenantDir       string        `koanf:"tenant_dir"       env:"PIPELINE_TENANT_DIR"`
	AdminTenant     string        `koanf:"admin_tenant"     env:"PIPELINE_ADMIN_TENANT"     validate:"required"`
	BatchSize       int           `koanf:"batch_size"       env:"PIPELINE_BATCH_SIZE"       validate:"min=1"`
	LockTTL         time.Duration `koanf:"lock_ttl"         env:"PIPELINE_LOCK_TTL"`
	Schedule        string        `koanf:"schedule"         env:"PIPELINE_SCHEDULE"`
	ScheduleEnabled bool          `koanf:"schedule_enabled" env:"PIPELINE_SCHEDULE_ENABLED"`
	Steps           []StepConfig  `koanf:"steps"                                            validate:"min=1,dive"`
}

// MonitoringConfig toggles the Prometheus endpoint.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
}

// CLIConfig holds values that only matter to command invocations.
type CLIConfig struct {
	ConfigFile string `koanf:"config_file" env:"TENANTFLOW_CONFIG_FILE"`
	EnvFile    string `koanf:"env_file"    env:"TENANTFLOW_ENV_FILE"`
	Output     string `koanf:"output"      env:"TENANTFLOW_OUTPUT"      validate:"omitempty,oneof=text json"`
}

// EffectiveRedisMode resolves the component override against the global mode.
func (c *Config) EffectiveRedisMode() string {
	if c.Redis.Mode != "" {
		return c.Redis.Mode
	}
	return c.Mode
}

// Default returns the built-in configuration. It runs a standalone stack
// against a local Temporal dev server.
func Default() *Config {
	return &Config{
		Mode: ModeStandalone,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5001,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			Host:         "localhost",
			Port:         "5432",
			User:         "postgres",
			DBName:       "tenantflow",
			SSLMode:      "disable",
			MaxOpenConns: 20,
			Path:         "./.tenantflow/tenantflow.db",
			AutoMigrate:  true,
		},
		Temporal: TemporalConfig{
			HostPort:         "localhost:7233",
			Namespace:        "default",
			TaskQueue:        "tenantflow",
			ActivityTimeout:  2 * time.Hour,
			HeartbeatTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Pipeline: PipelineConfig{
			Tenants:     []string{},
			AdminTenant: "default",
			BatchSize:   1000,
			LockTTL:     time.Minute,
			Schedule:    "*/5 * * * *",
			Steps:       DefaultSteps(),
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Runtime: RuntimeConfig{
			Environment: "development",
		},
		CLI: CLIConfig{
			ConfigFile: "tenantflow.yaml",
			Output:     "text",
		},
	}
}

// DefaultSteps is the import, update, export pipeline.
func DefaultSteps() []StepConfig {
	return []StepConfig{
		{Name: "import", Type: "IMPORT", Parallel: true, Count: 3, Total: 500000},
		{Name: "update", Type: "UPDATE", Parallel: false, Count: 3, Total: 150000},
		{Name: "export", Type: "EXPORT", Parallel: true, Count: 3, Total: 50000},
	}
}

// Service defines the interface for configuration management.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type that provided a configuration key.
	GetSource(key string) SourceType
}

// Source represents a configuration source.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
	Close() error
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}
