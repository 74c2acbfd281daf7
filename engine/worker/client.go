package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/tenantflow/pkg/config"
	"github.com/compozy/tenantflow/pkg/logger"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
)

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

const (
	defaultActivityTimeout  = 2 * time.Hour
	defaultHeartbeatTimeout = 30 * time.Second
)

type TemporalConfig struct {
	HostPort         string
	Namespace        string
	TaskQueue        string
	ActivityTimeout  time.Duration
	HeartbeatTimeout time.Duration
}

// TemporalConfigFrom maps the application section onto the client config.
func TemporalConfigFrom(cfg *config.TemporalConfig) *TemporalConfig {
	out := &TemporalConfig{
		HostPort:         cfg.HostPort,
		Namespace:        cfg.Namespace,
		TaskQueue:        cfg.TaskQueue,
		ActivityTimeout:  cfg.ActivityTimeout,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
	}
	if out.ActivityTimeout <= 0 {
		out.ActivityTimeout = defaultActivityTimeout
	}
	if out.HeartbeatTimeout <= 0 {
		out.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	return out
}

type Client struct {
	client.Client
	config *TemporalConfig
}

func NewClient(ctx context.Context, cfg *TemporalConfig, interceptors ...interceptor.ClientInterceptor) (*Client, error) {
	log := logger.FromContext(ctx)
	options := client.Options{
		HostPort:     cfg.HostPort,
		Namespace:    cfg.Namespace,
		Logger:       log,
		Interceptors: interceptors,
	}
	dialStart := time.Now()
	temporalClient, err := client.DialContext(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}
	log.Debug("Temporal client connected", "host_port", cfg.HostPort, "duration", time.Since(dialStart))
	return &Client{
		Client: temporalClient,
		config: cfg,
	}, nil
}

func (c *Client) Config() *TemporalConfig {
	return c.config
}

func (c *Client) NewWorker(options *worker.Options) worker.Worker {
	if options == nil {
		return worker.New(c.Client, c.config.TaskQueue, worker.Options{})
	}
	return worker.New(c.Client, c.config.TaskQueue, *options)
}

func (c *Client) Close() {
	c.Client.Close()
}
