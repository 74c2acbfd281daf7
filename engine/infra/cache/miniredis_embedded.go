package cache

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// MiniredisEmbedded runs an in-process Redis for standalone mode, so the
// lock code path is identical to the distributed one.
type MiniredisEmbedded struct {
	server *miniredis.Miniredis
	client *redis.Client
}

func NewMiniredisEmbedded(ctx context.Context) (*MiniredisEmbedded, error) {
	server := miniredis.NewMiniRedis()
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("starting embedded redis: %w", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		server.Close()
		return nil, fmt.Errorf("pinging embedded redis: %w", err)
	}
	logger.FromContext(ctx).Debug("Embedded Redis started", "addr", server.Addr())
	return &MiniredisEmbedded{server: server, client: client}, nil
}

func (m *MiniredisEmbedded) Client() *redis.Client {
	return m.client
}

func (m *MiniredisEmbedded) Addr() string {
	return m.server.Addr()
}

func (m *MiniredisEmbedded) Close(ctx context.Context) error {
	err := m.client.Close()
	m.server.Close()
	logger.FromContext(ctx).Debug("Embedded Redis stopped")
	return err
}
