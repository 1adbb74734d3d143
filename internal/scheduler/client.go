// Package scheduler runs the settlement stages as Temporal workflows. Each
// pool job is one workflow whose id is the job's dedupe key, started with a
// delay and executing a single retried activity.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

// ClientConfig addresses the Temporal frontend.
type ClientConfig struct {
	HostPort  string
	Namespace string
}

// Dial connects to Temporal and checks the connection. The client logs
// through logger.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (client.Client, error) {
	logger.Info("connecting to temporal",
		slog.String("host", cfg.HostPort),
		slog.String("namespace", cfg.Namespace),
	)
	c, err := client.DialContext(ctx, client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    log.NewStructuredLogger(logger.With(slog.String("component", "temporal"))),
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: dial %s: %w", cfg.HostPort, err)
	}
	if _, err := c.CheckHealth(ctx, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("scheduler: health check: %w", err)
	}
	return c, nil
}
