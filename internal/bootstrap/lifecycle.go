package bootstrap

import (
	"context"
	"net/http"
	"time"

	"atlas/pkg/errors"
)

// Start launches the background surface: metrics server, inbound message
// listener and the worker scheduler. Blocking work runs in goroutines;
// Start itself returns immediately.
func (c *Container) Start(ctx context.Context) error {
	go func() {
		c.Log.Info("Metrics server listening", "addr", c.MetricsServer.Addr)
		if err := c.MetricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Log.Error("Metrics server failed", "error", err)
		}
	}()

	go func() {
		if err := c.Inbound.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.Log.Error("Inbound listener stopped", "error", err)
		}
	}()

	c.History.Start(ctx)

	if err := c.Scheduler.Start(ctx); err != nil {
		return errors.Wrap(err, "start scheduler")
	}

	return nil
}

// Shutdown tears components down in reverse dependency order: stop intake
// first, flush producers, close stores last.
func (c *Container) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.Log.Info("Stopping metrics server...")
	if err := c.MetricsServer.Shutdown(shutdownCtx); err != nil {
		c.Log.Error("Metrics server shutdown failed", "error", err)
	}

	c.Log.Info("Stopping workers...")
	if err := c.Scheduler.Stop(); err != nil {
		c.Log.Error("Worker shutdown failed", "error", err)
	}

	c.Log.Info("Closing inbound listener...")
	if err := c.Inbound.Close(); err != nil {
		c.Log.Error("Inbound listener close failed", "error", err)
	}

	c.Log.Info("Flushing quote archive...")
	if err := c.History.Stop(shutdownCtx); err != nil {
		c.Log.Error("Quote archive flush failed", "error", err)
	}

	c.Log.Info("Closing Kafka producer...")
	if err := c.Producer.Close(); err != nil {
		c.Log.Error("Producer close failed", "error", err)
	}

	c.Log.Info("Closing data stores...")
	if err := c.Redis.Close(); err != nil {
		c.Log.Error("Redis close failed", "error", err)
	}
	if err := c.CH.Close(); err != nil {
		c.Log.Error("ClickHouse close failed", "error", err)
	}
	if err := c.PG.Close(); err != nil {
		c.Log.Error("Postgres close failed", "error", err)
	}

	c.Log.Info("Shutdown complete")
}
