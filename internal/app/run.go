package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run loads configuration, wires the App, and blocks until SIGINT/SIGTERM or
// a fatal server error. It returns the error instead of exiting so cmd/ripple
// keeps its defers effective.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
