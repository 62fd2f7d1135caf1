package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ShutdownHook is a function called during graceful shutdown
type ShutdownHook func(ctx context.Context) error

// GracefulShutdown runs a server until its context ends, then drains it and
// runs the registered hooks
type GracefulShutdown struct {
	server  *Server
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []ShutdownHook

	once sync.Once
	done chan struct{}
	err  error
}

// NewGracefulShutdown creates a graceful shutdown handler; a zero timeout
// defaults to 30 seconds
func NewGracefulShutdown(server *Server, timeout time.Duration, logger *zap.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GracefulShutdown{
		server:  server,
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// RegisterHook registers a hook run after the server stops accepting requests
func (gs *GracefulShutdown) RegisterHook(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// Run serves until ctx is canceled or the server fails
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	if err := gs.server.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		gs.logger.Info("server listening", zap.String("addr", gs.server.Addr()))
		if err := gs.server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		gs.logger.Info("shutdown signal received")
		return gs.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown drains the server and runs the hooks once
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		if err := gs.server.Shutdown(ctx); err != nil {
			gs.err = fmt.Errorf("server shutdown error: %w", err)
			gs.logger.Error("server shutdown failed", zap.Error(err))
		}

		gs.mu.Lock()
		hooks := append([]ShutdownHook(nil), gs.hooks...)
		gs.mu.Unlock()

		for i, hook := range hooks {
			if err := hook(ctx); err != nil {
				gs.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
			}
		}

		gs.logger.Info("server stopped")
		close(gs.done)
	})

	<-gs.done
	return gs.err
}

// Wait blocks until shutdown is complete
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}
