// server/shutdown.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Closer releases a resource during shutdown.
type Closer func(ctx context.Context) error

type namedCloser struct {
	name  string
	close Closer
}

// ShutdownManager handles graceful shutdown
type ShutdownManager struct {
	server     *http.Server
	closers    []namedCloser
	timeout    time.Duration
	waitGroup  sync.WaitGroup
	shutdownCh chan struct{}
	once       sync.Once
	logger     logrus.FieldLogger
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(srv *http.Server, timeout time.Duration, logger logrus.FieldLogger) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		server:     srv,
		timeout:    timeout,
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}
}

// Register adds a resource to close after the server stops. Resources are
// closed in registration order.
func (sm *ShutdownManager) Register(name string, c Closer) {
	sm.closers = append(sm.closers, namedCloser{name: name, close: c})
}

// HandleGracefulShutdown waits for SIGINT, SIGTERM or a serve error and
// shuts down. A serve error is returned after the resources are closed.
func (sm *ShutdownManager) HandleGracefulShutdown(serveErr <-chan error) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		sm.logger.WithField("signal", sig.String()).Info("Received signal")
		return sm.Shutdown()
	case err := <-serveErr:
		if err == nil {
			return sm.Shutdown()
		}
		sm.logger.WithError(err).Error("Server stopped unexpectedly")
		return errors.Join(err, sm.Shutdown())
	}
}

// Shutdown stops the server and closes every registered resource.
func (sm *ShutdownManager) Shutdown() error {
	sm.once.Do(func() { close(sm.shutdownCh) })

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	var shutdownErr error
	sm.waitGroup.Add(1)
	go func() {
		defer sm.waitGroup.Done()
		shutdownErr = sm.performGracefulShutdown(ctx)
	}()

	shutdownComplete := make(chan struct{})
	go func() {
		sm.waitGroup.Wait()
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		if shutdownErr != nil {
			return shutdownErr
		}
		sm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// performGracefulShutdown handles the actual shutdown sequence
func (sm *ShutdownManager) performGracefulShutdown(ctx context.Context) error {
	var errs []error

	// Stop accepting new connections and let streaming runs finish
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("Error during server shutdown")
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	for _, c := range sm.closers {
		if err := c.close(ctx); err != nil {
			sm.logger.WithError(err).WithField("resource", c.name).Error("Error closing resource")
			errs = append(errs, fmt.Errorf("%s close error: %w", c.name, err))
		}
	}

	return errors.Join(errs...)
}

// IsShuttingDown returns true if shutdown has been initiated
func (sm *ShutdownManager) IsShuttingDown() bool {
	select {
	case <-sm.shutdownCh:
		return true
	default:
		return false
	}
}

// WaitForShutdown blocks until shutdown is complete
func (sm *ShutdownManager) WaitForShutdown() {
	sm.waitGroup.Wait()
}
