package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ManagedServer wraps an http.Server with background startup, startup error
// detection and graceful shutdown.
type ManagedServer struct {
	server   *http.Server
	logger   *zap.Logger
	name     string
	errCh    chan error
	startErr error
}

// NewManagedServer builds a managed server for the given handler. The error
// log of the underlying http.Server routes through the zap logger.
func NewManagedServer(name, addr string, handler http.Handler, logger *zap.Logger) *ManagedServer {
	errLog, _ := zap.NewStdLogAt(logger, zapcore.ErrorLevel)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ErrorLog:          errLog,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return &ManagedServer{
		server: srv,
		logger: logger,
		name:   name,
		errCh:  make(chan error, 1),
	}
}

// Start begins serving in the background.
func (m *ManagedServer) Start() {
	go func() {
		err := m.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			m.errCh <- err
		}
		close(m.errCh)
	}()
}

// WaitForStartup returns an error if the server failed within the timeout.
func (m *ManagedServer) WaitForStartup(timeout time.Duration) error {
	select {
	case err := <-m.errCh:
		if err != nil {
			m.startErr = err
			return fmt.Errorf("%s failed to start: %w", m.name, err)
		}
		return nil
	case <-time.After(timeout):
		return nil
	}
}

// Shutdown stops the server gracefully.
func (m *ManagedServer) Shutdown(ctx context.Context) {
	if m.startErr != nil {
		return
	}
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Warn("shutdown error", zap.String("server", m.name), zap.Error(err))
	}
}
