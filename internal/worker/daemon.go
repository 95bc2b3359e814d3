// Package worker implements the HTTP responder that runs as the managed OS
// service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/stone-age-io/svcctl/internal/config"
	"go.uber.org/zap"
	"vawter.tech/stopper"
)

// Options configures a Daemon
type Options struct {
	// Port to listen on. Zero picks a free port.
	Port int
	// Response is the body returned for every request
	Response string
	// Grace bounds shutdown. When it elapses the process is force-exited.
	Grace time.Duration
	// HeartbeatInterval between heartbeat log lines. Zero disables them.
	HeartbeatInterval time.Duration
}

// OptionsFromConfig maps the worker section of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Port:              cfg.Worker.Port,
		Response:          cfg.Worker.Response,
		Grace:             cfg.Worker.Grace,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	}
}

// Option customizes a Daemon
type Option func(*Daemon)

// WithExit replaces os.Exit for the forced exit after the grace period
func WithExit(fn func(code int)) Option {
	return func(d *Daemon) {
		d.exit = fn
	}
}

// Daemon serves a fixed response on every path until shut down
type Daemon struct {
	opts    Options
	logger  *zap.Logger
	id      uuid.UUID
	exit    func(code int)
	started time.Time

	requests atomic.Int64
	faults   chan error

	// serve answers requests after the middleware chain; nil means respond
	serve http.HandlerFunc

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	heartbeat gocron.Scheduler
	sctx      *stopper.Context

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a daemon. Nothing is bound until Start.
func New(opts Options, logger *zap.Logger, options ...Option) *Daemon {
	d := &Daemon{
		opts:   opts,
		logger: logger,
		id:     uuid.New(),
		exit:   os.Exit,
		faults: make(chan error, 1),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Start binds the listener and serves in the background. A bind failure is
// returned so the service manager sees a failed start.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.server != nil {
		return errors.New("worker already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", d.opts.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", d.opts.Port, err)
	}

	d.started = time.Now()
	d.listener = ln
	d.server = &http.Server{
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(d.logger.Named("http")),
	}
	d.sctx = stopper.WithContext(ctx)

	server := d.server
	d.sctx.Go(func(sctx *stopper.Context) error {
		defer d.recoverFault("http server")

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.reportFault(fmt.Errorf("http server failed: %w", err))
			return err
		}
		return nil
	})

	if d.opts.HeartbeatInterval > 0 {
		hb, err := d.startHeartbeat()
		if err != nil {
			d.logger.Warn("Heartbeat disabled", zap.Error(err))
		} else {
			d.heartbeat = hb
		}
	}

	d.logger.Info(fmt.Sprintf("Worker service running on port %d", d.Port()),
		zap.String("instance", d.id.String()),
		zap.Int("pid", os.Getpid()))
	return nil
}

// Port returns the bound port, or the configured one before Start
func (d *Daemon) Port() int {
	if d.listener == nil {
		return d.opts.Port
	}
	if addr, ok := d.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return d.opts.Port
}

// Addr returns the listener address, nil before Start
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Faults delivers the first unrecovered failure of a handler or daemon
// goroutine. The owner is expected to shut down with exit code 1.
func (d *Daemon) Faults() <-chan error {
	return d.faults
}

// Requests returns the number of requests served so far
func (d *Daemon) Requests() int64 {
	return d.requests.Load()
}

// Shutdown stops accepting connections immediately, drains in-flight
// requests and stops the heartbeat. If draining does not finish within the
// grace period the process is force-exited with code. Only the first call
// has an effect.
func (d *Daemon) Shutdown(code int) error {
	d.shutdownOnce.Do(func() {
		d.shutdownErr = d.shutdown(code)
	})
	return d.shutdownErr
}

func (d *Daemon) shutdown(code int) error {
	d.mu.Lock()
	server, sctx, hb := d.server, d.sctx, d.heartbeat
	d.mu.Unlock()

	d.logger.Info("Shutdown initiated", zap.Int("exit_code", code))
	if server == nil {
		return nil
	}

	forced := time.AfterFunc(d.opts.Grace, func() {
		d.logger.Warn("Grace period elapsed, forcing exit",
			zap.Duration("grace", d.opts.Grace),
			zap.Int("exit_code", code))
		_ = d.logger.Sync()
		d.exit(code)
	})
	defer forced.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Grace)
	defer cancel()

	// Shutdown closes the listener before waiting for active connections
	err := server.Shutdown(ctx)
	if err != nil {
		d.logger.Warn("In-flight requests did not drain", zap.Error(err))
		_ = server.Close()
	}

	// gocron waits for a running heartbeat before returning
	if hb != nil {
		if err := hb.Shutdown(); err != nil {
			d.logger.Warn("Error shutting down heartbeat", zap.Error(err))
		}
	}

	sctx.Stop(d.opts.Grace)
	if waitErr := sctx.Wait(); waitErr != nil && err == nil {
		err = waitErr
	}

	d.logger.Info("HTTP server closed",
		zap.Int64("requests", d.requests.Load()),
		zap.Duration("uptime", time.Since(d.started).Round(time.Second)))
	return err
}

// reportFault records err without blocking. Later faults are dropped.
func (d *Daemon) reportFault(err error) {
	select {
	case d.faults <- err:
	default:
	}
}

// recoverFault turns a panic in a daemon goroutine into a fault
func (d *Daemon) recoverFault(where string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("panic in %s: %v", where, r)
		d.logger.Error("Uncaught exception", zap.Error(err), zap.Stack("stack"))
		d.reportFault(err)
	}
}
