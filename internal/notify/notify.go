// Package notify publishes lifecycle outcomes to NATS so that other systems
// can follow service control without polling.
package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stone-age-io/svcctl/internal/config"
	"github.com/stone-age-io/svcctl/internal/lifecycle"
	"go.uber.org/zap"
)

// Report is the JSON document published for every control invocation
type Report struct {
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	State     string    `json:"state"`
	Events    []string  `json:"events"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Host      string    `json:"host"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReport summarizes an outcome and the error it ended with
func NewReport(out lifecycle.Outcome, err error) Report {
	host, _ := os.Hostname()

	r := Report{
		Service:   out.Service,
		Action:    out.Action.String(),
		State:     out.State.String(),
		Events:    make([]string, 0, len(out.Events)),
		Success:   err == nil,
		Host:      host,
		Timestamp: time.Now().UTC(),
	}
	for _, ev := range out.Events {
		r.Events = append(r.Events, ev.Kind.String())
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Notifier delivers reports. Delivery failures never change the outcome of
// the action being reported.
type Notifier interface {
	Notify(ctx context.Context, r Report) error
	Close()
}

// New returns a NATS publisher when notifications are enabled, or a Noop
func New(cfg *config.NotifyConfig, logger *zap.Logger) (Notifier, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}

	opts, err := connectOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Pass all URLs for automatic failover
	serverURLs := strings.Join(cfg.URLs, ",")
	logger.Debug("Connecting to NATS", zap.Strings("urls", cfg.URLs))
	conn, err := nats.Connect(serverURLs, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Debug("Connected to NATS",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("server_id", conn.ConnectedServerId()),
		zap.Bool("tls", conn.TLSRequired()))

	return newPublisher(conn, cfg.SubjectPrefix, cfg.Timeout, logger), nil
}

// Noop discards every report
type Noop struct{}

func (Noop) Notify(ctx context.Context, r Report) error { return nil }
func (Noop) Close()                                     {}

// conn is the part of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
	Close()
	IsClosed() bool
}

// Publisher sends reports on <prefix>.<service>.lifecycle with core NATS
type Publisher struct {
	conn    conn
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

func newPublisher(c conn, prefix string, timeout time.Duration, logger *zap.Logger) *Publisher {
	return &Publisher{conn: c, prefix: prefix, timeout: timeout, logger: logger}
}

// Subject returns the subject reports for service are published on
func Subject(prefix, service string) string {
	return fmt.Sprintf("%s.%s.lifecycle", prefix, service)
}

// Notify publishes r and waits for the server to acknowledge the flush
func (p *Publisher) Notify(ctx context.Context, r Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	subject := Subject(p.prefix, r.Service)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush publish to %s: %w", subject, err)
	}

	p.logger.Debug("Published lifecycle report",
		zap.String("subject", subject),
		zap.Int("bytes", len(data)))
	return nil
}

// Close drains the connection, forcing a close after the publish timeout
func (p *Publisher) Close() {
	if p.conn.IsClosed() {
		return
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- p.conn.Drain()
	}()

	select {
	case err := <-drainDone:
		if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			p.logger.Debug("Error during NATS drain", zap.Error(err))
		}
	case <-time.After(p.timeout):
		p.logger.Debug("NATS drain timeout, forcing close")
		p.conn.Close()
	}
}

// connectOptions builds connection options for TLS and the configured
// authentication type
func connectOptions(cfg *config.NotifyConfig, logger *zap.Logger) ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name("svcctl"),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(0),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Debug("NATS error", zap.Error(err))
		}),
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := createTLSConfig(&cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))

		if cfg.TLS.InsecureSkipVerify {
			logger.Warn("TLS certificate verification is DISABLED - this is insecure and should only be used in development")
		}
	}

	switch cfg.Auth.Type {
	case "creds":
		opts = append(opts, nats.UserCredentials(cfg.Auth.CredsFile))
	case "token":
		opts = append(opts, nats.Token(cfg.Auth.Token))
	case "userpass":
		opts = append(opts, nats.UserInfo(cfg.Auth.Username, cfg.Auth.Password))
	case "none", "":
	default:
		return nil, fmt.Errorf("invalid auth type: %s", cfg.Auth.Type)
	}

	return opts, nil
}

// createTLSConfig creates a TLS configuration based on the provided settings
func createTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	// CA used to verify the server's certificate
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	// Client certificate for mutual TLS
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
