// Package nats provides a NATS-backed chat channel.
package nats

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/transport"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

// Config holds NATS connection configuration.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Timeout  time.Duration
}

// Dialer opens per-user chat channels on a NATS server.
type Dialer struct {
	cfg    Config
	logger *logger.Logger
}

// NewDialer creates a NATS dialer.
func NewDialer(cfg Config, log *logger.Logger) *Dialer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Dialer{cfg: cfg, logger: logger.OrGlobal(log).Named("nats")}
}

// Dial connects to NATS and subscribes to the user's inbound subject. The
// client library's own reconnection is disabled: a drop closes the channel
// and recovery belongs to the caller.
func (d *Dialer) Dial(ctx context.Context, creds transport.Credentials) (transport.Conn, error) {
	if creds.UserID == "" {
		return nil, fmt.Errorf("nats dial: missing user id")
	}

	timeout := d.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	log := d.logger.WithSession(creds.UserID)
	opts := []nats.Option{
		nats.Name("chatsync-" + creds.UserID),
		nats.NoReconnect(),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("NATS error", zap.String("subject", subject), zap.Error(err))
		}),
	}

	if d.cfg.CAFile != "" && d.cfg.CertFile != "" && d.cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(d.cfg.CAFile, d.cfg.CertFile, d.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if creds.Token != "" {
		opts = append(opts, nats.Token(creds.Token))
	}

	nc, err := nats.Connect(d.cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	sub, err := nc.SubscribeSync(InboundSubject(creds.UserID))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := nc.FlushTimeout(timeout); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}

	log.Debug("NATS channel open", zap.String("inbound", sub.Subject))
	return newChannel(nc, sub, OutboundSubject(creds.UserID)), nil
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
