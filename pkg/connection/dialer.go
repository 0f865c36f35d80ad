package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultConnectTimeout   = 15 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// DialFunc opens a fresh transport. Tests substitute an in-memory pipe.
type DialFunc func(ctx context.Context) (net.Conn, error)

type DialConfig struct {
	Host               string
	Port               int
	TLS                bool
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
}

// NewDialer returns a DialFunc for plain TCP or TLS over TCP.
func NewDialer(cfg DialConfig) DialFunc {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	return func(ctx context.Context) (net.Conn, error) {
		d := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		if !cfg.TLS {
			return conn, nil
		}

		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed test networks
			MinVersion:         tls.VersionTLS12,
		})
		hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
		if err := tlsConn.HandshakeContext(hctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("tls handshake with %s: %w", addr, err)
		}
		return tlsConn, nil
	}
}
