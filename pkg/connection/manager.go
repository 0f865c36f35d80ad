// ircbots - LLM-backed IRC bots
// License: MIT
//
// Copyright (c) 2026 ircbots contributors

// Package connection owns the transport to one IRC server: dialing,
// registration, the rate-limited send gate, keepalive reads and the
// reconnect loop.
package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotsetgreg/ircbots/pkg/irc"
	"github.com/dotsetgreg/ircbots/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultRateLimit    = 2 * time.Second
	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

var (
	ErrNotConnected     = errors.New("connection: not connected")
	ErrReadTimeout      = errors.New("connection: read timeout")
	ErrPingTimeout      = errors.New("connection: no data after keepalive ping")
	ErrRetriesExhausted = errors.New("connection: retries exhausted")
)

// Handler drives one established connection. Serve returns when the
// connection is unusable or ctx is done; the Manager then tears the
// transport down and calls Disconnected.
type Handler interface {
	Serve(ctx context.Context, conn *Manager) error
	Disconnected(err error)
}

type Options struct {
	Nick     string
	Realname string
	Password string

	RateLimit    time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxAttempts caps consecutive failed attempts; 0 retries forever.
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter bool

	QuitMessage string
	QuitTimeout time.Duration
}

type Hooks struct {
	OnState func(State)
	OnRetry func(attempt int, delay time.Duration, err error)
	OnSend  func(command string)
}

type Manager struct {
	opts    Options
	dial    DialFunc
	hooks   Hooks
	limiter *rate.Limiter
	backoff *Backoff

	// sendMu is the single send gate; held across the rate wait and write.
	sendMu sync.Mutex

	mu     sync.RWMutex
	conn   net.Conn
	broken bool
	connID string

	interrupted atomic.Bool
	state       atomic.Int32
	epoch       atomic.Uint64
}

func NewManager(dial DialFunc, opts Options, hooks Hooks) *Manager {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.QuitTimeout <= 0 {
		opts.QuitTimeout = opts.RateLimit + 2*time.Second
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Every(opts.RateLimit)
	}

	return &Manager{
		opts:    opts,
		dial:    dial,
		hooks:   hooks,
		limiter: rate.NewLimiter(limit, 1),
		backoff: NewBackoff(opts.BackoffBase, opts.BackoffMax, opts.BackoffJitter),
	}
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

// Epoch increments on every successful dial.
func (m *Manager) Epoch() uint64 {
	return m.epoch.Load()
}

// ConnID is a short random id for the current transport, for log
// correlation.
func (m *Manager) ConnID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connID
}

func (m *Manager) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev == s {
		return
	}
	logger.DebugCF("connection", "State changed", map[string]interface{}{
		"nick": m.opts.Nick,
		"from": prev.String(),
		"to":   s.String(),
	})
	if m.hooks.OnState != nil {
		m.hooks.OnState(s)
	}
}

// MarkRegistered records RPL_WELCOME and resets the backoff.
func (m *Manager) MarkRegistered() {
	m.backoff.Reset()
	m.setState(StateRegistered)
}

func (m *Manager) MarkJoined() {
	m.setState(StateJoined)
}

// Run connects and serves until ctx is done or retries are exhausted.
// A nil return means an orderly shutdown.
func (m *Manager) Run(ctx context.Context, h Handler) error {
	defer m.setState(StateTerminated)

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := m.connect(ctx)
		if err == nil {
			err = m.serve(ctx, h)
		}
		if ctx.Err() != nil {
			return nil
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempt()
		if m.opts.MaxAttempts > 0 && attempt >= m.opts.MaxAttempts {
			logger.ErrorCF("connection", "Giving up on connection", map[string]interface{}{
				"nick":     m.opts.Nick,
				"attempts": attempt,
				"error":    errString(err),
			})
			return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt, err)
		}

		logger.WarnCF("connection", "Connection attempt failed, retrying", map[string]interface{}{
			"nick":    m.opts.Nick,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   errString(err),
		})
		if m.hooks.OnRetry != nil {
			m.hooks.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (m *Manager) connect(ctx context.Context) error {
	m.setState(StateConnecting)

	conn, err := m.dial(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("connect: %w", err)
	}

	id := uuid.NewString()[:8]
	m.mu.Lock()
	m.conn = conn
	m.broken = false
	m.connID = id
	m.mu.Unlock()
	m.epoch.Add(1)

	logger.InfoCF("connection", "Connected", map[string]interface{}{
		"nick":    m.opts.Nick,
		"conn_id": id,
		"remote":  remoteAddr(conn),
	})

	m.setState(StateRegistering)
	if err := m.register(ctx); err != nil {
		m.closeConn()
		m.setState(StateDisconnected)
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

func (m *Manager) register(ctx context.Context) error {
	if m.opts.Password != "" {
		if err := m.Send(ctx, irc.Pass(m.opts.Password)); err != nil {
			return err
		}
	}
	if err := m.Send(ctx, irc.Nick(m.opts.Nick)); err != nil {
		return err
	}
	return m.Send(ctx, irc.User(m.opts.Nick, m.opts.Realname))
}

func (m *Manager) serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, m.interrupt)
	defer stop()

	err := h.Serve(ctx, m)
	m.teardown(ctx)
	h.Disconnected(err)

	if err == nil {
		err = io.EOF
	}
	if ctx.Err() == nil {
		logger.WarnCF("connection", "Disconnected", map[string]interface{}{
			"nick":  m.opts.Nick,
			"error": err.Error(),
		})
	}
	return err
}

// interrupt unblocks a pending Read when ctx is cancelled.
func (m *Manager) interrupt() {
	m.interrupted.Store(true)
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn != nil {
		_ = conn.SetReadDeadline(time.Now())
	}
}

// teardown sends a best-effort QUIT on shutdown and always closes the
// transport.
func (m *Manager) teardown(ctx context.Context) {
	if ctx.Err() != nil {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.QuitTimeout)
		if err := m.Send(qctx, irc.Quit(m.opts.QuitMessage)); err != nil {
			logger.DebugCF("connection", "QUIT not delivered", map[string]interface{}{
				"nick":  m.opts.Nick,
				"error": err.Error(),
			})
		}
		cancel()
	}
	m.closeConn()
	m.setState(StateDisconnected)
}

func (m *Manager) closeConn() {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.broken = false
}

// Send writes one line through the rate-limited gate. A failed write marks
// the transport broken and closes it so the reader notices promptly.
func (m *Manager) Send(ctx context.Context, line string) error {
	line = strings.TrimRight(line, "\r\n")

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send gate: %w", err)
	}

	m.mu.RLock()
	conn, broken := m.conn, m.broken
	m.mu.RUnlock()
	if conn == nil || broken {
		return ErrNotConnected
	}

	command, _, _ := strings.Cut(line, " ")
	_ = conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
	if _, err := io.WriteString(conn, line+"\r\n"); err != nil {
		m.mu.Lock()
		m.broken = true
		_ = conn.Close()
		m.mu.Unlock()
		return fmt.Errorf("write %s: %w", command, err)
	}

	if command == irc.CmdPass {
		logger.DebugCF("connection", "Sent", map[string]interface{}{"nick": m.opts.Nick, "line": "PASS ****"})
	} else {
		logger.DebugCF("connection", "Sent", map[string]interface{}{"nick": m.opts.Nick, "line": line})
	}
	if m.hooks.OnSend != nil {
		m.hooks.OnSend(command)
	}
	return nil
}

// Read reads from the transport with the idle read timeout applied.
// A timeout surfaces as ErrReadTimeout.
func (m *Manager) Read(p []byte) (int, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	_ = conn.SetReadDeadline(time.Now().Add(m.opts.ReadTimeout))
	if m.interrupted.Load() {
		_ = conn.SetReadDeadline(time.Now())
	}

	n, err := conn.Read(p)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, ErrReadTimeout
		}
	}
	return n, err
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
