// Package irctest provides an in-memory IRC server for tests. Every Dial
// creates a fresh net.Pipe, so reconnect logic can be exercised without
// sockets.
package irctest

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// DefaultTimeout bounds every wait performed by Conn helpers.
const DefaultTimeout = 3 * time.Second

type Server struct {
	conns chan *Conn

	mu       sync.Mutex
	failures []error
	dials    int
}

func NewServer() *Server {
	return &Server{conns: make(chan *Conn, 16)}
}

// FailNextDials makes the next len(errs) dials fail with the given errors.
func (s *Server) FailNextDials(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Dials reports how many dials were attempted, failed ones included.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Dial matches connection.DialFunc.
func (s *Server) Dial(ctx context.Context) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.dials++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	client, server := net.Pipe()
	c := &Conn{conn: server, lines: make(chan string, 256)}
	go c.read()
	s.conns <- c
	return client, nil
}

// Accept returns the server side of the next dialed connection.
func (s *Server) Accept(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(DefaultTimeout):
		t.Fatalf("irctest: no connection dialed within %s", DefaultTimeout)
		return nil
	}
}

// Conn is the server end of one client connection.
type Conn struct {
	conn  net.Conn
	lines chan string
}

func (c *Conn) read() {
	defer close(c.lines)
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		c.lines <- strings.TrimSuffix(scanner.Text(), "\r")
	}
}

// Send writes one line to the client, appending CRLF when missing.
func (c *Conn) Send(t testing.TB, line string) {
	t.Helper()
	if !strings.HasSuffix(line, "\r\n") {
		line += "\r\n"
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	if _, err := c.conn.Write([]byte(line)); err != nil {
		t.Fatalf("irctest: write %q: %v", line, err)
	}
}

// Next returns the next line the client sent. ok is false once the client
// has closed the connection.
func (c *Conn) Next(t testing.TB) (line string, ok bool) {
	t.Helper()
	select {
	case line, ok = <-c.lines:
		return line, ok
	case <-time.After(DefaultTimeout):
		t.Fatalf("irctest: no line from client within %s", DefaultTimeout)
		return "", false
	}
}

// Expect fails unless the next line is exactly want.
func (c *Conn) Expect(t testing.TB, want string) {
	t.Helper()
	got, ok := c.Next(t)
	if !ok {
		t.Fatalf("irctest: connection closed, expected %q", want)
	}
	if got != want {
		t.Fatalf("irctest: got line %q, want %q", got, want)
	}
}

// ExpectPrefix skips nothing: the next line must start with prefix.
func (c *Conn) ExpectPrefix(t testing.TB, prefix string) string {
	t.Helper()
	got, ok := c.Next(t)
	if !ok {
		t.Fatalf("irctest: connection closed, expected line starting with %q", prefix)
	}
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("irctest: got line %q, want prefix %q", got, prefix)
	}
	return got
}

// ExpectSilence fails if the client sends anything within d.
func (c *Conn) ExpectSilence(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case line, ok := <-c.lines:
		if ok {
			t.Fatalf("irctest: expected silence, got %q", line)
		}
	case <-time.After(d):
	}
}

// WaitClosed drains lines until the client closes, returning what was sent.
func (c *Conn) WaitClosed(t testing.TB) []string {
	t.Helper()
	var rest []string
	deadline := time.After(DefaultTimeout)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return rest
			}
			rest = append(rest, line)
		case <-deadline:
			t.Fatalf("irctest: client did not close within %s (got %q)", DefaultTimeout, rest)
			return rest
		}
	}
}

// Register consumes the NICK/USER handshake (and PASS when password is set)
// and answers with RPL_WELCOME.
func (c *Conn) Register(t testing.TB, nick, password string) {
	t.Helper()
	if password != "" {
		c.Expect(t, "PASS "+password)
	}
	c.Expect(t, "NICK "+nick)
	c.ExpectPrefix(t, "USER "+nick+" 0 * :")
	c.Send(t, ":irc.test 001 "+nick+" :Welcome to the test network "+nick)
}

// Close drops the connection from the server side.
func (c *Conn) Close() error {
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
