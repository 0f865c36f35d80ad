// ircbots - LLM-backed IRC bots
// License: MIT
//
// Copyright (c) 2026 ircbots contributors

// Package bot ties one configured bot together: it serves each connection
// the Manager establishes, keeps the conversation, applies the reply policy
// and runs the completion worker and idle chatter.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dotsetgreg/ircbots/pkg/bus"
	"github.com/dotsetgreg/ircbots/pkg/config"
	"github.com/dotsetgreg/ircbots/pkg/connection"
	"github.com/dotsetgreg/ircbots/pkg/conversation"
	"github.com/dotsetgreg/ircbots/pkg/irc"
	"github.com/dotsetgreg/ircbots/pkg/logger"
	"github.com/dotsetgreg/ircbots/pkg/metrics"
	"github.com/dotsetgreg/ircbots/pkg/policy"
	"github.com/dotsetgreg/ircbots/pkg/providers"
)

var (
	// ErrServerClosedLink is returned when the server sends ERROR.
	ErrServerClosedLink = errors.New("bot: server closed the link")

	errEmptyCompletion = errors.New("bot: empty completion")
)

const readChunkSize = 4096

type Session struct {
	cfg       *config.BotConfig
	completer providers.Completer
	mgr       *connection.Manager
	history   *conversation.History
	seen      *conversation.SeenWindow
	policy    *policy.Policy
	chatter   *policy.Chatter
	jobs      *bus.JobQueue
	metrics   *metrics.Bot
	codecOpts []irc.CodecOption

	dial connection.DialFunc
	now  func() time.Time
}

type Option func(*Session)

// WithDialFunc replaces the TCP/TLS dialer built from the config.
func WithDialFunc(dial connection.DialFunc) Option {
	return func(s *Session) {
		s.dial = dial
	}
}

func WithMetrics(m *metrics.Bot) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func New(cfg *config.BotConfig, completer providers.Completer, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil bot config", config.ErrInvalidConfig)
	}
	if completer == nil {
		return nil, fmt.Errorf("bot %s: completer is required", cfg.Nick)
	}

	s := &Session{
		cfg:       cfg,
		completer: completer,
		history:   conversation.NewHistory(cfg.HistorySize),
		seen:      conversation.NewSeenWindow(cfg.SeenWindow),
		policy: policy.New(policy.Config{
			Nick:          cfg.Nick,
			ReplyToAll:    cfg.ReplyToAll,
			KnownBots:     cfg.KnownBots,
			ReplyDelayMin: cfg.ReplyDelayMin,
			ReplyDelayMax: cfg.ReplyDelayMax,
		}),
		jobs: bus.NewJobQueue(bus.DefaultQueueSize),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Chatter {
		ch, err := policy.NewChatter(policy.ChatterConfig{
			Min:        cfg.ChatterMinInterval,
			Max:        cfg.ChatterMaxInterval,
			Cron:       cfg.ChatterCron,
			Trigger:    cfg.ChatterTrigger,
			QuietAfter: cfg.ChatterQuietAfter,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		s.chatter = ch
	}

	s.codecOpts = []irc.CodecOption{irc.WithMaxLineBytes(cfg.MaxLineBytes)}
	if cfg.EncodingFallback != "" {
		enc, err := irc.LookupEncoding(cfg.EncodingFallback)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		s.codecOpts = append(s.codecOpts, irc.WithFallbackEncoding(enc))
	}

	if s.dial == nil {
		s.dial = connection.NewDialer(connection.DialConfig{
			Host:               cfg.Host,
			Port:               cfg.Port,
			TLS:                cfg.TLS,
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
			ConnectTimeout:     cfg.ConnectTimeout,
			HandshakeTimeout:   cfg.HandshakeTimeout,
		})
	}

	s.mgr = connection.NewManager(s.dial, connection.Options{
		Nick:          cfg.Nick,
		Realname:      cfg.Realname,
		Password:      cfg.Password,
		RateLimit:     cfg.RateLimit,
		ReadTimeout:   cfg.ReadTimeout,
		MaxAttempts:   cfg.MaxConnectionAttempts,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
		BackoffJitter: cfg.BackoffJitter,
		QuitMessage:   cfg.QuitMessage,
	}, connection.Hooks{
		OnState: func(st connection.State) { s.metrics.SetState(int(st)) },
		OnRetry: func(int, time.Duration, error) { s.metrics.Reconnect() },
		OnSend:  s.metrics.LineSent,
	})
	return s, nil
}

func (s *Session) Nick() string {
	return s.cfg.Nick
}

// Run keeps the bot connected until ctx is done. It returns nil on shutdown
// and connection.ErrRetriesExhausted when the retry cap is hit.
func (s *Session) Run(ctx context.Context) error {
	logger.InfoCF("bot", "Starting bot", map[string]interface{}{
		"nick":    s.cfg.Nick,
		"channel": s.cfg.Channel,
		"server":  s.cfg.Address(),
		"tls":     s.cfg.TLS,
		"model":   s.cfg.Model,
	})
	err := s.mgr.Run(ctx, s)
	s.jobs.Close()
	return err
}

// Serve implements connection.Handler for one established connection.
func (s *Session) Serve(ctx context.Context, conn *connection.Manager) error {
	s.history.Reset()

	workCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.replyWorker(workCtx, conn)
	}()
	if s.chatter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.chatterLoop(workCtx, conn)
		}()
	}

	defer func() {
		cancel()
		wg.Wait()
		if stale := s.jobs.Drain(); len(stale) > 0 {
			s.metrics.ReplyDiscarded(len(stale))
			logger.WarnCF("bot", "Discarding pending replies", map[string]interface{}{
				"nick":  s.cfg.Nick,
				"count": len(stale),
			})
		}
	}()

	return s.readLoop(ctx, conn, irc.NewLineCodec(s.codecOpts...))
}

// Disconnected implements connection.Handler.
func (s *Session) Disconnected(err error) {
	s.history.Reset()
	if err != nil {
		logger.DebugCF("bot", "Connection ended", map[string]interface{}{
			"nick":  s.cfg.Nick,
			"error": err.Error(),
		})
	}
}

func (s *Session) readLoop(ctx context.Context, conn *connection.Manager, codec *irc.LineCodec) error {
	buf := make([]byte, readChunkSize)
	pinged := false

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			pinged = false
			if ferr := codec.Feed(buf[:n]); ferr != nil {
				return ferr
			}
			for line := range codec.Lines() {
				if herr := s.handleLine(ctx, conn, line); herr != nil {
					return herr
				}
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if !errors.Is(err, connection.ErrReadTimeout) {
			return fmt.Errorf("read: %w", err)
		}
		if pinged {
			return connection.ErrPingTimeout
		}
		pinged = true
		logger.DebugCF("bot", "Idle, sending keepalive", map[string]interface{}{"nick": s.cfg.Nick})
		if err := conn.Send(ctx, irc.Ping(strconv.FormatInt(s.now().Unix(), 10))); err != nil {
			return fmt.Errorf("keepalive: %w", err)
		}
	}
}

// handleLine dispatches one protocol line. A non-nil error ends the
// connection.
func (s *Session) handleLine(ctx context.Context, conn *connection.Manager, line string) error {
	s.metrics.LineReceived()

	msg, err := irc.Parse(line)
	if err != nil {
		logger.DebugCF("bot", "Discarding unparsable line", map[string]interface{}{
			"nick":  s.cfg.Nick,
			"line":  line,
			"error": err.Error(),
		})
		return nil
	}

	switch msg.Command {
	case irc.CmdPing:
		token, _ := msg.PingToken()
		return conn.Send(ctx, irc.Pong(token))

	case irc.RplWelcome:
		conn.MarkRegistered()
		logger.InfoCF("bot", "Registered", map[string]interface{}{
			"nick":    s.cfg.Nick,
			"conn_id": conn.ConnID(),
		})
		return conn.Send(ctx, irc.Join(s.cfg.Channel))

	case irc.CmdJoin:
		nick, channel, ok := msg.Joined()
		if !ok || !irc.EqualFold(nick, s.cfg.Nick) || !irc.EqualFold(channel, s.cfg.Channel) {
			return nil
		}
		conn.MarkJoined()
		logger.InfoCF("bot", "Joined channel", map[string]interface{}{
			"nick":    s.cfg.Nick,
			"channel": channel,
		})
		return conn.Send(ctx, irc.Privmsg(s.cfg.Channel, s.cfg.Nick+" reporting in!"))

	case irc.CmdPrivmsg:
		s.handlePrivmsg(conn, msg, line)
		return nil

	case irc.CmdError:
		return fmt.Errorf("%w: %s", ErrServerClosedLink, msg.Trailing())
	}
	return nil
}

func (s *Session) handlePrivmsg(conn *connection.Manager, msg irc.Message, line string) {
	speaker, target, text, ok := msg.Privmsg()
	if !ok {
		return
	}
	if irc.EqualFold(speaker, s.cfg.Nick) {
		return
	}
	// Only chat lines go through the seen window. Numerics, PING and JOIN
	// legitimately repeat after a reconnect and must still be handled.
	if s.seen.Seen(line) {
		s.metrics.Duplicate()
		logger.DebugCF("bot", "Ignoring repeated line", map[string]interface{}{"nick": s.cfg.Nick, "speaker": speaker})
		return
	}

	s.history.Record(conversation.RoleUser, speaker, text)
	if s.chatter != nil && irc.IsChannel(target) {
		s.chatter.Heard(s.now())
	}

	decision := s.policy.Decide(speaker, target, text)
	if !decision.Respond {
		logger.DebugCF("bot", "Not replying", map[string]interface{}{
			"nick":    s.cfg.Nick,
			"speaker": speaker,
			"reason":  decision.Reason,
		})
		return
	}

	job := bus.NewReplyJob(speaker, decision.ReplyTo, text, conn.Epoch())
	if !s.jobs.Publish(job) {
		s.metrics.Reply(metrics.OutcomeDropped)
		logger.WarnCF("bot", "Reply queue full, dropping job", map[string]interface{}{
			"nick":    s.cfg.Nick,
			"speaker": speaker,
		})
		return
	}
	logger.DebugCF("bot", "Queued reply", map[string]interface{}{
		"nick":     s.cfg.Nick,
		"job_id":   job.ID.String(),
		"reply_to": job.ReplyTo,
		"reason":   decision.Reason,
	})
}

// Status is a point-in-time view of a session.
type Status struct {
	Nick    string
	Channel string
	State   connection.State
	Epoch   uint64
	ConnID  string
	Turns   int
	Pending int
}

func (s *Session) Status() Status {
	return Status{
		Nick:    s.cfg.Nick,
		Channel: s.cfg.Channel,
		State:   s.mgr.State(),
		Epoch:   s.mgr.Epoch(),
		ConnID:  s.mgr.ConnID(),
		Turns:   s.history.Len(),
		Pending: s.jobs.Len(),
	}
}
