// ircbots - LLM-backed IRC bots
// License: MIT
//
// Copyright (c) 2026 ircbots contributors

// Package team runs several bots in one process.
package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/ircbots/pkg/bot"
	"github.com/dotsetgreg/ircbots/pkg/config"
	"github.com/dotsetgreg/ircbots/pkg/connection"
	"github.com/dotsetgreg/ircbots/pkg/logger"
	"github.com/dotsetgreg/ircbots/pkg/metrics"
	"github.com/dotsetgreg/ircbots/pkg/providers"
)

// DefaultStagger spaces bot start-ups so a team does not hit the server
// with simultaneous registrations.
const DefaultStagger = 500 * time.Millisecond

// Bot is the part of bot.Session the team drives.
type Bot interface {
	Nick() string
	Run(ctx context.Context) error
	Status() bot.Status
}

type Manager struct {
	bots    []Bot
	stagger time.Duration
	mu      sync.RWMutex
	errs    map[string]error
}

type Option func(*Manager)

func WithStagger(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.stagger = d
		}
	}
}

func NewManager(bots []Bot, opts ...Option) (*Manager, error) {
	if len(bots) == 0 {
		return nil, fmt.Errorf("team has no bots")
	}
	m := &Manager{
		bots:    bots,
		stagger: DefaultStagger,
		errs:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Build creates one session per config, sharing completion clients between
// bots that use the same llm_node. Nothing is started; a failure leaves no
// session behind.
func Build(cfgs []*config.BotConfig, registry *providers.Registry, opts ...Option) (*Manager, error) {
	logger.InfoC("team", "Initializing team")

	bots := make([]Bot, 0, len(cfgs))
	var buildErrors []string
	for _, cfg := range cfgs {
		completer, err := registry.Get(cfg.LLMNode)
		if err != nil {
			buildErrors = append(buildErrors, fmt.Sprintf("%s: %v", cfg.Nick, err))
			continue
		}
		s, err := bot.New(cfg, completer, bot.WithMetrics(metrics.ForBot(cfg.Nick)))
		if err != nil {
			buildErrors = append(buildErrors, fmt.Sprintf("%s: %v", cfg.Nick, err))
			continue
		}
		bots = append(bots, s)
	}
	if len(buildErrors) > 0 {
		return nil, fmt.Errorf("%w: failed to build bots: %s", config.ErrInvalidConfig, strings.Join(buildErrors, "; "))
	}

	logger.InfoCF("team", "Team initialization completed", map[string]interface{}{
		"bots":        len(bots),
		"llm_clients": registry.Len(),
	})
	return NewManager(bots, opts...)
}

// Run starts every bot, staggered, and waits for all of them. A bot that
// gives up does not stop its teammates. The joined error lists every bot
// that ended with an error; it is nil after a clean shutdown.
func (m *Manager) Run(ctx context.Context) error {
	logger.InfoCF("team", "Starting all bots", map[string]interface{}{"count": len(m.bots)})

	var wg sync.WaitGroup
	for i, b := range m.bots {
		if i > 0 && m.stagger > 0 {
			timer := time.NewTimer(m.stagger)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			break
		}

		wg.Go(func() {
			err := b.Run(ctx)
			if err != nil {
				logger.ErrorCF("team", "Bot stopped with error", map[string]interface{}{
					"nick":  b.Nick(),
					"error": err.Error(),
				})
				m.mu.Lock()
				m.errs[b.Nick()] = err
				m.mu.Unlock()
				return
			}
			logger.InfoCF("team", "Bot stopped", map[string]interface{}{"nick": b.Nick()})
		})
	}
	wg.Wait()

	m.mu.RLock()
	defer m.mu.RUnlock()
	errs := make([]error, 0, len(m.errs))
	for _, b := range m.bots {
		if err, ok := m.errs[b.Nick()]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", b.Nick(), err))
		}
	}
	logger.InfoC("team", "All bots stopped")
	return errors.Join(errs...)
}

func (m *Manager) Status() []bot.Status {
	out := make([]bot.Status, 0, len(m.bots))
	for _, b := range m.bots {
		out = append(out, b.Status())
	}
	return out
}

// Ready returns nil once every bot has joined its channel.
func (m *Manager) Ready() error {
	var waiting []string
	for _, st := range m.Status() {
		if st.State != connection.StateJoined {
			waiting = append(waiting, fmt.Sprintf("%s (%s)", st.Nick, st.State))
		}
	}
	if len(waiting) > 0 {
		return fmt.Errorf("not joined: %s", strings.Join(waiting, ", "))
	}
	return nil
}

func (m *Manager) Len() int {
	return len(m.bots)
}
