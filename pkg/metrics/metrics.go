// Package metrics exposes per-bot Prometheus counters and the /health,
// /ready and /metrics HTTP endpoints.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSent      = "sent"
	OutcomeFallback  = "fallback"
	OutcomeDropped   = "dropped"
	OutcomeDiscarded = "discarded"
)

var (
	once sync.Once

	linesReceived     *prometheus.CounterVec
	linesSent         *prometheus.CounterVec
	duplicates        *prometheus.CounterVec
	replies           *prometheus.CounterVec
	reconnects        *prometheus.CounterVec
	chatter           *prometheus.CounterVec
	completionSeconds *prometheus.HistogramVec
	connectionState   *prometheus.GaugeVec
)

// Init registers metrics with the default registry (idempotent).
func Init() {
	once.Do(func() {
		linesReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ircbots_lines_received_total", Help: "Protocol lines read from the server"}, []string{"bot"})
		linesSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ircbots_lines_sent_total", Help: "Protocol lines written to the server"}, []string{"bot", "command"})
		duplicates = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ircbots_duplicate_lines_total", Help: "Chat lines suppressed by the seen-line window"}, []string{"bot"})
		replies = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ircbots_replies_total", Help: "Reply jobs by outcome"}, []string{"bot", "outcome"})
		reconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ircbots_reconnect_attempts_total", Help: "Connection retries scheduled"}, []string{"bot"})
		chatter = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ircbots_chatter_total", Help: "Unprompted remarks posted"}, []string{"bot"})
		completionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "ircbots_completion_duration_seconds", Help: "Completion request latency", Buckets: prometheus.DefBuckets}, []string{"bot"})
		connectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "ircbots_connection_state", Help: "Connection state (0=disconnected 1=connecting 2=registering 3=registered 4=joined 5=terminated)"}, []string{"bot"})
	})
}

// Bot is the metric set of one bot. A nil *Bot records nothing.
type Bot struct {
	name string
}

func ForBot(name string) *Bot {
	Init()
	return &Bot{name: name}
}

func (b *Bot) LineReceived() {
	if b != nil {
		linesReceived.WithLabelValues(b.name).Inc()
	}
}

func (b *Bot) LineSent(command string) {
	if b != nil {
		linesSent.WithLabelValues(b.name, command).Inc()
	}
}

func (b *Bot) Duplicate() {
	if b != nil {
		duplicates.WithLabelValues(b.name).Inc()
	}
}

func (b *Bot) Reply(outcome string) {
	if b != nil {
		replies.WithLabelValues(b.name, outcome).Inc()
	}
}

func (b *Bot) ReplyDiscarded(n int) {
	if b != nil && n > 0 {
		replies.WithLabelValues(b.name, OutcomeDiscarded).Add(float64(n))
	}
}

func (b *Bot) Reconnect() {
	if b != nil {
		reconnects.WithLabelValues(b.name).Inc()
	}
}

func (b *Bot) Chatter() {
	if b != nil {
		chatter.WithLabelValues(b.name).Inc()
	}
}

func (b *Bot) ObserveCompletion(d time.Duration) {
	if b != nil {
		completionSeconds.WithLabelValues(b.name).Observe(d.Seconds())
	}
}

// SetState records the numeric connection state.
func (b *Bot) SetState(state int) {
	if b != nil {
		connectionState.WithLabelValues(b.name).Set(float64(state))
	}
}
