package policy

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
)

const (
	DefaultChatterMin        = 20 * time.Second
	DefaultChatterMax        = 60 * time.Second
	DefaultChatterQuietAfter = 60 * time.Second
)

// Chatter triggers.
const (
	// TriggerNewTurns makes a remark due once users spoke since the last one.
	TriggerNewTurns = "new_turns"
	// TriggerQuiet makes a remark due once the channel has been silent for
	// the quiet threshold.
	TriggerQuiet = "quiet"
)

// ChatterConfig is the chatter part of a bot config.
type ChatterConfig struct {
	Min        time.Duration
	Max        time.Duration
	Cron       string
	Trigger    string
	QuietAfter time.Duration
}

// Chatter schedules unprompted remarks. Either a random interval in
// [min, max] or a cron expression sets the cadence; the trigger decides
// whether a remark is due at each tick. Heard may be called from any
// goroutine; the rest belongs to the session's chatter task.
type Chatter struct {
	min        time.Duration
	max        time.Duration
	cron       string
	trigger    string
	quietAfter time.Duration

	lastSeq uint64
	// lastActivity is the unix-nano time of the latest channel line.
	lastActivity atomic.Int64
}

func NewChatter(cfg ChatterConfig) (*Chatter, error) {
	cronExpr := strings.TrimSpace(cfg.Cron)
	if cronExpr != "" && !gronx.New().IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid chatter cron expression %q", cronExpr)
	}
	trigger := strings.TrimSpace(cfg.Trigger)
	switch trigger {
	case "":
		trigger = TriggerNewTurns
	case TriggerNewTurns, TriggerQuiet:
	default:
		return nil, fmt.Errorf("unknown chatter trigger %q", cfg.Trigger)
	}
	minD, maxD := cfg.Min, cfg.Max
	if minD <= 0 {
		minD = DefaultChatterMin
	}
	if maxD < minD {
		maxD = minD
	}
	quiet := cfg.QuietAfter
	if quiet <= 0 {
		quiet = DefaultChatterQuietAfter
	}
	return &Chatter{min: minD, max: maxD, cron: cronExpr, trigger: trigger, quietAfter: quiet}, nil
}

// NextDelay returns how long to sleep before the next chatter check.
func (c *Chatter) NextDelay(now time.Time) time.Duration {
	if c.cron != "" {
		next, err := gronx.NextTickAfter(c.cron, now, false)
		if err == nil && next.After(now) {
			return next.Sub(now)
		}
	}
	return uniform(c.min, c.max)
}

// Heard records channel activity at now.
func (c *Chatter) Heard(now time.Time) {
	c.lastActivity.Store(now.UnixNano())
}

// ShouldSpeak reports whether a remark is due. userSeq counts the user
// turns seen so far.
func (c *Chatter) ShouldSpeak(userSeq uint64, now time.Time) bool {
	if c.trigger == TriggerQuiet {
		last := c.lastActivity.Load()
		return last == 0 || now.Sub(time.Unix(0, last)) >= c.quietAfter
	}
	return userSeq > c.lastSeq
}

// Spoke records that a remark was emitted at now after userSeq user turns.
// The remark itself counts as activity.
func (c *Chatter) Spoke(userSeq uint64, now time.Time) {
	c.lastSeq = userSeq
	c.Heard(now)
}
