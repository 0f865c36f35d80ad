// Package policy decides whether and where a bot answers a chat line, and
// when it volunteers unprompted remarks.
package policy

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dotsetgreg/ircbots/pkg/irc"
)

const (
	DefaultReplyDelayMin = 1 * time.Second
	DefaultReplyDelayMax = 3 * time.Second
)

const (
	ReasonSelf         = "self"
	ReasonPrivate      = "private"
	ReasonMention      = "mention"
	ReasonReplyToAll   = "reply_to_all"
	ReasonKnownBot     = "known_bot"
	ReasonNotAddressed = "not_addressed"
)

type Config struct {
	Nick          string
	ReplyToAll    bool
	KnownBots     []string
	ReplyDelayMin time.Duration
	ReplyDelayMax time.Duration
}

type Decision struct {
	Respond bool
	ReplyTo string
	Reason  string
}

type Policy struct {
	nick       string
	replyToAll bool
	knownBots  map[string]struct{}
	delayMin   time.Duration
	delayMax   time.Duration
}

func New(cfg Config) *Policy {
	known := make(map[string]struct{}, len(cfg.KnownBots))
	for _, name := range cfg.KnownBots {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		known[irc.ToLower(name)] = struct{}{}
	}

	lo, hi := cfg.ReplyDelayMin, cfg.ReplyDelayMax
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}

	return &Policy{
		nick:       cfg.Nick,
		replyToAll: cfg.ReplyToAll,
		knownBots:  known,
		delayMin:   lo,
		delayMax:   hi,
	}
}

// Decide applies the reply rules to one PRIVMSG. Private messages always
// get an answer sent back to the speaker; channel messages are answered in
// the channel when the bot is mentioned or reply-to-all covers the speaker.
func (p *Policy) Decide(speaker, target, text string) Decision {
	if irc.EqualFold(speaker, p.nick) {
		return Decision{Reason: ReasonSelf}
	}
	if !irc.IsChannel(target) {
		return Decision{Respond: true, ReplyTo: speaker, Reason: ReasonPrivate}
	}
	if irc.ContainsFold(text, p.nick) {
		return Decision{Respond: true, ReplyTo: target, Reason: ReasonMention}
	}
	if !p.replyToAll {
		return Decision{Reason: ReasonNotAddressed}
	}
	if p.IsKnownBot(speaker) {
		return Decision{Reason: ReasonKnownBot}
	}
	return Decision{Respond: true, ReplyTo: target, Reason: ReasonReplyToAll}
}

func (p *Policy) IsKnownBot(nick string) bool {
	_, ok := p.knownBots[irc.ToLower(nick)]
	return ok
}

// ReplyDelay picks a uniform pause in [min, max] so replies read as typed.
func (p *Policy) ReplyDelay() time.Duration {
	return uniform(p.delayMin, p.delayMax)
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
