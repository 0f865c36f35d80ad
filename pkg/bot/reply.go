package bot

import (
	"context"
	"strings"
	"time"

	"github.com/dotsetgreg/ircbots/pkg/bus"
	"github.com/dotsetgreg/ircbots/pkg/connection"
	"github.com/dotsetgreg/ircbots/pkg/conversation"
	"github.com/dotsetgreg/ircbots/pkg/irc"
	"github.com/dotsetgreg/ircbots/pkg/logger"
	"github.com/dotsetgreg/ircbots/pkg/metrics"
	"github.com/dotsetgreg/ircbots/pkg/providers"
)

const (
	FallbackReply = "[Had trouble thinking of a response]"

	chatterInstruction = "Add a relevant comment to the ongoing conversation."
	chatterTurns       = 5
	chatterMaxTokens   = 100
	chatterMinLength   = 5
)

func (s *Session) replyWorker(ctx context.Context, conn *connection.Manager) {
	for {
		job, ok := s.jobs.Consume(ctx)
		if !ok {
			return
		}
		if job.Epoch != conn.Epoch() {
			s.metrics.Reply(metrics.OutcomeDiscarded)
			logger.DebugCF("bot", "Discarding reply from previous connection", map[string]interface{}{
				"nick":   s.cfg.Nick,
				"job_id": job.ID.String(),
			})
			continue
		}
		s.reply(ctx, conn, job)
	}
}

func (s *Session) reply(ctx context.Context, conn *connection.Manager, job bus.ReplyJob) {
	if d := s.policy.ReplyDelay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.metrics.Reply(metrics.OutcomeDiscarded)
			return
		case <-timer.C:
		}
	}

	text, err := s.generate(ctx, s.request(s.history.Recent(0), "", s.cfg.Temperature, s.cfg.MaxTokens))
	if ctx.Err() != nil {
		s.metrics.Reply(metrics.OutcomeDiscarded)
		return
	}
	outcome := metrics.OutcomeSent
	if err != nil {
		outcome = metrics.OutcomeFallback
		logger.WarnCF("bot", "Completion failed, sending fallback", map[string]interface{}{
			"nick":   s.cfg.Nick,
			"job_id": job.ID.String(),
			"error":  err.Error(),
		})
	}

	s.history.Record(conversation.RoleAssistant, s.cfg.Nick, text)
	if err := s.say(ctx, conn, job.ReplyTo, text); err != nil {
		logger.WarnCF("bot", "Reply not delivered", map[string]interface{}{
			"nick":     s.cfg.Nick,
			"job_id":   job.ID.String(),
			"reply_to": job.ReplyTo,
			"error":    err.Error(),
		})
		return
	}
	s.metrics.Reply(outcome)
	logger.InfoCF("bot", "Replied", map[string]interface{}{
		"nick":     s.cfg.Nick,
		"reply_to": job.ReplyTo,
		"speaker":  job.Speaker,
		"latency":  s.now().Sub(job.ReceivedAt).Round(time.Millisecond).String(),
	})
}

// say sends text to target as one or more PRIVMSG lines.
func (s *Session) say(ctx context.Context, conn *connection.Manager, target, text string) error {
	for _, line := range irc.SplitText(text, irc.MaxTextBytes, s.cfg.MaxReplyLines) {
		if err := conn.Send(ctx, irc.Privmsg(target, line)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) request(turns []conversation.Turn, instruction string, temperature float64, maxTokens int) providers.Request {
	return providers.Request{
		SystemPrompt: s.cfg.SystemPrompt,
		Turns:        turns,
		Instruction:  instruction,
		Model:        s.cfg.Model,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	}
}

// generate asks the model for a reply. On failure or an empty answer it
// returns FallbackReply together with the cause.
func (s *Session) generate(ctx context.Context, req providers.Request) (string, error) {
	if s.cfg.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CompletionTimeout)
		defer cancel()
	}

	start := s.now()
	text, err := s.completer.Complete(ctx, req)
	s.metrics.ObserveCompletion(s.now().Sub(start))
	if err != nil {
		return FallbackReply, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackReply, errEmptyCompletion
	}
	return text, nil
}

// Respond runs the reply path for a line typed outside IRC (the console).
// The returned text is what the bot would have said; err reports why a
// fallback was used.
func (s *Session) Respond(ctx context.Context, speaker, text string) (string, error) {
	s.history.Record(conversation.RoleUser, speaker, text)
	reply, err := s.generate(ctx, s.request(s.history.Recent(0), "", s.cfg.Temperature, s.cfg.MaxTokens))
	s.history.Record(conversation.RoleAssistant, s.cfg.Nick, reply)
	return reply, err
}

func (s *Session) chatterLoop(ctx context.Context, conn *connection.Manager) {
	for {
		timer := time.NewTimer(s.chatter.NextDelay(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if conn.State() != connection.StateJoined || s.history.Len() == 0 {
			continue
		}
		seq := s.history.UserSeq()
		if !s.chatter.ShouldSpeak(seq, s.now()) {
			continue
		}

		req := s.request(s.history.Recent(chatterTurns), chatterInstruction, min(0.9, s.cfg.Temperature+0.1), chatterMaxTokens)
		thought, err := s.generate(ctx, req)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.WarnCF("bot", "Chatter completion failed", map[string]interface{}{
				"nick":  s.cfg.Nick,
				"error": err.Error(),
			})
			continue
		}
		if len(thought) <= chatterMinLength {
			continue
		}

		s.chatter.Spoke(seq, s.now())
		s.history.Record(conversation.RoleAssistant, s.cfg.Nick, thought)
		if err := s.say(ctx, conn, s.cfg.Channel, thought); err != nil {
			logger.WarnCF("bot", "Chatter not delivered", map[string]interface{}{
				"nick":  s.cfg.Nick,
				"error": err.Error(),
			})
			continue
		}
		s.metrics.Chatter()
	}
}
