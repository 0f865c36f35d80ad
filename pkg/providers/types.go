// Package providers talks to OpenAI-compatible chat completion backends
// (Ollama, vLLM, hosted APIs) and caches one client per endpoint.
package providers

import (
	"context"
	"strings"

	"github.com/dotsetgreg/ircbots/pkg/conversation"
)

// Message is one entry of a chat completions request.
type Message struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// Request is everything a bot needs to ask for one reply.
type Request struct {
	SystemPrompt string
	Turns        []conversation.Turn
	// Instruction is appended as a final user message without a name, for
	// prompts the bot writes itself.
	Instruction string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completer produces the assistant's next utterance.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// BuildMessages lays out the system prompt, the turns oldest first and the
// optional instruction.
func BuildMessages(req Request) []Message {
	msgs := make([]Message, 0, len(req.Turns)+2)
	if s := strings.TrimSpace(req.SystemPrompt); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: s})
	}
	for _, t := range req.Turns {
		msgs = append(msgs, Message{
			Role:    string(t.Role),
			Name:    messageName(t.Name),
			Content: t.Text,
		})
	}
	if s := strings.TrimSpace(req.Instruction); s != "" {
		msgs = append(msgs, Message{Role: "user", Content: s})
	}
	return msgs
}

// messageName maps an IRC nick onto the [A-Za-z0-9_-]{1,64} alphabet the
// name field accepts.
func messageName(nick string) string {
	if nick == "" {
		return ""
	}
	b := make([]byte, 0, len(nick))
	for i := 0; i < len(nick) && len(b) < 64; i++ {
		c := nick[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b = append(b, c)
		default:
			b = append(b, '_')
		}
	}
	return string(b)
}
