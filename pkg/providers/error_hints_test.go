package providers

import (
	"strings"
	"testing"
)

func TestAugmentCompletionError_ModelNotFoundHint(t *testing.T) {
	msg := augmentCompletionError("llama3.2:3b", `model "llama3.2:3b" not found, try pulling it first`)
	if !strings.Contains(msg, "ollama pull llama3.2:3b") {
		t.Fatalf("expected pull hint, got %q", msg)
	}
}

func TestAugmentCompletionError_APIKeyHint(t *testing.T) {
	msg := augmentCompletionError("gpt-4o-mini", "Incorrect API key provided: sk-***")
	if !strings.Contains(msg, "_API_KEY") {
		t.Fatalf("expected api key hint, got %q", msg)
	}
}

func TestAugmentCompletionError_PassThrough(t *testing.T) {
	if got := augmentCompletionError("m", "  server overloaded "); got != "server overloaded" {
		t.Fatalf("expected trimmed passthrough, got %q", got)
	}
}
