package providers

import "strings"

func augmentCompletionError(model, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found") && strings.Contains(lower, "model"):
		return msg + " Hint: the model is not available on this node; run `ollama pull " + model + "` there or change `model` in the bot config."
	case strings.Contains(lower, "incorrect api key") || strings.Contains(lower, "invalid api key"):
		return msg + " Hint: set <NODE>_API_KEY (or OLLAMA_API_KEY) for this llm_node."
	}
	return msg
}
