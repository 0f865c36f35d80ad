// ircbots - LLM-backed IRC bots
// License: MIT
//
// Copyright (c) 2026 ircbots contributors

package providers

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultOllamaPort = 11434
	DefaultModel      = "llama3.2:3b"
	defaultNodePrefix = "OLLAMA"
	defaultAPIKey     = "ollama"
)

// Endpoint is a resolved llm_node.
type Endpoint struct {
	Name       string
	BaseURL    string
	APIKey     string
	APIKeyFile string
	Timeout    time.Duration
}

func (e Endpoint) cacheKey() string {
	return e.BaseURL + "\x00" + e.APIKey + "\x00" + e.APIKeyFile + "\x00" + e.Timeout.String()
}

type globalEnv struct {
	BaseURL        string  `env:"OLLAMA_BASE_URL"`
	APIKey         string  `env:"OLLAMA_API_KEY" envDefault:"ollama"`
	TimeoutSeconds float64 `env:"LLM_TIMEOUT" envDefault:"60"`
}

type nodeEnv struct {
	BaseURL    string `env:"BASE_URL"`
	APIKey     string `env:"API_KEY"`
	APIKeyFile string `env:"API_KEY_FILE"`
}

// Registry hands out one Completer per distinct endpoint. Bots sharing an
// llm_node share a client and its connection pool.
type Registry struct {
	mu      sync.Mutex
	clients map[string]Completer
	environ map[string]string
	headers map[string]string
}

type RegistryOption func(*Registry)

// WithEnvironment resolves env lookups from m instead of the process
// environment.
func WithEnvironment(m map[string]string) RegistryOption {
	return func(r *Registry) {
		r.environ = m
	}
}

// WithHeaders adds fixed headers to every request.
func WithHeaders(h map[string]string) RegistryOption {
	return func(r *Registry) {
		r.headers = h
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{clients: make(map[string]Completer)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) envOptions(prefix string) env.Options {
	return env.Options{Prefix: prefix, Environment: r.environ}
}

// Resolve maps an llm_node value to an endpoint:
//   - "http(s)://..." is used as the API base as-is;
//   - a bare host or IP (optionally with :port) becomes http://host:11434/v1;
//   - anything else names an env prefix: <NAME>_BASE_URL, <NAME>_API_KEY,
//     falling back to OLLAMA_BASE_URL and OLLAMA_API_KEY.
func (r *Registry) Resolve(node string) (Endpoint, error) {
	var global globalEnv
	if err := env.ParseWithOptions(&global, r.envOptions("")); err != nil {
		return Endpoint{}, fmt.Errorf("read LLM environment: %w", err)
	}
	timeout := time.Duration(global.TimeoutSeconds * float64(time.Second))

	node = strings.TrimSpace(node)
	lowered := strings.ToLower(node)

	switch {
	case strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://"):
		return Endpoint{Name: node, BaseURL: strings.TrimRight(node, "/"), APIKey: global.APIKey, Timeout: timeout}, nil
	case node != "" && looksLikeHost(lowered):
		host := lowered
		if _, _, err := net.SplitHostPort(lowered); err != nil {
			host = net.JoinHostPort(lowered, fmt.Sprint(DefaultOllamaPort))
		}
		return Endpoint{Name: node, BaseURL: "http://" + host + "/v1", APIKey: global.APIKey, Timeout: timeout}, nil
	}

	prefix := envPrefix(node)
	var scoped nodeEnv
	if err := env.ParseWithOptions(&scoped, r.envOptions(prefix+"_")); err != nil {
		return Endpoint{}, fmt.Errorf("read %s_* environment: %w", prefix, err)
	}

	ep := Endpoint{
		Name:       strings.ToLower(prefix),
		BaseURL:    strings.TrimRight(firstNonEmpty(scoped.BaseURL, global.BaseURL), "/"),
		APIKey:     firstNonEmpty(scoped.APIKey, global.APIKey),
		APIKeyFile: scoped.APIKeyFile,
		Timeout:    timeout,
	}
	if ep.BaseURL == "" {
		return Endpoint{}, fmt.Errorf("environment variable %s_BASE_URL (or OLLAMA_BASE_URL) not set; cannot reach LLM backend", prefix)
	}
	return ep, nil
}

// Get returns the cached client for node, creating it on first use.
func (r *Registry) Get(node string) (Completer, error) {
	ep, err := r.Resolve(node)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[ep.cacheKey()]; ok {
		return c, nil
	}

	key := StaticKey(firstNonEmpty(ep.APIKey, defaultAPIKey), ep.Name)
	if ep.APIKeyFile != "" {
		key = KeyFile(ep.APIKeyFile)
	}
	c, err := newChatCompletionsClient(ep.Name, ep.BaseURL, DefaultModel, ep.Timeout, key, r.headers)
	if err != nil {
		return nil, err
	}
	r.clients[ep.cacheKey()] = c
	return c, nil
}

// Len reports how many distinct clients have been created.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func looksLikeHost(s string) bool {
	if s == "localhost" || strings.HasPrefix(s, "localhost:") {
		return true
	}
	if strings.HasPrefix(s, "[") {
		return true
	}
	return strings.Contains(s, ".")
}

func envPrefix(node string) string {
	if node == "" {
		return defaultNodePrefix
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, node)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
