package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dotsetgreg/ircbots/pkg/irc"
)

var ErrInvalidConfig = errors.New("invalid config")

const DefaultPrompt = "You are a helpful droid."

// BotConfig is one bot's YAML file. Durations accept Go duration strings
// ("2s", "1m30s").
type BotConfig struct {
	Nick     string `yaml:"nick"`
	Channel  string `yaml:"channel"`
	Realname string `yaml:"realname"`

	Host                  string `yaml:"host" env:"IRCBOT_HOST"`
	Port                  int    `yaml:"port" env:"IRCBOT_PORT"`
	TLS                   bool   `yaml:"tls" env:"IRCBOT_TLS"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`
	Password              string `yaml:"password" env:"IRCBOT_PASSWORD"`

	LLMNode     string  `yaml:"llm_node" env:"IRCBOT_LLM_NODE"`
	Model       string  `yaml:"model" env:"IRCBOT_MODEL"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// Prompt is a path to a prompt file or the prompt text itself.
	Prompt string `yaml:"prompt"`

	ReplyToAll bool     `yaml:"reply_to_all"`
	KnownBots  []string `yaml:"known_bots"`

	Chatter            bool          `yaml:"chatter"`
	ChatterMinInterval time.Duration `yaml:"chatter_min_interval"`
	ChatterMaxInterval time.Duration `yaml:"chatter_max_interval"`
	ChatterCron        string        `yaml:"chatter_cron"`
	// ChatterTrigger is "new_turns" or "quiet".
	ChatterTrigger    string        `yaml:"chatter_trigger"`
	ChatterQuietAfter time.Duration `yaml:"chatter_quiet_after"`

	HistorySize int `yaml:"history_size"`
	SeenWindow  int `yaml:"seen_window"`

	RateLimit             time.Duration `yaml:"rate_limit"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	HandshakeTimeout      time.Duration `yaml:"handshake_timeout"`
	ReadTimeout           time.Duration `yaml:"read_timeout"`
	MaxConnectionAttempts int           `yaml:"max_connection_attempts"`
	BackoffBase           time.Duration `yaml:"backoff_base"`
	BackoffMax            time.Duration `yaml:"backoff_max"`
	BackoffJitter         bool          `yaml:"backoff_jitter"`

	ReplyDelayMin     time.Duration `yaml:"reply_delay_min"`
	ReplyDelayMax     time.Duration `yaml:"reply_delay_max"`
	CompletionTimeout time.Duration `yaml:"completion_timeout"`
	MaxReplyLines     int           `yaml:"max_reply_lines"`

	MaxLineBytes     int    `yaml:"max_line_bytes"`
	EncodingFallback string `yaml:"encoding_fallback"`
	QuitMessage      string `yaml:"quit_message"`

	// SystemPrompt is the resolved prompt text, filled in by LoadConfig.
	SystemPrompt string `yaml:"-"`
	// Path is the file this config was read from.
	Path string `yaml:"-"`
}

func DefaultConfig() *BotConfig {
	return &BotConfig{
		Host:                  "localhost",
		Port:                  6667,
		Model:                 "llama3.2:3b",
		Temperature:           0.7,
		MaxTokens:             150,
		Prompt:                DefaultPrompt,
		ChatterMinInterval:    20 * time.Second,
		ChatterMaxInterval:    60 * time.Second,
		ChatterTrigger:        "new_turns",
		ChatterQuietAfter:     60 * time.Second,
		HistorySize:           10,
		SeenWindow:            100,
		RateLimit:             2 * time.Second,
		ConnectTimeout:        15 * time.Second,
		HandshakeTimeout:      10 * time.Second,
		ReadTimeout:           60 * time.Second,
		MaxConnectionAttempts: 0,
		BackoffBase:           2 * time.Second,
		BackoffMax:            60 * time.Second,
		BackoffJitter:         true,
		ReplyDelayMin:         1 * time.Second,
		ReplyDelayMax:         3 * time.Second,
		CompletionTimeout:     60 * time.Second,
		MaxReplyLines:         3,
		MaxLineBytes:          irc.DefaultMaxLineBytes,
		QuitMessage:           "Bot shutting down",
	}
}

// LoadConfig reads path over DefaultConfig, applies IRCBOT_* environment
// overrides, resolves the prompt and validates the result.
func LoadConfig(path string) (*BotConfig, error) {
	return loadConfig(path, env.Options{})
}

func loadConfig(path string, opts env.Options) (*BotConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("%w: environment overrides: %v", ErrInvalidConfig, err)
	}

	cfg.Path = path
	prompt, err := resolvePrompt(cfg.Prompt, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.SystemPrompt = prompt

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// resolvePrompt treats value as a file when one exists at that path (as given
// or relative to the config directory) and as literal prompt text otherwise.
func resolvePrompt(value, baseDir string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultPrompt, nil
	}
	if strings.ContainsAny(value, "\n") {
		return value, nil
	}

	candidates := []string{expandHome(value)}
	if !filepath.IsAbs(candidates[0]) && baseDir != "" {
		candidates = append(candidates, filepath.Join(baseDir, candidates[0]))
	}
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("read prompt file %s: %w", p, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return value, nil
}

// Validate reports every problem at once, each wrapping ErrInvalidConfig.
func (c *BotConfig) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.Nick == "" {
		bad("nick is required")
	} else if strings.ContainsAny(c.Nick, " \t\r\n") || c.Nick[0] == ':' || c.Nick[0] == '#' {
		bad("nick %q is not a valid IRC nickname", c.Nick)
	}
	if c.Channel == "" {
		bad("channel is required")
	} else if strings.ContainsAny(c.Channel, " \t\r\n,") || !irc.IsChannel(c.Channel) {
		bad("channel %q must start with # & + or ! and contain no spaces", c.Channel)
	}
	if strings.TrimSpace(c.Host) == "" {
		bad("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		bad("port %d out of range 1-65535", c.Port)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		bad("temperature %.2f out of range 0-2", c.Temperature)
	}
	if c.MaxTokens < 0 {
		bad("max_tokens must not be negative")
	}
	if c.HistorySize < 1 {
		bad("history_size must be at least 1")
	}
	if c.SeenWindow < 0 {
		bad("seen_window must not be negative")
	}
	if c.MaxConnectionAttempts < 0 {
		bad("max_connection_attempts must not be negative")
	}
	if c.MaxReplyLines < 1 {
		bad("max_reply_lines must be at least 1")
	}
	if c.MaxLineBytes < 0 {
		bad("max_line_bytes must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"rate_limit":         c.RateLimit,
		"connect_timeout":    c.ConnectTimeout,
		"handshake_timeout":  c.HandshakeTimeout,
		"read_timeout":       c.ReadTimeout,
		"backoff_base":       c.BackoffBase,
		"backoff_max":        c.BackoffMax,
		"reply_delay_min":    c.ReplyDelayMin,
		"reply_delay_max":    c.ReplyDelayMax,
		"completion_timeout": c.CompletionTimeout,
	} {
		if d < 0 {
			bad("%s must not be negative", name)
		}
	}
	if c.ReadTimeout == 0 {
		bad("read_timeout must be positive")
	}
	if c.BackoffMax < c.BackoffBase {
		bad("backoff_max %s is shorter than backoff_base %s", c.BackoffMax, c.BackoffBase)
	}
	if c.ReplyDelayMax < c.ReplyDelayMin {
		bad("reply_delay_max %s is shorter than reply_delay_min %s", c.ReplyDelayMax, c.ReplyDelayMin)
	}
	if c.Chatter {
		if c.ChatterCron != "" {
			if !gronx.New().IsValid(c.ChatterCron) {
				bad("chatter_cron %q is not a valid cron expression", c.ChatterCron)
			}
		} else if c.ChatterMinInterval <= 0 || c.ChatterMaxInterval < c.ChatterMinInterval {
			bad("chatter interval %s-%s is not a valid range", c.ChatterMinInterval, c.ChatterMaxInterval)
		}
		switch c.ChatterTrigger {
		case "new_turns":
		case "quiet":
			if c.ChatterQuietAfter <= 0 {
				bad("chatter_quiet_after must be positive with the quiet trigger")
			}
		default:
			bad("chatter_trigger %q must be new_turns or quiet", c.ChatterTrigger)
		}
	}
	if c.EncodingFallback != "" {
		if _, err := irc.LookupEncoding(c.EncodingFallback); err != nil {
			bad("encoding_fallback: %v", err)
		}
	}
	if slices.Contains(c.KnownBots, "") {
		bad("known_bots must not contain empty names")
	}
	return errors.Join(errs...)
}

// Address is host:port for dialing.
func (c *BotConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
