package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// TestDefaultConfig_Connection verifies connection defaults
func TestDefaultConfig_Connection(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Host != "localhost" || cfg.Port != 6667 {
		t.Errorf("default address = %s, want localhost:6667", cfg.Address())
	}
	if cfg.RateLimit != 2*time.Second {
		t.Errorf("RateLimit = %s, want 2s", cfg.RateLimit)
	}
	if cfg.MaxConnectionAttempts != 0 {
		t.Error("MaxConnectionAttempts should default to unlimited")
	}
	if !cfg.BackoffJitter {
		t.Error("BackoffJitter should be enabled by default")
	}
}

// TestDefaultConfig_Conversation verifies conversation defaults
func TestDefaultConfig_Conversation(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HistorySize != 10 {
		t.Errorf("HistorySize = %d, want 10", cfg.HistorySize)
	}
	if cfg.SeenWindow != 100 {
		t.Errorf("SeenWindow = %d, want 100", cfg.SeenWindow)
	}
	if cfg.ReplyToAll || cfg.Chatter {
		t.Error("reply_to_all and chatter should be off by default")
	}
	if cfg.Model != "llama3.2:3b" {
		t.Errorf("Model = %q, want %q", cfg.Model, "llama3.2:3b")
	}
}

func TestLoadConfig_YAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "r2d2.yml", `
nick: R2D2
channel: "#droids"
host: irc.example.net
port: 6697
tls: true
rate_limit: 1100ms
reply_to_all: true
known_bots: [C3PO, Leia]
chatter: true
chatter_min_interval: 5s
chatter_max_interval: 10s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Nick != "R2D2" || cfg.Channel != "#droids" {
		t.Fatalf("unexpected identity: %s %s", cfg.Nick, cfg.Channel)
	}
	if cfg.Address() != "irc.example.net:6697" || !cfg.TLS {
		t.Fatalf("unexpected server: %s tls=%v", cfg.Address(), cfg.TLS)
	}
	if cfg.RateLimit != 1100*time.Millisecond {
		t.Fatalf("RateLimit = %s, want 1.1s", cfg.RateLimit)
	}
	if len(cfg.KnownBots) != 2 || cfg.KnownBots[1] != "Leia" {
		t.Fatalf("unexpected known bots: %v", cfg.KnownBots)
	}
	if cfg.HistorySize != 10 || cfg.ReadTimeout != 60*time.Second {
		t.Fatalf("expected untouched defaults to survive, got history=%d read=%s", cfg.HistorySize, cfg.ReadTimeout)
	}
	if cfg.SystemPrompt != DefaultPrompt {
		t.Fatalf("expected default prompt, got %q", cfg.SystemPrompt)
	}
	if cfg.Path != path {
		t.Fatalf("expected Path %q, got %q", path, cfg.Path)
	}
}

func TestLoadConfig_PromptFileRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "yoda.md", "Speak like Yoda you must.\n")
	path := writeFile(t, dir, "yoda.yml", "nick: Yoda\nchannel: '#dagobah'\nprompt: yoda.md\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.SystemPrompt != "Speak like Yoda you must." {
		t.Fatalf("expected prompt file contents, got %q", cfg.SystemPrompt)
	}
}

func TestLoadConfig_PromptLiteral(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "han.yml", "nick: Han\nchannel: '#falcon'\nprompt: You are a smuggler.\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.SystemPrompt != "You are a smuggler." {
		t.Fatalf("expected literal prompt, got %q", cfg.SystemPrompt)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "leia.yml", "nick: Leia\nchannel: '#rebels'\nhost: yavin\n")

	cfg, err := loadConfig(path, env.Options{Environment: map[string]string{
		"IRCBOT_HOST":     "hoth.example.org",
		"IRCBOT_PORT":     "7000",
		"IRCBOT_LLM_NODE": "ollama1",
		"IRCBOT_MODEL":    "qwen2.5:7b",
	}})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Address() != "hoth.example.org:7000" {
		t.Fatalf("expected env host/port override, got %s", cfg.Address())
	}
	if cfg.LLMNode != "ollama1" || cfg.Model != "qwen2.5:7b" {
		t.Fatalf("expected env llm overrides, got %q %q", cfg.LLMNode, cfg.Model)
	}
}

func TestLoadConfig_ProcessEnv(t *testing.T) {
	t.Setenv("IRCBOT_PASSWORD", "s3cret")
	dir := t.TempDir()
	path := writeFile(t, dir, "c3po.yml", "nick: C3PO\nchannel: '#droids'\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Password != "s3cret" {
		t.Fatalf("expected password from env, got %q", cfg.Password)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Nick = "bad nick"
	cfg.Channel = "nochannel"
	cfg.Port = 70000

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("expected joined errors, got %T", err)
	}
	if got := len(joined.Unwrap()); got != 3 {
		t.Fatalf("expected 3 problems, got %d: %v", got, err)
	}
}

func TestValidate_Chatter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Nick = "Bot"
	cfg.Channel = "#test"
	cfg.Chatter = true
	cfg.ChatterCron = "*/5 * * * *"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid cron chatter, got %v", err)
	}

	cfg.ChatterCron = "every now and then"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid cron to be rejected")
	}

	cfg.ChatterCron = ""
	cfg.ChatterMinInterval = time.Minute
	cfg.ChatterMaxInterval = time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected inverted interval to be rejected")
	}
}

func TestValidate_ChatterTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Nick = "Bot"
	cfg.Channel = "#test"
	cfg.Chatter = true
	if cfg.ChatterTrigger != "new_turns" {
		t.Fatalf("expected new_turns by default, got %q", cfg.ChatterTrigger)
	}

	cfg.ChatterTrigger = "quiet"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected quiet trigger to be accepted, got %v", err)
	}
	cfg.ChatterQuietAfter = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected quiet trigger without a threshold to be rejected")
	}

	cfg.ChatterQuietAfter = time.Minute
	cfg.ChatterTrigger = "whenever"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown trigger to be rejected")
	}
}

func TestValidate_EncodingFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Nick = "Bot"
	cfg.Channel = "#test"
	cfg.EncodingFallback = "latin1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected latin1 to be accepted, got %v", err)
	}
	cfg.EncodingFallback = "klingon-8"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown encoding to be rejected")
	}
}

func TestLoadAll_DirectoryAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yml", "nick: Alpha\nchannel: '#x'\n")
	writeFile(t, dir, "b.yaml", "nick: Beta\nchannel: '#x'\n")
	writeFile(t, dir, "notes.txt", "not a config")

	cfgs, err := LoadAll(dir)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(cfgs) != 2 || cfgs[0].Nick != "Alpha" || cfgs[1].Nick != "Beta" {
		t.Fatalf("unexpected configs: %d", len(cfgs))
	}

	writeFile(t, dir, "c.yml", "nick: alpha\nchannel: '#y'\n")
	if _, err := LoadAll(dir); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected duplicate nick to be rejected, got %v", err)
	}
}

func TestLoadAll_EmptyDir(t *testing.T) {
	if _, err := LoadAll(t.TempDir()); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected empty dir error, got %v", err)
	}
}

func TestLoadRuntimeConfig(t *testing.T) {
	t.Setenv("IRCBOTS_LOG_LEVEL", "debug")
	t.Setenv("IRCBOTS_METRICS_ADDR", ":9102")

	rc, err := LoadRuntimeConfig()
	if err != nil {
		t.Fatalf("LoadRuntimeConfig failed: %v", err)
	}
	if rc.LogLevel != "debug" || rc.LogFormat != "text" || rc.MetricsAddr != ":9102" {
		t.Fatalf("unexpected runtime config: %+v", rc)
	}
	if len(rc.LLMHeaders) != 0 {
		t.Fatalf("expected no LLM headers by default, got %v", rc.LLMHeaders)
	}
}

func TestLoadRuntimeConfig_LLMHeaders(t *testing.T) {
	t.Setenv("IRCBOTS_LLM_HEADERS", "X-Org:droids,X-Route:gpu-2")

	rc, err := LoadRuntimeConfig()
	if err != nil {
		t.Fatalf("LoadRuntimeConfig failed: %v", err)
	}
	if rc.LLMHeaders["X-Org"] != "droids" || rc.LLMHeaders["X-Route"] != "gpu-2" || len(rc.LLMHeaders) != 2 {
		t.Fatalf("unexpected LLM headers: %v", rc.LLMHeaders)
	}
}
