package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
)

// RuntimeConfig holds process-wide settings shared by every bot in the
// process. Command-line flags take precedence.
type RuntimeConfig struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text"`
	MetricsAddr string `env:"METRICS_ADDR"`
	// LLMHeaders are extra HTTP headers for every completion request, given
	// as "name:value,name2:value2".
	LLMHeaders map[string]string `env:"LLM_HEADERS"`
}

func LoadRuntimeConfig() (RuntimeConfig, error) {
	var rc RuntimeConfig
	if err := env.ParseWithOptions(&rc, env.Options{Prefix: "IRCBOTS_"}); err != nil {
		return RuntimeConfig{}, fmt.Errorf("%w: runtime environment: %v", ErrInvalidConfig, err)
	}
	return rc, nil
}

// FindConfigs lists *.yml and *.yaml files directly inside each directory,
// sorted by path. Plain file arguments are passed through.
func FindConfigs(paths ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", p, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".yml", ".yaml":
				out = append(out, filepath.Join(p, e.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// LoadAll loads every config FindConfigs returns and rejects duplicate nicks
// on the same server.
func LoadAll(paths ...string) ([]*BotConfig, error) {
	files, err := FindConfigs(paths...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no bot configs found in %s", ErrInvalidConfig, strings.Join(paths, ", "))
	}

	seen := make(map[string]string, len(files))
	cfgs := make([]*BotConfig, 0, len(files))
	for _, f := range files {
		cfg, err := LoadConfig(f)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(cfg.Nick) + "@" + cfg.Address()
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: nick %s on %s is used by both %s and %s", ErrInvalidConfig, cfg.Nick, cfg.Address(), prev, f)
		}
		seen[key] = f
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}
