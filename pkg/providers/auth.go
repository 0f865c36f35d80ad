package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// KeySource yields the API key sent as a bearer token with each completion
// request.
type KeySource interface {
	Key(ctx context.Context) (string, error)
	// Describe names where the key comes from, for error messages. It never
	// contains the key itself.
	Describe() string
}

type staticKey struct {
	key  string
	node string
}

// StaticKey returns a KeySource for a key taken from the environment.
func StaticKey(key, node string) KeySource {
	return staticKey{key: strings.TrimSpace(key), node: strings.TrimSpace(node)}
}

func (k staticKey) Key(context.Context) (string, error) {
	if k.key == "" {
		return "", fmt.Errorf("API key is empty for %s", k.Describe())
	}
	return k.key, nil
}

func (k staticKey) Describe() string {
	if k.node != "" {
		return "llm_node " + k.node
	}
	return "environment"
}

// keyFile reads the key from disk and reloads it when the file's
// modification time changes, so rotated keys apply without a restart.
type keyFile struct {
	path string

	mu      sync.Mutex
	key     string
	modTime time.Time
}

// KeyFile returns a KeySource backed by a file holding the key. A leading
// "~" is expanded to the home directory.
func KeyFile(path string) KeySource {
	return &keyFile{path: expandHome(path)}
}

func (f *keyFile) Key(context.Context) (string, error) {
	if f.path == "" {
		return "", fmt.Errorf("API key file path is empty")
	}
	info, err := os.Stat(f.path)
	if err != nil {
		return "", fmt.Errorf("stat API key file: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.key != "" && info.ModTime().Equal(f.modTime) {
		return f.key, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("read API key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("API key file %s is empty", f.path)
	}
	f.key, f.modTime = key, info.ModTime()
	return key, nil
}

func (f *keyFile) Describe() string {
	return f.path
}

// authorize sets the bearer header from src.
func authorize(ctx context.Context, req *http.Request, src KeySource) error {
	if src == nil {
		return fmt.Errorf("no API key source")
	}
	key, err := src.Key(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	return nil
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
