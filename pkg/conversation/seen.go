package conversation

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultSeenWindow = 100

// SeenWindow remembers the last N distinct raw lines. Lines are never
// re-added, so eviction order is insertion order.
type SeenWindow struct {
	cache *lru.Cache[string, struct{}]
}

// NewSeenWindow returns a window of size n. n == 0 disables dedup.
func NewSeenWindow(n int) *SeenWindow {
	if n <= 0 {
		return &SeenWindow{}
	}
	cache, err := lru.New[string, struct{}](n)
	if err != nil {
		return &SeenWindow{}
	}
	return &SeenWindow{cache: cache}
}

// Seen reports whether line is already in the window and inserts it if not,
// as one atomic step.
func (w *SeenWindow) Seen(line string) bool {
	if w == nil || w.cache == nil {
		return false
	}
	found, _ := w.cache.ContainsOrAdd(line, struct{}{})
	return found
}

func (w *SeenWindow) Len() int {
	if w == nil || w.cache == nil {
		return 0
	}
	return w.cache.Len()
}
