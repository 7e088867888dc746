package app

import (
	"strings"
	"sync"

	"github.com/hylla/kollage/internal/domain"
)

// BoardIDPrefix prefixes generated board ids.
const BoardIDPrefix = "board_"

// Registry tracks the board ids claimed during one application session.
// Each service owns one; there is no process-wide registry.
type Registry struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: map[string]struct{}{}}
}

// Claim reserves id. It fails with domain.ErrDuplicateID when already taken.
func (r *Registry) Claim(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return domain.ErrDuplicateID
	}
	r.ids[id] = struct{}{}
	return nil
}

// Release frees id for reuse.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
}

// Allocate claims a fresh prefixed id from gen.
func (r *Registry) Allocate(prefix string, gen IDGenerator) (string, error) {
	for range 8 {
		raw := strings.TrimSpace(gen())
		if raw == "" {
			continue
		}
		if err := r.Claim(prefix + raw); err == nil {
			return prefix + raw, nil
		}
	}
	return "", ErrIDExhausted
}

// Claimed reports whether id is reserved.
func (r *Registry) Claimed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}
