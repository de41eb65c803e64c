package host

import (
	"context"
	"slices"
	"sync"
)

// StaticPermissions is a Permissions over an in-memory list of granted
// origin patterns.
type StaticPermissions struct {
	mu      sync.RWMutex
	origins []string
}

var _ Permissions = (*StaticPermissions)(nil)

// NewStaticPermissions returns StaticPermissions granting origins.
func NewStaticPermissions(origins ...string) *StaticPermissions {
	return &StaticPermissions{origins: slices.Clone(origins)}
}

func (p *StaticPermissions) GrantedOrigins(context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.origins), nil
}

// Set replaces the granted origins.
func (p *StaticPermissions) Set(origins []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.origins = slices.Clone(origins)
}
