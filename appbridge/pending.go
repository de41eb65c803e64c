package appbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jmcleod/keriauth/internal/clock"
	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/store"
)

// PendingStore is the durable queue of background-to-App requests, keyed
// by request id, in the session scope.
type PendingStore struct {
	store  *store.Service
	clock  clock.Clock
	logger *slog.Logger
}

// NewPendingStore returns a PendingStore over s.
func NewPendingStore(s *store.Service, c clock.Clock, logger *slog.Logger) *PendingStore {
	return &PendingStore{store: s, clock: c, logger: logger}
}

// Add persists req. More than one outstanding request is allowed but
// logged, since the App surfaces requests one at a time.
func (p *PendingStore) Add(ctx context.Context, req models.PendingBwAppRequest) error {
	if err := store.SetItem(ctx, p.store, models.PendingRequestKind, req.RequestID, req); err != nil {
		return fmt.Errorf("persisting pending request %s: %w", req.RequestID, err)
	}
	ids, err := p.store.ListIDs(ctx, models.PendingRequestKind.Scope, models.PendingRequestKind.Name)
	if err == nil && len(ids) > 1 {
		p.logger.Warn("multiple background requests pending for the app",
			"count", len(ids), "request_id", req.RequestID)
	}
	return nil
}

// Get returns the pending request with id.
func (p *PendingStore) Get(ctx context.Context, id string) (models.PendingBwAppRequest, bool, error) {
	return store.GetItem(ctx, p.store, models.PendingRequestKind, id)
}

// Remove deletes the pending request with id. Removing an unknown id is
// not an error.
func (p *PendingStore) Remove(ctx context.Context, id string) error {
	return store.RemoveItem(ctx, p.store, models.PendingRequestKind, id)
}

// List returns pending requests, oldest first.
func (p *PendingStore) List(ctx context.Context) ([]models.PendingBwAppRequest, error) {
	items, err := store.ListItems(ctx, p.store, models.PendingRequestKind)
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingBwAppRequest, 0, len(items))
	for _, req := range items {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUtc.Equal(out[j].CreatedAtUtc) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].CreatedAtUtc.Before(out[j].CreatedAtUtc)
	})
	return out, nil
}

// SweepStale removes requests created more than maxAge ago and returns
// how many were removed.
func (p *PendingStore) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := p.clock.Now().Add(-maxAge)
	return p.removeWhere(ctx, func(req models.PendingBwAppRequest) bool {
		return req.CreatedAtUtc.Before(cutoff)
	})
}

func (p *PendingStore) removeWhere(ctx context.Context, match func(models.PendingBwAppRequest) bool) (int, error) {
	reqs, err := p.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, req := range reqs {
		if !match(req) {
			continue
		}
		if err := p.Remove(ctx, req.RequestID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
