package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmcleod/keriauth/storage"
)

// Kind binds a Go record type to its storage record type name and scope.
// A Kind addresses either a singleton (Get/Set/Remove/Subscribe) or a
// collection keyed by id (GetItem/SetItem/RemoveItem/ListItems).
type Kind[T any] struct {
	Name  string
	Scope Scope
}

// Get loads the singleton record. The boolean is false when the record is
// absent.
func Get[T any](ctx context.Context, s *Service, k Kind[T]) (T, bool, error) {
	return GetItem(ctx, s, k, singletonID)
}

// Set writes the singleton record.
func Set[T any](ctx context.Context, s *Service, k Kind[T], v T) error {
	return SetItem(ctx, s, k, singletonID, v)
}

// Remove deletes the singleton record.
func Remove[T any](ctx context.Context, s *Service, k Kind[T]) error {
	return RemoveItem(ctx, s, k, singletonID)
}

// GetItem loads one member of a collection.
func GetItem[T any](ctx context.Context, s *Service, k Kind[T], id string) (T, bool, error) {
	var v T
	data, err := s.GetRaw(ctx, k.Scope, k.Name, id)
	if errors.Is(err, storage.ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decoding %s/%s: %w", k.Name, id, err)
	}
	return v, true, nil
}

// SetItem writes one member of a collection.
func SetItem[T any](ctx context.Context, s *Service, k Kind[T], id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", k.Name, id, err)
	}
	return s.SetRaw(ctx, k.Scope, k.Name, id, data)
}

// RemoveItem deletes one member of a collection.
func RemoveItem[T any](ctx context.Context, s *Service, k Kind[T], id string) error {
	return s.RemoveRaw(ctx, k.Scope, k.Name, id)
}

// ListItems loads every member of a collection keyed by id. Members that
// disappear or fail to decode between listing and loading are skipped.
func ListItems[T any](ctx context.Context, s *Service, k Kind[T]) (map[string]T, error) {
	ids, err := s.ListIDs(ctx, k.Scope, k.Name)
	if err != nil {
		return nil, err
	}
	items := make(map[string]T, len(ids))
	for _, id := range ids {
		v, ok, err := GetItem(ctx, s, k, id)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "record_type", k.Name, "record_id", id, "error", err)
			continue
		}
		if ok {
			items[id] = v
		}
	}
	return items, nil
}

// Subscribe calls onNext with the new value whenever the singleton record
// changes; present is false when it was removed. Decode failures go to
// onError, which may be nil.
func Subscribe[T any](s *Service, k Kind[T], onNext func(v T, present bool), onError func(error)) func() {
	return SubscribeItems(s, k, func(id string, v T, present bool) {
		if id == singletonID {
			onNext(v, present)
		}
	}, onError)
}

// SubscribeItems is Subscribe for collections.
func SubscribeItems[T any](s *Service, k Kind[T], onNext func(id string, v T, present bool), onError func(error)) func() {
	return s.SubscribeRaw(k.Scope, k.Name, func(c Change) {
		var v T
		if c.Removed() {
			onNext(c.RecordID, v, false)
			return
		}
		if err := json.Unmarshal(c.Data, &v); err != nil {
			err = fmt.Errorf("decoding %s/%s: %w", k.Name, c.RecordID, err)
			if onError != nil {
				onError(err)
			} else {
				s.logger.Warn("subscription decode failed", "error", err)
			}
			return
		}
		onNext(c.RecordID, v, true)
	})
}
