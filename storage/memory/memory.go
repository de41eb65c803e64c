// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jmcleod/keriauth/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// It backs the session scope by default: contents vanish with the process.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Envelope
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Envelope)}
}

func makeKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func splitKey(k string) storage.Key {
	recordType, recordID, _ := strings.Cut(k, ":")
	return storage.Key{RecordType: recordType, RecordID: recordID}
}

func cloneEnvelope(env *storage.Envelope) *storage.Envelope {
	if env == nil {
		return nil
	}
	return &storage.Envelope{
		Ver:        env.Ver,
		Scheme:     env.Scheme,
		Nonce:      append([]byte(nil), env.Nonce...),
		Ciphertext: append([]byte(nil), env.Ciphertext...),
	}
}

func (r *Repository) Put(scope, recordType, recordID string, envelope *storage.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[scope]; !ok {
		r.data[scope] = make(map[string]*storage.Envelope)
	}
	r.data[scope][makeKey(recordType, recordID)] = cloneEnvelope(envelope)
	return nil
}

func (r *Repository) Get(scope, recordType, recordID string) (*storage.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scopeData, ok := r.data[scope]
	if !ok {
		return nil, fmt.Errorf("%s: %w", scope, storage.ErrScopeNotFound)
	}
	env, ok := scopeData[makeKey(recordType, recordID)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return cloneEnvelope(env), nil
}

func (r *Repository) List(scope, recordType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	prefix := recordType + ":"
	for k := range r.data[scope] {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Repository) Delete(scope, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := makeKey(recordType, recordID)
	scopeData, ok := r.data[scope]
	if !ok {
		return fmt.Errorf("%s: %w", scope, storage.ErrScopeNotFound)
	}
	if _, ok := scopeData[k]; !ok {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	delete(scopeData, k)
	return nil
}

func (r *Repository) Clear(scope string) ([]storage.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []storage.Key
	for k := range r.data[scope] {
		removed = append(removed, splitKey(k))
	}
	delete(r.data, scope)
	sort.Slice(removed, func(i, j int) bool {
		return makeKey(removed[i].RecordType, removed[i].RecordID) < makeKey(removed[j].RecordType, removed[j].RecordID)
	})
	return removed, nil
}
