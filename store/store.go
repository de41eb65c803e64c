// Package store is the typed view over extension storage that every
// dispatcher component reads and writes through.
//
// A Service owns one repository per scope and fans out change
// notifications to subscribers after each committed write. Components must
// treat the Service as the only source of truth: nothing they cache in
// memory is assumed to survive a dispatcher restart.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/keriauth/internal/util"
	"github.com/jmcleod/keriauth/storage"
)

// Scope names a storage partition.
type Scope string

const (
	// Local survives browser restarts.
	Local Scope = "local"
	// Session is cleared when the browser restarts.
	Session Scope = "session"
)

// singletonID is the record id used for records that exist at most once
// per scope.
const singletonID = "current"

// ErrUnknownScope is returned for a scope the Service was not built with.
var ErrUnknownScope = errors.New("unknown storage scope")

// Change describes one committed write or removal.
type Change struct {
	Scope      Scope
	RecordType string
	RecordID   string
	// Data is nil when the record was removed.
	Data []byte
}

// Removed reports whether the change deleted the record.
func (c Change) Removed() bool { return c.Data == nil }

type subscriptionKey struct {
	scope      Scope
	recordType string
}

// Service is the storage observer: typed get/set/remove per scope plus
// change subscriptions.
type Service struct {
	repos      map[Scope]storage.Repository
	sessionKey *memguard.Enclave
	logger     *slog.Logger

	mu     sync.Mutex
	subs   map[subscriptionKey]map[uint64]func(Change)
	nextID uint64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for notification failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New returns a Service over the given long-lived and session repositories.
//
// Session records are sealed with a random key that lives only in this
// process, held in a memguard Enclave. A new process cannot open them and
// treats them as absent, which is how a persistent session backend still
// honours "cleared on browser restart".
func New(local, session storage.Repository, opts ...Option) *Service {
	s := &Service{
		repos: map[Scope]storage.Repository{
			Local:   local,
			Session: session,
		},
		sessionKey: memguard.NewEnclaveRandom(32),
		logger:     slog.Default(),
		subs:       make(map[subscriptionKey]map[uint64]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) repo(scope Scope) (storage.Repository, error) {
	r, ok := s.repos[scope]
	if !ok || r == nil {
		return nil, fmt.Errorf("%s: %w", scope, ErrUnknownScope)
	}
	return r, nil
}

const sealVersion = 1

func recordAAD(scope Scope, recordType, recordID string) []byte {
	return util.RecordAAD(string(scope), recordType, recordID, sealVersion)
}

// GetRaw returns the stored bytes for a record, or an error wrapping
// storage.ErrNotFound.
func (s *Service) GetRaw(ctx context.Context, scope Scope, recordType, recordID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.repo(scope)
	if err != nil {
		return nil, err
	}
	env, err := r.Get(string(scope), recordType, recordID)
	if errors.Is(err, storage.ErrScopeNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if scope != Session {
		return storage.OpenRecord(nil, env, nil)
	}

	key, err := s.sessionKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening session key: %w", err)
	}
	defer key.Destroy()
	data, err := storage.OpenRecord(key.Bytes(), env, recordAAD(scope, recordType, recordID))
	if err != nil {
		// Sealed by a previous browser session; drop it.
		s.logger.Debug("discarding unreadable session record",
			"record_type", recordType, "record_id", recordID, "error", err)
		_ = r.Delete(string(scope), recordType, recordID)
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return data, nil
}

// SetRaw writes a record and notifies subscribers.
func (s *Service) SetRaw(ctx context.Context, scope Scope, recordType, recordID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := s.repo(scope)
	if err != nil {
		return err
	}
	env, err := s.seal(scope, recordType, recordID, data)
	if err != nil {
		return err
	}
	if err := r.Put(string(scope), recordType, recordID, env); err != nil {
		return fmt.Errorf("writing %s/%s: %w", recordType, recordID, err)
	}
	s.notify(Change{Scope: scope, RecordType: recordType, RecordID: recordID, Data: data})
	return nil
}

func (s *Service) seal(scope Scope, recordType, recordID string, data []byte) (*storage.Envelope, error) {
	if scope != Session {
		return storage.RawRecord(data), nil
	}
	key, err := s.sessionKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening session key: %w", err)
	}
	defer key.Destroy()
	return storage.SealRecord(key.Bytes(), data, recordAAD(scope, recordType, recordID))
}

// RemoveRaw deletes a record. Removing an absent record is not an error
// and produces no notification.
func (s *Service) RemoveRaw(ctx context.Context, scope Scope, recordType, recordID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := s.repo(scope)
	if err != nil {
		return err
	}
	err = r.Delete(string(scope), recordType, recordID)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrScopeNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("removing %s/%s: %w", recordType, recordID, err)
	}
	s.notify(Change{Scope: scope, RecordType: recordType, RecordID: recordID})
	return nil
}

// ListIDs returns the ids of every record of recordType in scope.
func (s *Service) ListIDs(ctx context.Context, scope Scope, recordType string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.repo(scope)
	if err != nil {
		return nil, err
	}
	return r.List(string(scope), recordType)
}

// ClearScope removes every record in scope, notifying subscribers of each
// removal.
func (s *Service) ClearScope(ctx context.Context, scope Scope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := s.repo(scope)
	if err != nil {
		return err
	}
	removed, err := r.Clear(string(scope))
	if err != nil {
		return fmt.Errorf("clearing %s scope: %w", scope, err)
	}
	for _, k := range removed {
		s.notify(Change{Scope: scope, RecordType: k.RecordType, RecordID: k.RecordID})
	}
	return nil
}

// SubscribeRaw registers fn for every change to recordType in scope. The
// returned function unsubscribes; it is safe to call more than once.
func (s *Service) SubscribeRaw(scope Scope, recordType string, fn func(Change)) func() {
	key := subscriptionKey{scope: scope, recordType: recordType}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.subs[key] == nil {
		s.subs[key] = make(map[uint64]func(Change))
	}
	s.subs[key][id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
	}
}

// notify delivers c to subscribers synchronously, in subscription order,
// without holding the lock so that handlers may write back to the store.
func (s *Service) notify(c Change) {
	key := subscriptionKey{scope: c.Scope, recordType: c.RecordType}
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.subs[key]))
	for id := range s.subs[key] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[key][id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
