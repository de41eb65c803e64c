// Package storage provides the storage abstraction layer for extension records.
//
// Records are addressed by (scope, recordType, recordID). A scope is a
// storage partition with its own lifetime: the long-lived scope survives
// browser restarts, the session scope does not.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrScopeNotFound is returned when nothing has ever been written to a scope.
	ErrScopeNotFound = errors.New("scope not found")
)

// Repository defines the interface for scoped record storage.
//
// Writes are last-writer-wins; there is no transactional primitive across
// records. A Get after a Put from the same process observes that Put.
type Repository interface {
	Put(scope string, recordType string, recordID string, envelope *Envelope) error
	Get(scope string, recordType string, recordID string) (*Envelope, error)
	Delete(scope string, recordType string, recordID string) error
	List(scope string, recordType string) ([]string, error)
	// Clear removes every record in scope and returns the (recordType,
	// recordID) keys that were removed.
	Clear(scope string) ([]Key, error)
}

// Key identifies a record within a scope.
type Key struct {
	RecordType string
	RecordID   string
}
