// Package repository provides durable keyed storage of agent records and
// their liveness state. Two implementations exist: MemoryStore for tests
// and single-process deployments, and PostgresStore for durable multi-node
// setups. Both satisfy Store; the services never know which one they got.
package repository

import (
	"context"
	"errors"

	"github.com/agentdir/agentdir/internal/registry/model"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("agent not found")

// ErrConflict is returned by Create when the derived id is already taken.
// Registration collisions are rejected, never silently overwritten.
var ErrConflict = errors.New("agent id already registered")

// Entry is a record together with its liveness state, as stored.
type Entry struct {
	Record   *model.AgentRecord
	Liveness model.LivenessState
}

// Store is the persistence contract for the registry.
//
// Create must be an atomic check-and-insert: two concurrent registrations
// deriving the same id must produce exactly one record and one ErrConflict.
// UpdateLiveness must replace the whole liveness state atomically so
// concurrent heartbeats for one id can never interleave field-by-field.
type Store interface {
	// Create inserts the record and its initial liveness state.
	Create(ctx context.Context, rec *model.AgentRecord, state model.LivenessState) error

	// Get returns the record and liveness state for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.AgentRecord, model.LivenessState, error)

	// List returns every entry in a stable order (creation time, then id).
	List(ctx context.Context) ([]Entry, error)

	// UpdateLiveness atomically replaces the liveness state for id.
	UpdateLiveness(ctx context.Context, id string, state model.LivenessState) error
}
