package contextstore

import (
	"context"
	"time"

	"github.com/skilldock/skilldock/core"
)

// Record is one durable entry per (skill, key). The durable tier is the
// single source of truth on restart; the in-memory tier is a cache seeded
// from it for persisted entries.
type Record struct {
	SkillID   string
	Key       string
	Value     core.Value
	ExpiresAt time.Time // zero = never expires
	UpdatedAt time.Time
}

// Backend persists durable context entries. It is used only for entries
// written with persist=true. Implementations must make Write durable
// before returning: a crash immediately after a successful Write must not
// lose the record.
//
// Add additional backends (Postgres, Redis, ...) in sub-packages without
// changing any calling code; only the wiring layer decides which
// implementation to instantiate.
type Backend interface {
	// LoadAll returns every record stored for the skill, including
	// expired ones; the store re-evaluates expiry on load.
	LoadAll(ctx context.Context, skillID string) ([]Record, error)

	// Write stores or overwrites the record for (record.SkillID,
	// record.Key).
	Write(ctx context.Context, record Record) error

	// Delete removes the record for (skillID, key). Deleting an absent
	// record is not an error.
	Delete(ctx context.Context, skillID, key string) error

	// Close releases backend resources.
	Close() error
}

// NoopBackend discards writes and loads nothing. It is the default
// backend, giving a purely volatile store.
type NoopBackend struct{}

// LoadAll returns no records.
func (NoopBackend) LoadAll(context.Context, string) ([]Record, error) { return nil, nil }

// Write discards the record.
func (NoopBackend) Write(context.Context, Record) error { return nil }

// Delete does nothing.
func (NoopBackend) Delete(context.Context, string, string) error { return nil }

// Close does nothing.
func (NoopBackend) Close() error { return nil }
