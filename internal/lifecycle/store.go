package lifecycle

import (
	"context"
	"errors"

	"cshealth/internal/domain"
)

var (
	// ErrNotFound indicates no stored lifecycle state for alert ID.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates concurrent writers exhausted CAS retries.
	ErrConflict = errors.New("revision conflict")
)

// UpsertResult reports outcome of one lifecycle update.
// Params: changed field names, created note, and stored state after merge.
// Returns: payload for API responses.
type UpsertResult struct {
	Changed []string            `json:"changed"`
	Note    *domain.AlertNote   `json:"note,omitempty"`
	Stored  domain.StoredUpdate `json:"-"`
}

// Store persists mutable alert lifecycle state keyed by alert ID.
// Params: get/upsert/list operations; upserts are atomic per alert ID.
// Returns: backend persistence behavior.
type Store interface {
	Get(ctx context.Context, alertID string) (domain.StoredUpdate, error)
	Upsert(ctx context.Context, alertID string, update domain.AlertUpdate) (UpsertResult, error)
	List(ctx context.Context) ([]domain.StoredUpdate, error)
	Close() error
}
