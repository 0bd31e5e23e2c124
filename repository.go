package gorollup

import (
	"context"
)

// Repository persists Metadata by id with optimistic concurrency.
//
// Save creates m when it has never been persisted, otherwise it overwrites the stored value only if
// the stored seqNo/primaryTerm still equal m's; a mismatch fails with ErrCodeStaleVersion.
// The returned value carries the id and version assigned by the store.
type Repository interface {
	Get(ctx context.Context, id string) (Metadata, RollupError)
	Save(ctx context.Context, m Metadata) (Metadata, RollupError)
	Delete(ctx context.Context, id string) RollupError
	FindByJobID(ctx context.Context, jobID string) (*Metadata, RollupError)
}
