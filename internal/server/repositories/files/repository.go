// Package files is the metadata catalog: the single source of truth for
// which files exist, who owns them and how their download keys hash.
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// Repository persists file records. Only records in models.StatusStored are
// visible to Get, ListByOwner and Stats.
type Repository interface {
	// Create inserts a new record. common.ErrDuplicateID on id collision.
	Create(ctx context.Context, file *models.File) error
	// Get returns a stored record or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.File, error)
	// ListByOwner returns the owner's stored records, newest first.
	// An owner without files yields an empty slice.
	ListByOwner(ctx context.Context, ownerID string, filter models.Filter) ([]*models.File, error)
	// Delete removes the record iff it still exists, else common.ErrorNotFound.
	Delete(ctx context.Context, id string) error
	// MarkDeleting moves a record from stored to deleting. Of any number of
	// concurrent callers exactly one succeeds; the rest get common.ErrorNotFound.
	MarkDeleting(ctx context.Context, id string) error
	// Restore moves a record from deleting back to stored.
	Restore(ctx context.Context, id string) error
	// ListStaleDeleting returns up to limit records that entered deleting
	// before olderThan.
	ListStaleDeleting(ctx context.Context, olderThan time.Time, limit int) ([]*models.File, error)
	// Stats aggregates the owner's stored records.
	Stats(ctx context.Context, ownerID string) (*models.Stats, error)
}
