package repository

import (
	"context"

	"spate/internal/domain"
)

// TorrentStore is the durable mirror of the registry's persisted fields.
//
// Load returns an empty slice when nothing has been saved yet and wraps
// domain.ErrStoreCorrupt when existing data cannot be parsed. Save replaces the
// whole stored set with records, in order.
type TorrentStore interface {
	Load(ctx context.Context) ([]domain.StoredRecord, error)
	Save(ctx context.Context, records []domain.StoredRecord) error
}
