package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"spate/internal/domain"
	"spate/internal/repository"
)

const createTorrentsTable = `
CREATE TABLE IF NOT EXISTS torrents (
	info_hash TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	magnet_uri TEXT NOT NULL DEFAULT '',
	announce TEXT NOT NULL DEFAULT '[]',
	length INTEGER NOT NULL DEFAULT 0,
	path TEXT NOT NULL DEFAULT '',
	paused INTEGER NOT NULL DEFAULT 0
);
`

// TorrentRepository stores the torrents document as rows, one per record.
type TorrentRepository struct {
	db *sql.DB
}

func NewTorrentRepository(db *sql.DB) *TorrentRepository {
	return &TorrentRepository{db: db}
}

func (r *TorrentRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTorrentsTable); err != nil {
		return fmt.Errorf("create torrents table: %w", err)
	}
	return nil
}

func (r *TorrentRepository) Load(ctx context.Context) ([]domain.StoredRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT info_hash, name, magnet_uri, announce, length, path, paused
FROM torrents
ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query torrents: %w", err)
	}
	defer rows.Close()

	records := []domain.StoredRecord{}
	for rows.Next() {
		var (
			rec      domain.StoredRecord
			announce string
			paused   int
		)
		if err := rows.Scan(&rec.InfoHash, &rec.Name, &rec.MagnetURI, &announce, &rec.Length, &rec.Path, &paused); err != nil {
			return nil, fmt.Errorf("scan torrent: %v: %w", err, domain.ErrStoreCorrupt)
		}
		if err := json.Unmarshal([]byte(announce), &rec.Announce); err != nil {
			return nil, fmt.Errorf("decode announce for %s: %v: %w", rec.InfoHash, err, domain.ErrStoreCorrupt)
		}
		if rec.Announce == nil {
			rec.Announce = []string{}
		}
		rec.Paused = paused != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate torrents: %w", err)
	}
	return records, nil
}

// Save replaces every row inside one transaction.
func (r *TorrentRepository) Save(ctx context.Context, records []domain.StoredRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM torrents`); err != nil {
		return fmt.Errorf("clear torrents: %w", err)
	}

	for i, rec := range records {
		announce := rec.Announce
		if announce == nil {
			announce = []string{}
		}
		encoded, err := json.Marshal(announce)
		if err != nil {
			return fmt.Errorf("encode announce: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO torrents (info_hash, position, name, magnet_uri, announce, length, path, paused)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.InfoHash,
			i,
			rec.Name,
			rec.MagnetURI,
			string(encoded),
			rec.Length,
			rec.Path,
			boolToInt(rec.Paused),
		); err != nil {
			return fmt.Errorf("insert torrent %s: %w", rec.InfoHash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit torrents: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ repository.TorrentStore = (*TorrentRepository)(nil)
