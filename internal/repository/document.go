package repository

import (
	"bytes"
	"encoding/json"
	"fmt"

	"spate/internal/domain"
)

type document struct {
	Torrents []domain.StoredRecord `json:"torrents"`
}

// DecodeDocument parses a torrents document. name identifies the source in errors.
func DecodeDocument(name string, data []byte) ([]domain.StoredRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("parse %s: empty document: %w", name, domain.ErrStoreCorrupt)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %v: %w", name, err, domain.ErrStoreCorrupt)
	}
	for i, rec := range doc.Torrents {
		if rec.InfoHash == "" {
			return nil, fmt.Errorf("parse %s: entry %d has no infoHash: %w", name, i, domain.ErrStoreCorrupt)
		}
	}
	if doc.Torrents == nil {
		doc.Torrents = []domain.StoredRecord{}
	}
	return doc.Torrents, nil
}

// EncodeDocument replaces the torrents field of existing and returns the new
// document. Other top-level fields of a parseable existing document are kept.
func EncodeDocument(existing []byte, records []domain.StoredRecord) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &fields); err != nil || fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}

	if records == nil {
		records = []domain.StoredRecord{}
	}
	torrents, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode torrents: %w", err)
	}
	fields["torrents"] = torrents

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode store: %w", err)
	}
	return data, nil
}
