package registry

import (
	"fmt"
	"sync"

	"spate/internal/domain"
)

// Registry is the authoritative in-process set of torrent records, iterated in insertion order.
type Registry struct {
	mu      sync.RWMutex
	records []domain.TorrentRecord
}

func New() *Registry {
	return &Registry{}
}

// Insert adds a record. It fails with domain.ErrDuplicateIdentity when the identity is taken.
func (r *Registry) Insert(record domain.TorrentRecord) error {
	if record.InfoHash == "" {
		return fmt.Errorf("insert record: identity is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(record.InfoHash) >= 0 {
		return fmt.Errorf("insert %s: %w", record.InfoHash, domain.ErrDuplicateIdentity)
	}
	r.records = append(r.records, record.Clone())
	return nil
}

func (r *Registry) FindByIdentity(id string) (domain.TorrentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.TorrentRecord{}, false
	}
	return r.records[i].Clone(), true
}

// RemoveByIdentity removes and returns the record. Removing an unknown identity is a no-op.
func (r *Registry) RemoveByIdentity(id string) (domain.TorrentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.TorrentRecord{}, false
	}
	removed := r.records[i]
	r.records = append(r.records[:i:i], r.records[i+1:]...)
	return removed, true
}

// Update applies fn to the stored record in place. The identity cannot be changed.
func (r *Registry) Update(id string, fn func(*domain.TorrentRecord)) (domain.TorrentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.TorrentRecord{}, false
	}
	rec := r.records[i].Clone()
	fn(&rec)
	rec.InfoHash = id
	r.records[i] = rec
	return rec.Clone(), true
}

// Snapshot returns a copy of every record in insertion order.
func (r *Registry) Snapshot() []domain.TorrentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TorrentRecord, len(r.records))
	for i := range r.records {
		out[i] = r.records[i].Clone()
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// indexOf is a linear scan; the registry holds tens to low hundreds of entries.
func (r *Registry) indexOf(id string) int {
	for i := range r.records {
		if r.records[i].InfoHash == id {
			return i
		}
	}
	return -1
}
