package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spate/internal/domain"
)

func TestInsertRejectsDuplicateIdentity(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(domain.TorrentRecord{InfoHash: "abc", Name: "first"}))

	err := r.Insert(domain.TorrentRecord{InfoHash: "abc", Name: "second"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateIdentity))

	got, ok := r.FindByIdentity("abc")
	require.True(t, ok)
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, 1, r.Len())
}

func TestInsertRequiresIdentity(t *testing.T) {
	r := New()
	assert.Error(t, r.Insert(domain.TorrentRecord{Name: "nameless"}))
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(domain.TorrentRecord{InfoHash: "a"}))
	require.NoError(t, r.Insert(domain.TorrentRecord{InfoHash: "b"}))

	removed, ok := r.RemoveByIdentity("a")
	require.True(t, ok)
	assert.Equal(t, "a", removed.InfoHash)

	_, ok = r.RemoveByIdentity("a")
	assert.False(t, ok)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "b", snap[0].InfoHash)
}

func TestSnapshotPreservesInsertionOrder(t *testing.T) {
	r := New()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.Insert(domain.TorrentRecord{InfoHash: id}))
	}
	_, _ = r.RemoveByIdentity("a")
	require.NoError(t, r.Insert(domain.TorrentRecord{InfoHash: "a"}))

	var ids []string
	for _, rec := range r.Snapshot() {
		ids = append(ids, rec.InfoHash)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(domain.TorrentRecord{InfoHash: "a", Announce: []string{"http://tracker"}}))

	snap := r.Snapshot()
	snap[0].Announce[0] = "mutated"
	snap[0].Paused = true

	got, _ := r.FindByIdentity("a")
	assert.Equal(t, []string{"http://tracker"}, got.Announce)
	assert.False(t, got.Paused)
}

func TestUpdateKeepsIdentity(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(domain.TorrentRecord{InfoHash: "a"}))

	updated, ok := r.Update("a", func(rec *domain.TorrentRecord) {
		rec.Name = "named"
		rec.InfoHash = "b"
	})
	require.True(t, ok)
	assert.Equal(t, "a", updated.InfoHash)
	assert.Equal(t, "named", updated.Name)

	_, ok = r.Update("missing", func(*domain.TorrentRecord) {})
	assert.False(t, ok)
}
