package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spate/internal/domain"
)

func (f *fixture) seedStore(t *testing.T, records ...domain.StoredRecord) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), records))
}

func TestRestorePausedThenResumeThenRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.mkdir(t, "content")
	f.seedStore(t, domain.StoredRecord{
		InfoHash:  "abc",
		Name:      "x",
		MagnetURI: "magnet:?xt=urn:btih:abc",
		Announce:  []string{"http://tracker"},
		Length:    1000000,
		Path:      dir,
		Paused:    true,
	})

	report, err := f.svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, 1, report.Restored)
	assert.Equal(t, 1, report.Paused)

	rec, ok := f.reg.FindByIdentity("abc")
	require.True(t, ok)
	assert.True(t, rec.Paused)
	assert.Equal(t, "x", rec.Name)
	assert.Equal(t, int64(1000000), rec.Length)
	_, live := f.engine.Lookup("abc")
	assert.False(t, live)
	require.Len(t, f.engine.AddCalls, 1)
	assert.Equal(t, []string{"http://tracker"}, f.engine.AddCalls[0].Opts.Announce)
	assert.Equal(t, dir, f.engine.AddCalls[0].Opts.Path)

	rec2, err := f.svc.TogglePause(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, rec2.Paused)
	_, live = f.engine.Lookup("abc")
	assert.True(t, live)
	stored := f.stored(t)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Paused)
	f.assertCorrespondence(t)

	require.NoError(t, f.svc.Remove(ctx, "abc"))
	assert.Zero(t, f.reg.Len())
	assert.Zero(t, f.engine.Len())
	assert.Empty(t, f.stored(t))
}

func TestRestoreDropsMissingPaths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	present := f.mkdir(t, "present")
	f.seedStore(t,
		domain.StoredRecord{InfoHash: hashA, MagnetURI: magnet(hashA), Path: filepath.Join(f.dir, "gone")},
		domain.StoredRecord{InfoHash: hashB, MagnetURI: magnet(hashB), Path: present},
	)

	report, err := f.svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{hashA}, report.Missing)
	assert.Equal(t, 1, report.Restored)

	_, ok := f.reg.FindByIdentity(hashA)
	assert.False(t, ok)
	for _, call := range f.engine.AddCalls {
		assert.NotEqual(t, magnet(hashA), call.Source)
	}

	stored := f.stored(t)
	require.Len(t, stored, 1)
	assert.Equal(t, hashB, stored[0].InfoHash)
	f.assertCorrespondence(t)
}

func TestRestoreDropsEngineRejections(t *testing.T) {
	f := newFixture(t)
	f.seedStore(t, domain.StoredRecord{InfoHash: hashA, MagnetURI: magnet(hashA), Path: f.mkdir(t, "d")})
	f.engine.AddErr = errors.New("bad magnet")

	report, err := f.svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{hashA}, report.Failed)
	assert.Zero(t, f.reg.Len())
	assert.Empty(t, f.stored(t))
}

func TestRestoreDropsDuplicateEntries(t *testing.T) {
	f := newFixture(t)
	dir := f.mkdir(t, "d")
	f.seedStore(t,
		domain.StoredRecord{InfoHash: hashA, MagnetURI: magnet(hashA), Path: dir},
		domain.StoredRecord{InfoHash: hashA, MagnetURI: magnet(hashA), Path: dir, Paused: true},
	)

	report, err := f.svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Restored)
	assert.Equal(t, []string{hashA}, report.Failed)

	rec, ok := f.reg.FindByIdentity(hashA)
	require.True(t, ok)
	assert.False(t, rec.Paused)
	assert.Len(t, f.stored(t), 1)
	f.assertCorrespondence(t)
}

func TestRestoreKeepsActiveWhenPauseFails(t *testing.T) {
	f := newFixture(t)
	f.seedStore(t, domain.StoredRecord{InfoHash: hashA, MagnetURI: magnet(hashA), Path: f.mkdir(t, "d"), Paused: true})
	f.engine.RemoveErr = errors.New("stuck")

	_, err := f.svc.Restore(context.Background())
	require.NoError(t, err)

	rec, ok := f.reg.FindByIdentity(hashA)
	require.True(t, ok)
	assert.False(t, rec.Paused)
	f.assertCorrespondence(t)
}

func TestRestoreEmptyStore(t *testing.T) {
	f := newFixture(t)
	report, err := f.svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Loaded)
	assert.Zero(t, f.reg.Len())
}

func TestRestoreCorruptStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.store.Path()), 0o755))
	require.NoError(t, os.WriteFile(f.store.Path(), []byte("{not json"), 0o644))

	_, err := f.svc.Restore(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreCorrupt))

	f.svc.cfg.ResetCorruptStore = true
	report, err := f.svc.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Reset)
	assert.Empty(t, f.stored(t))
}

func TestSaveThenRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.mkdir(t, "d")
	_, err := f.svc.Add(ctx, magnet(hashA), dir)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, magnet(hashB), dir)
	require.NoError(t, err)
	_, err = f.svc.Pause(ctx, hashB)
	require.NoError(t, err)

	g := newFixture(t)
	g.store = f.store
	g.svc.store = f.store

	_, err = g.svc.Restore(ctx)
	require.NoError(t, err)

	got := g.reg.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, hashA, got[0].InfoHash)
	assert.False(t, got[0].Paused)
	assert.Equal(t, hashB, got[1].InfoHash)
	assert.True(t, got[1].Paused)
	g.assertCorrespondence(t)
}

func TestRestoreDropsEntryResolvingToRestoredIdentity(t *testing.T) {
	f := newFixture(t)
	dir := f.mkdir(t, "d")
	f.seedStore(t,
		domain.StoredRecord{InfoHash: hashA, MagnetURI: magnet(hashA), Path: dir},
		domain.StoredRecord{InfoHash: "alias", MagnetURI: magnet(hashA), Path: dir, Paused: true},
	)

	report, err := f.svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Restored)
	assert.Equal(t, []string{"alias"}, report.Failed)

	rec, ok := f.reg.FindByIdentity(hashA)
	require.True(t, ok)
	assert.False(t, rec.Paused)
	_, live := f.engine.Lookup(hashA)
	assert.True(t, live)
	assert.Empty(t, f.engine.RemoveCalls)
	f.assertCorrespondence(t)

	stored := f.stored(t)
	require.Len(t, stored, 1)
	assert.Equal(t, hashA, stored[0].InfoHash)
}
