package downloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spate/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewClient(Config{DataDir: t.TempDir(), Logger: logger})
}

// writeTorrentFile builds a descriptor for a small local file and returns its path and identity.
func writeTorrentFile(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	content := filepath.Join(dir, "clip.bin")
	require.NoError(t, os.WriteFile(content, []byte("some bytes to hash"), 0o644))

	info := metainfo.Info{PieceLength: 16 * 1024}
	require.NoError(t, info.BuildFromFilePath(content))
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)
	mi := &metainfo.MetaInfo{InfoBytes: infoBytes}

	path := filepath.Join(dir, "clip.torrent")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, mi.Write(f))
	require.NoError(t, f.Close())
	return path, mi.HashInfoBytes().HexString()
}

func TestSpecFromHexSource(t *testing.T) {
	c := newTestClient(t)

	spec, err := c.specFromSource(context.Background(), " "+testHash+" ")
	require.NoError(t, err)
	assert.Equal(t, testHash, spec.InfoHash.HexString())
	assert.Nil(t, spec.InfoBytes)
}

func TestIdentifySources(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id, err := c.Identify(ctx, "magnet:?xt=urn:btih:"+testHash)
	require.NoError(t, err)
	assert.Equal(t, testHash, id)

	path, want := writeTorrentFile(t)
	id, err = c.Identify(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, want, id)

	spec, err := c.specFromSource(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, want, spec.InfoHash.HexString())

	_, err = c.Identify(ctx, filepath.Join(t.TempDir(), "missing.torrent"))
	assert.True(t, errors.Is(err, domain.ErrResourceMissing))
}

func TestIdentifyURLReusesFetchedDescriptor(t *testing.T) {
	path, want := writeTorrentFile(t)
	blob, err := os.ReadFile(path)
	require.NoError(t, err)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(blob)
	}))
	defer srv.Close()

	c := newTestClient(t)
	ctx := context.Background()
	url := srv.URL + "/clip.torrent"

	id, err := c.Identify(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, want, id)

	spec, err := c.specFromSource(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, want, spec.InfoHash.HexString())
	assert.EqualValues(t, 1, hits.Load())

	_, err = c.specFromSource(ctx, url)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}
