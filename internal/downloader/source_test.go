package downloader

import (
	"strings"
	"testing"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "0123456789abcdef0123456789abcdef01234567"

func TestClassifySource(t *testing.T) {
	tests := []struct {
		source string
		want   sourceKind
	}{
		{"", sourceUnknown},
		{"magnet:?xt=urn:btih:" + testHash, sourceMagnet},
		{"MAGNET:?xt=urn:btih:" + testHash, sourceMagnet},
		{testHash, sourceInfoHash},
		{strings.ToUpper(testHash), sourceInfoHash},
		{"https://example.com/a.torrent", sourceURL},
		{"http://example.com/a.torrent", sourceURL},
		{"/home/user/a.torrent", sourceFile},
		{"relative/a.torrent", sourceFile},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifySource(tt.source), tt.source)
	}
}

func TestParseIdentity(t *testing.T) {
	id, ok := ParseIdentity("magnet:?xt=urn:btih:" + testHash + "&dn=x")
	require.True(t, ok)
	assert.Equal(t, testHash, id)

	id, ok = ParseIdentity(strings.ToUpper(testHash))
	require.True(t, ok)
	assert.Equal(t, testHash, id)

	_, ok = ParseIdentity("/tmp/file.torrent")
	assert.False(t, ok)

	_, ok = ParseIdentity("magnet:?dn=nohash")
	assert.False(t, ok)
}

func TestBuildMagnetRoundTrips(t *testing.T) {
	var ih metainfo.Hash
	require.NoError(t, ih.FromHexString(testHash))

	uri := buildMagnet(ih, "x", []string{"http://tracker"})
	m, err := metainfo.ParseMagnetUri(uri)
	require.NoError(t, err)
	assert.Equal(t, ih, m.InfoHash)
	assert.Equal(t, "x", m.DisplayName)
	assert.Equal(t, []string{"http://tracker"}, m.Trackers)
}

func TestMergeTrackers(t *testing.T) {
	got := mergeTrackers([][]string{{"a", " b "}, {"a"}}, []string{"", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Nil(t, mergeTrackers(nil))
}
