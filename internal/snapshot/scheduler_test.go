package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spate/internal/domain"
	"spate/internal/downloader/downloadertest"
	"spate/internal/registry"
)

func newScheduler(t *testing.T) (*Scheduler, *registry.Registry, *downloadertest.Engine, *Hub) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg := registry.New()
	engine := downloadertest.New()
	hub := NewHub()
	return NewScheduler(Config{Interval: 10 * time.Millisecond, Logger: logger}, reg, engine, hub), reg, engine, hub
}

func TestCollectMergesLiveStats(t *testing.T) {
	s, reg, engine, _ := newScheduler(t)

	require.NoError(t, reg.Insert(domain.TorrentRecord{InfoHash: "live", Name: "one", Length: 100}))
	require.NoError(t, reg.Insert(domain.TorrentRecord{InfoHash: "paused", Name: "two", Paused: true}))
	h := downloadertest.NewHandle("live", "/tmp", nil)
	h.SetStats(domain.Stats{Downloaded: 50, DownloadSpeed: 10, NumPeers: 3, TimeRemaining: 5000})
	engine.Put(h)

	views := s.Collect()
	require.Len(t, views, 2)

	assert.Equal(t, "live", views[0].InfoHash)
	assert.Equal(t, int64(50), views[0].Downloaded)
	assert.Equal(t, int64(10), views[0].DownloadSpeed)
	require.NotNil(t, views[0].NumPeers)
	assert.Equal(t, 3, *views[0].NumPeers)
	require.NotNil(t, views[0].TimeRemaining)
	assert.Equal(t, int64(5000), *views[0].TimeRemaining)

	assert.Equal(t, "paused", views[1].InfoHash)
	assert.True(t, views[1].Paused)
	assert.Zero(t, views[1].DownloadSpeed)
	assert.Nil(t, views[1].NumPeers)
	assert.Nil(t, views[1].TimeRemaining)
}

func TestTickSkipsWithoutSubscribers(t *testing.T) {
	s, reg, _, hub := newScheduler(t)
	require.NoError(t, reg.Insert(domain.TorrentRecord{InfoHash: "a", Paused: true}))

	assert.False(t, s.Tick())
	assert.Nil(t, hub.Latest())

	ch, cancel := hub.Subscribe()
	defer cancel()
	assert.True(t, s.Tick())
	got := <-ch
	require.Len(t, got, 1)
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	s, reg, _, hub := newScheduler(t)
	require.NoError(t, reg.Insert(domain.TorrentRecord{InfoHash: "a", Paused: true}))
	ch, cancel := hub.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case got := <-ch:
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].InfoHash)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}

	stop()
	assert.True(t, errors.Is(<-done, context.Canceled))
}
