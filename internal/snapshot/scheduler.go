package snapshot

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"spate/internal/domain"
	"spate/internal/downloader"
	"spate/internal/registry"
)

const DefaultInterval = time.Second

type Config struct {
	Interval time.Duration
	Logger   *logrus.Logger
}

// Scheduler periodically merges registry records with live engine stats and
// publishes the result to a Hub.
type Scheduler struct {
	cfg      Config
	registry *registry.Registry
	engine   downloader.Engine
	hub      *Hub
}

func NewScheduler(cfg Config, reg *registry.Registry, engine downloader.Engine, hub *Hub) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Scheduler{cfg: cfg, registry: reg, engine: engine, hub: hub}
}

// Collect builds one merged snapshot from the registry as of the call.
func (s *Scheduler) Collect() []domain.TorrentView {
	records := s.registry.Snapshot()
	views := make([]domain.TorrentView, len(records))
	for i, rec := range records {
		var stats *domain.Stats
		if !rec.Paused {
			if h, ok := s.engine.Lookup(rec.InfoHash); ok {
				st := h.Stats()
				stats = &st
			}
		}
		views[i] = domain.NewTorrentView(rec, stats)
	}
	return views
}

// Tick runs a single cycle. A cycle with no subscribers is skipped.
func (s *Scheduler) Tick() bool {
	if s.hub.Subscribers() == 0 {
		s.cfg.Logger.Debug("snapshot skipped, no subscribers")
		return false
	}
	return s.hub.Publish(s.Collect())
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.cfg.Logger.Infof("snapshot scheduler running every %s", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}
