package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"spate/internal/domain"
)

// RestoreReport summarizes one startup reconciliation.
type RestoreReport struct {
	Loaded   int
	Restored int
	Paused   int
	Missing  []string
	Failed   []string
	Reset    bool
}

// Restore rebuilds the registry and the engine from the store. Records whose
// path vanished or which the engine rejects are dropped, and the store is
// rewritten to match what was restored.
func (s *torrentService) Restore(ctx context.Context) (RestoreReport, error) {
	var report RestoreReport

	stored, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrStoreCorrupt) || !s.cfg.ResetCorruptStore {
			return report, fmt.Errorf("load store: %w", err)
		}
		s.cfg.Logger.Warnf("store unreadable, starting empty: %v", err)
		stored = nil
		report.Reset = true
	}
	report.Loaded = len(stored)

	for _, item := range stored {
		logger := s.cfg.Logger.WithField("info_hash", item.InfoHash)

		if _, err := os.Stat(item.Path); err != nil {
			logger.Infof("dropping transfer, %v: %v", domain.ErrResourceMissing, err)
			report.Missing = append(report.Missing, item.InfoHash)
			continue
		}
		if _, dup := s.registry.FindByIdentity(item.InfoHash); dup {
			logger.Warn("dropping duplicate stored entry")
			report.Failed = append(report.Failed, item.InfoHash)
			continue
		}

		if ok := s.restoreOne(ctx, item, logger); !ok {
			report.Failed = append(report.Failed, item.InfoHash)
			continue
		}
		report.Restored++
		if item.Paused {
			report.Paused++
		}
	}

	s.commitMu.Lock()
	err = s.saveLocked(ctx)
	s.commitMu.Unlock()
	if err != nil {
		return report, err
	}

	s.cfg.Logger.Infof("restored %d of %d transfers (%d paused, %d missing, %d failed)",
		report.Restored, report.Loaded, report.Paused, len(report.Missing), len(report.Failed))
	return report, nil
}

func (s *torrentService) restoreOne(ctx context.Context, item domain.StoredRecord, logger *logrus.Entry) bool {
	h, err := s.engine.AddBySource(ctx, item.MagnetURI, domain.AddOptions{
		Announce: item.Announce,
		Path:     item.Path,
		Private:  s.cfg.DefaultPrivate,
	})
	if err != nil {
		logger.Warnf("dropping transfer, engine add failed: %v", err)
		return false
	}

	rec := item.Record()
	rec.Private = s.cfg.DefaultPrivate
	if h.InfoHash() != rec.InfoHash {
		logger.Warnf("engine resolved identity %s, keeping engine identity", h.InfoHash())
		rec.InfoHash = h.InfoHash()
	}
	if existing, dup := s.registry.FindByIdentity(rec.InfoHash); dup {
		logger.Warnf("dropping entry, identity %s already restored", rec.InfoHash)
		// an active record shares the handle; only a paused one leaves it unowned
		if existing.Paused {
			if err := s.engine.Remove(ctx, rec.InfoHash); err != nil {
				logger.Errorf("drop duplicate handle: %v", err)
			}
		}
		return false
	}
	if md, ok := h.Metadata(); ok {
		rec.ApplyMetadata(md)
	}
	rec.Paused = false

	if item.Paused {
		if err := s.engine.Remove(ctx, rec.InfoHash); err != nil {
			logger.Errorf("pause after restore failed, keeping transfer active: %v", err)
		} else {
			rec.Paused = true
		}
	}

	s.commitMu.Lock()
	err = s.registry.Insert(rec)
	s.commitMu.Unlock()
	if err != nil {
		logger.Errorf("register restored transfer: %v", err)
		return false
	}

	if !rec.Paused {
		s.watchMetadata(h)
	}
	return true
}
