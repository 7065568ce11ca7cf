package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"spate/internal/domain"
	"spate/internal/downloader"
	"spate/internal/registry"
	"spate/internal/repository"
)

// TorrentService runs the lifecycle operations that keep the registry, the
// engine and the store consistent. Every mutating call returns after the
// registry has been updated and the store saved.
type TorrentService interface {
	Add(ctx context.Context, source, destination string) (*domain.TorrentRecord, error)
	Seed(ctx context.Context, path string, opts domain.SeedOptions) (*domain.TorrentRecord, error)
	TogglePause(ctx context.Context, infoHash string) (*domain.TorrentRecord, error)
	Pause(ctx context.Context, infoHash string) (*domain.TorrentRecord, error)
	Resume(ctx context.Context, infoHash string) (*domain.TorrentRecord, error)
	Remove(ctx context.Context, infoHash string) error
	Details(ctx context.Context, infoHash string) (*domain.TorrentView, error)
	RecordFile(ctx context.Context, infoHash string) ([]byte, string, error)
	Restore(ctx context.Context) (RestoreReport, error)
	Close()
}

type TorrentServiceConfig struct {
	// DefaultPrivate is the privacy flag for user adds and restores.
	DefaultPrivate bool
	// DefaultCreator is the creator label written into seeded descriptors.
	DefaultCreator string
	// ResetCorruptStore treats an unreadable store as empty at restore time.
	ResetCorruptStore bool
	Logger            *logrus.Logger
}

type torrentService struct {
	cfg      TorrentServiceConfig
	registry *registry.Registry
	engine   downloader.Engine
	store    repository.TorrentStore

	// commitMu serializes registry mutation plus store save so saves land in order.
	commitMu sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTorrentService(cfg TorrentServiceConfig, reg *registry.Registry, engine downloader.Engine, store repository.TorrentStore) TorrentService {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &torrentService{
		cfg:      cfg,
		registry: reg,
		engine:   engine,
		store:    store,
		inflight: make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close stops metadata watchers started by lifecycle operations.
func (s *torrentService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *torrentService) Add(ctx context.Context, source, destination string) (*domain.TorrentRecord, error) {
	source = strings.TrimSpace(source)
	destination = strings.TrimSpace(destination)
	if source == "" || destination == "" {
		return nil, nil
	}

	opID := uuid.NewString()
	logger := s.cfg.Logger.WithField("op_id", opID)

	// reserve the identity before the engine call so no other operation can
	// act on it while the add is pending
	id, err := s.engine.Identify(ctx, source)
	if err != nil {
		logger.Warnf("resolve source failed: %v", err)
		return nil, engineError("add", err)
	}
	if err := s.begin(id, opID); err != nil {
		return nil, err
	}
	defer s.end(id, opID)
	if _, exists := s.registry.FindByIdentity(id); exists {
		return nil, fmt.Errorf("add %s: %w", id, domain.ErrDuplicateIdentity)
	}

	h, err := s.engine.AddBySource(ctx, source, domain.AddOptions{
		Path:    destination,
		Private: s.cfg.DefaultPrivate,
	})
	if err != nil {
		logger.Warnf("engine add failed: %v", err)
		return nil, engineError("add", err)
	}
	if resolved := h.InfoHash(); resolved != id {
		logger.Warnf("source resolved to %s, expected %s", resolved, id)
		if err := s.begin(resolved, opID); err != nil {
			return nil, err
		}
		defer s.end(resolved, opID)
	}

	rec, err := s.insertFromHandle(ctx, h, "")
	if err != nil {
		return nil, err
	}
	logger.WithField("info_hash", rec.InfoHash).Infof("added transfer into %s", rec.Path)
	return rec, nil
}

func (s *torrentService) Seed(ctx context.Context, path string, opts domain.SeedOptions) (*domain.TorrentRecord, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if strings.TrimSpace(opts.CreatorLabel) == "" {
		opts.CreatorLabel = s.cfg.DefaultCreator
	}
	opts.Name = strings.TrimSpace(opts.Name)

	opID := uuid.NewString()
	logger := s.cfg.Logger.WithField("op_id", opID)

	h, err := s.engine.Seed(ctx, path, opts)
	if err != nil {
		logger.Warnf("engine seed failed: %v", err)
		return nil, engineError("seed", err)
	}

	rec, err := s.insertFromHandle(ctx, h, opts.CreatorLabel)
	if err != nil {
		return nil, err
	}
	if opts.Name != "" {
		if updated, ok := s.commitUpdate(ctx, rec.InfoHash, func(r *domain.TorrentRecord) { r.Name = opts.Name }); ok {
			rec = &updated
		}
	}
	logger.WithField("info_hash", rec.InfoHash).Infof("seeding %s", path)
	return rec, nil
}

// insertFromHandle registers a freshly confirmed handle as an active record.
func (s *torrentService) insertFromHandle(ctx context.Context, h downloader.Handle, createdBy string) (*domain.TorrentRecord, error) {
	rec := domain.TorrentRecord{
		InfoHash:  h.InfoHash(),
		MagnetURI: h.MagnetURI(),
		Announce:  h.Announce(),
		Path:      h.Path(),
		Private:   s.cfg.DefaultPrivate,
		CreatedBy: createdBy,
	}
	if md, ok := h.Metadata(); ok {
		rec.ApplyMetadata(md)
	}

	s.commitMu.Lock()
	if existing, ok := s.registry.FindByIdentity(rec.InfoHash); ok {
		s.commitMu.Unlock()
		// the engine hands back the live handle for a duplicate add; only a
		// handle created behind a paused record has to go
		if existing.Paused {
			if err := s.engine.Remove(ctx, rec.InfoHash); err != nil {
				s.cfg.Logger.WithField("info_hash", rec.InfoHash).Errorf("drop duplicate handle: %v", err)
			}
		}
		return nil, fmt.Errorf("insert %s: %w", rec.InfoHash, domain.ErrDuplicateIdentity)
	}
	if err := s.registry.Insert(rec); err != nil {
		s.commitMu.Unlock()
		return nil, err
	}
	err := s.saveLocked(ctx)
	s.commitMu.Unlock()
	if err != nil {
		return nil, err
	}

	s.watchMetadata(h)
	out := rec.Clone()
	return &out, nil
}

func (s *torrentService) TogglePause(ctx context.Context, infoHash string) (*domain.TorrentRecord, error) {
	return s.setPaused(ctx, infoHash, nil)
}

func (s *torrentService) Pause(ctx context.Context, infoHash string) (*domain.TorrentRecord, error) {
	paused := true
	return s.setPaused(ctx, infoHash, &paused)
}

func (s *torrentService) Resume(ctx context.Context, infoHash string) (*domain.TorrentRecord, error) {
	paused := false
	return s.setPaused(ctx, infoHash, &paused)
}

// setPaused moves a record to the wanted state, or flips it when want is nil.
func (s *torrentService) setPaused(ctx context.Context, infoHash string, want *bool) (*domain.TorrentRecord, error) {
	opID := uuid.NewString()
	if err := s.begin(infoHash, opID); err != nil {
		return nil, err
	}
	defer s.end(infoHash, opID)

	logger := s.cfg.Logger.WithFields(logrus.Fields{"op_id": opID, "info_hash": infoHash})

	rec, ok := s.registry.FindByIdentity(infoHash)
	if !ok {
		return nil, fmt.Errorf("toggle %s: %w", infoHash, domain.ErrNotFound)
	}
	target := !rec.Paused
	if want != nil {
		target = *want
	}
	if target == rec.Paused {
		return &rec, nil
	}

	if target {
		if err := s.engine.Remove(ctx, infoHash); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Warnf("engine remove failed: %v", err)
			return nil, engineError("pause", err)
		}
		updated, ok := s.commitUpdate(ctx, infoHash, func(r *domain.TorrentRecord) { r.Paused = true })
		if !ok {
			return nil, fmt.Errorf("pause %s: %w", infoHash, domain.ErrNotFound)
		}
		logger.Info("transfer paused")
		return &updated, nil
	}

	h, err := s.engine.AddBySource(ctx, rec.MagnetURI, domain.AddOptions{
		Announce: rec.Announce,
		Path:     rec.Path,
		Private:  rec.Private,
	})
	if err != nil {
		logger.Warnf("engine add failed: %v", err)
		return nil, engineError("resume", err)
	}
	updated, ok := s.commitUpdate(ctx, infoHash, func(r *domain.TorrentRecord) {
		r.Paused = false
		if md, ok := h.Metadata(); ok {
			r.ApplyMetadata(md)
		}
	})
	if !ok {
		return nil, fmt.Errorf("resume %s: %w", infoHash, domain.ErrNotFound)
	}
	s.watchMetadata(h)
	logger.Info("transfer resumed")
	return &updated, nil
}

func (s *torrentService) Remove(ctx context.Context, infoHash string) error {
	opID := uuid.NewString()
	if err := s.begin(infoHash, opID); err != nil {
		return err
	}
	defer s.end(infoHash, opID)

	logger := s.cfg.Logger.WithFields(logrus.Fields{"op_id": opID, "info_hash": infoHash})

	s.commitMu.Lock()
	_, removed := s.registry.RemoveByIdentity(infoHash)
	s.commitMu.Unlock()

	if _, live := s.engine.Lookup(infoHash); live {
		if err := s.engine.Remove(ctx, infoHash); err != nil {
			logger.Errorf("engine remove failed: %v", err)
		}
	}

	s.commitMu.Lock()
	err := s.saveLocked(ctx)
	s.commitMu.Unlock()
	if err != nil {
		return err
	}
	if removed {
		logger.Info("transfer removed")
	}
	return nil
}

func (s *torrentService) Details(ctx context.Context, infoHash string) (*domain.TorrentView, error) {
	rec, ok := s.registry.FindByIdentity(infoHash)
	if !ok {
		return nil, fmt.Errorf("details %s: %w", infoHash, domain.ErrNotFound)
	}
	var stats *domain.Stats
	if h, live := s.engine.Lookup(infoHash); live && !rec.Paused {
		st := h.Stats()
		stats = &st
	}
	view := domain.NewTorrentView(rec, stats)
	return &view, nil
}

// RecordFile returns the raw .torrent descriptor and a file name for it.
func (s *torrentService) RecordFile(ctx context.Context, infoHash string) ([]byte, string, error) {
	rec, ok := s.registry.FindByIdentity(infoHash)
	if !ok {
		return nil, "", fmt.Errorf("record file %s: %w", infoHash, domain.ErrNotFound)
	}
	blob := rec.TorrentFile
	if len(blob) == 0 {
		if h, live := s.engine.Lookup(infoHash); live {
			if md, ok := h.Metadata(); ok {
				blob = md.TorrentFile
			}
		}
	}
	if len(blob) == 0 {
		return nil, "", fmt.Errorf("record file %s: %w", infoHash, domain.ErrMetadataPending)
	}
	name := rec.Name
	if name == "" {
		name = infoHash
	}
	return blob, name + ".torrent", nil
}

// watchMetadata records engine-resolved metadata once it arrives.
func (s *torrentService) watchMetadata(h downloader.Handle) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
			return
		case <-h.GotMetadata():
		}
		md, ok := h.Metadata()
		if !ok {
			return
		}
		id := h.InfoHash()
		if current, live := s.engine.Lookup(id); !live || current != h {
			return
		}
		if _, ok := s.commitUpdate(s.ctx, id, func(r *domain.TorrentRecord) {
			r.ApplyMetadata(md)
			r.MagnetURI = h.MagnetURI()
		}); ok {
			s.cfg.Logger.WithField("info_hash", id).Infof("metadata resolved: %s", md.Name)
		}
	}()
}

// commitUpdate mutates one record and saves the store. Save failures are logged.
func (s *torrentService) commitUpdate(ctx context.Context, id string, fn func(*domain.TorrentRecord)) (domain.TorrentRecord, bool) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	updated, ok := s.registry.Update(id, fn)
	if !ok {
		return domain.TorrentRecord{}, false
	}
	if err := s.saveLocked(ctx); err != nil {
		s.cfg.Logger.WithField("info_hash", id).Errorf("save store: %v", err)
	}
	return updated, true
}

// saveLocked writes the registry's durable subset. commitMu must be held.
func (s *torrentService) saveLocked(ctx context.Context) error {
	snapshot := s.registry.Snapshot()
	records := make([]domain.StoredRecord, len(snapshot))
	for i := range snapshot {
		records[i] = snapshot[i].Stored()
	}
	if err := s.store.Save(ctx, records); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

// begin takes the per-identity operation lock.
func (s *torrentService) begin(id, opID string) error {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return fmt.Errorf("%s: %w", id, domain.ErrOperationInProgress)
	}
	s.inflight[id] = opID
	return nil
}

func (s *torrentService) end(id, opID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if s.inflight[id] == opID {
		delete(s.inflight, id)
	}
}

func engineError(op string, err error) error {
	if errors.Is(err, domain.ErrEngineFailure) || errors.Is(err, domain.ErrResourceMissing) || errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrEngineFailure)
}

var _ TorrentService = (*torrentService)(nil)
