// Package downloadertest provides an in-memory Engine for tests.
package downloadertest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"spate/internal/domain"
	"spate/internal/downloader"
)

type AddCall struct {
	Source string
	Opts   domain.AddOptions
}

// Engine records calls and holds handles in memory.
type Engine struct {
	mu      sync.Mutex
	handles map[string]*Handle

	IdentifyErr error
	AddErr      error
	SeedErr     error
	RemoveErr   error
	// Block, when set, is received from before AddBySource returns.
	Block chan struct{}

	AddCalls    []AddCall
	SeedCalls   []domain.SeedOptions
	RemoveCalls []string
}

func New() *Engine {
	return &Engine{handles: map[string]*Handle{}}
}

// IdentityOf mirrors how the fake derives identities from sources.
func IdentityOf(source string) string {
	if id, ok := downloader.ParseIdentity(source); ok {
		return id
	}
	const prefix = "magnet:?xt=urn:btih:"
	if strings.HasPrefix(source, prefix) {
		rest := strings.TrimPrefix(source, prefix)
		if i := strings.IndexByte(rest, '&'); i >= 0 {
			rest = rest[:i]
		}
		return rest
	}
	return source
}

func (e *Engine) Identify(ctx context.Context, source string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.IdentifyErr != nil {
		return "", e.IdentifyErr
	}
	return IdentityOf(source), nil
}

func (e *Engine) AddBySource(ctx context.Context, source string, opts domain.AddOptions) (downloader.Handle, error) {
	if e.Block != nil {
		select {
		case <-e.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.AddCalls = append(e.AddCalls, AddCall{Source: source, Opts: opts})
	if e.AddErr != nil {
		return nil, e.AddErr
	}
	id := IdentityOf(source)
	if h, ok := e.handles[id]; ok {
		return h, nil
	}
	h := NewHandle(id, opts.Path, opts.Announce)
	e.handles[id] = h
	return h, nil
}

func (e *Engine) Seed(ctx context.Context, path string, opts domain.SeedOptions) (downloader.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SeedCalls = append(e.SeedCalls, opts)
	if e.SeedErr != nil {
		return nil, e.SeedErr
	}
	sum := sha1.Sum([]byte(path))
	id := hex.EncodeToString(sum[:])
	if h, ok := e.handles[id]; ok {
		return h, nil
	}
	name := filepath.Base(path)
	if opts.Name != "" {
		name = opts.Name
	}
	h := NewHandle(id, filepath.Dir(path), opts.CustomTrackers)
	h.Resolve(domain.Metadata{
		Name:        name,
		Length:      1 << 20,
		PieceLength: 1 << 18,
		CreatedBy:   opts.CreatorLabel,
		Private:     opts.Private,
		TorrentFile: []byte("seeded:" + path),
	})
	e.handles[id] = h
	return h, nil
}

func (e *Engine) Remove(ctx context.Context, infoHash string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.RemoveCalls = append(e.RemoveCalls, infoHash)
	if e.RemoveErr != nil {
		return e.RemoveErr
	}
	if _, ok := e.handles[infoHash]; !ok {
		return fmt.Errorf("remove %s: %w", infoHash, domain.ErrNotFound)
	}
	delete(e.handles, infoHash)
	return nil
}

func (e *Engine) Lookup(infoHash string) (downloader.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[infoHash]
	if !ok {
		return nil, false
	}
	return h, true
}

// Handle returns the concrete fake handle for an identity.
func (e *Engine) Handle(infoHash string) (*Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[infoHash]
	return h, ok
}

// Put registers a handle directly, as if the engine held it already.
func (e *Engine) Put(h *Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handles[h.ID] = h
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// Handle is a fake live transfer.
type Handle struct {
	ID       string
	Dir      string
	Trackers []string

	mu       sync.Mutex
	md       domain.Metadata
	resolved bool
	got      chan struct{}
	stats    domain.Stats
}

func NewHandle(id, dir string, trackers []string) *Handle {
	return &Handle{
		ID:       id,
		Dir:      dir,
		Trackers: append([]string{}, trackers...),
		got:      make(chan struct{}),
	}
}

// Resolve publishes metadata and closes GotMetadata.
func (h *Handle) Resolve(md domain.Metadata) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.md = md
	if !h.resolved {
		h.resolved = true
		close(h.got)
	}
}

func (h *Handle) SetStats(st domain.Stats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = st
}

func (h *Handle) InfoHash() string { return h.ID }

func (h *Handle) MagnetURI() string {
	uri := "magnet:?xt=urn:btih:" + h.ID
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.md.Name != "" {
		uri += "&dn=" + h.md.Name
	}
	return uri
}

func (h *Handle) Announce() []string { return append([]string{}, h.Trackers...) }

func (h *Handle) Path() string { return h.Dir }

func (h *Handle) GotMetadata() <-chan struct{} { return h.got }

func (h *Handle) Metadata() (domain.Metadata, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.md, h.resolved
}

func (h *Handle) Stats() domain.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

var _ downloader.Engine = (*Engine)(nil)
