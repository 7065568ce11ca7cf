package downloader

import (
	"context"

	"spate/internal/domain"
)

// Engine moves bytes for transfers. Identities are lowercase hex info hashes.
type Engine interface {
	// Identify returns the identity source resolves to without adding it.
	Identify(ctx context.Context, source string) (string, error)
	AddBySource(ctx context.Context, source string, opts domain.AddOptions) (Handle, error)
	Seed(ctx context.Context, path string, opts domain.SeedOptions) (Handle, error)
	Remove(ctx context.Context, infoHash string) error
	Lookup(infoHash string) (Handle, bool)
}

// Handle is a live transfer held by the engine.
type Handle interface {
	InfoHash() string
	MagnetURI() string
	Announce() []string
	Path() string
	// GotMetadata is closed once the info dictionary is known.
	GotMetadata() <-chan struct{}
	Metadata() (domain.Metadata, bool)
	Stats() domain.Stats
}
