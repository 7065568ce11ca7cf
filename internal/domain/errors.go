package domain

import "errors"

var (
	// ErrDuplicateIdentity is returned when inserting a record whose identity is already registered.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	// ErrStoreCorrupt indicates the persisted torrents document exists but cannot be parsed.
	ErrStoreCorrupt = errors.New("store corrupt")
	// ErrEngineFailure wraps rejections from the transfer engine.
	ErrEngineFailure = errors.New("engine failure")
	// ErrResourceMissing marks a record whose local path no longer exists.
	ErrResourceMissing = errors.New("resource missing")
	// ErrNotFound is returned for identities the registry does not know.
	ErrNotFound = errors.New("torrent not found")
	// ErrOperationInProgress is returned when another operation holds the identity.
	ErrOperationInProgress = errors.New("operation in progress")
	// ErrMetadataPending is returned when the descriptor blob is requested before metadata resolved.
	ErrMetadataPending = errors.New("metadata not yet available")
)
