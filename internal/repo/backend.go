// Package repo defines the synchronization contract shared by every backend
// kind, and the value types those backends hand back.
//
// Backends are not safe for concurrent use. A caller must keep at most one
// operation in flight per backend instance; different instances share no
// state and may be driven in parallel.
package repo

import (
	"context"
	"io"
)

// SyncBackend is the uniform set of operations every backend offers.
type SyncBackend interface {
	// ID is the configured backend id stamped on every returned document.
	ID() int64

	// Kind is the backend variant.
	Kind() Kind

	// IsConnectionRequired is true if any operation needs the network.
	IsConnectionRequired() bool

	// IsAutoSyncSupported is true if the backend can be driven from a
	// background trigger.
	IsAutoSyncSupported() bool

	// RootURI is the backend's root.
	RootURI() string

	// ListDocuments returns all supported, non-ignored, non-hidden documents
	// sorted by relative path.
	ListDocuments(ctx context.Context) ([]VersionedDocument, error)

	// RetrieveDocument copies the document at relPath to destination.
	RetrieveDocument(ctx context.Context, relPath, destination string) (VersionedDocument, error)

	// OpenReadStream opens the document at relPath for reading.
	OpenReadStream(ctx context.Context, relPath string) (io.ReadCloser, error)

	// StoreDocument writes sourceFile to relPath, overwriting.
	StoreDocument(ctx context.Context, sourceFile, relPath string) (VersionedDocument, error)

	// RenameDocument renames the document at oldURI to newName (without
	// extension). A nil document with a nil error means nothing changed.
	RenameDocument(ctx context.Context, oldURI, newName string) (*VersionedDocument, error)

	// Delete removes the document at uri. An absent document is not an error.
	Delete(ctx context.Context, uri string) error

	// Close releases the session held by the backend.
	Close() error
}

// TwoWaySyncBackend is implemented by backends that keep full history and can
// reconcile a local edit against the remote.
type TwoWaySyncBackend interface {
	SyncBackend

	// SyncDocument merges localFile into the remote copy of uri. known is the
	// last version the caller saw, or nil if it has none.
	SyncDocument(ctx context.Context, uri string, known *VersionedDocument, localFile string) (TwoWaySyncResult, error)

	// IsUnchanged reports whether the remote moved since the previous sync.
	IsUnchanged(ctx context.Context) (bool, error)

	// PushIfHeadDiffersFromRemote retries pushing local history. Failures
	// are logged, not returned.
	PushIfHeadDiffersFromRemote(ctx context.Context)
}

// TwoWaySyncResult is the outcome of SyncDocument. WorkingCopyPath holds the
// authoritative content after the merge, including conflict markers when
// Merged is false; callers must re-read it instead of assuming their local
// content survived verbatim.
type TwoWaySyncResult struct {
	Updated         VersionedDocument
	Merged          bool
	WorkingCopyPath string
}

// Settings are the application-level switches threaded into every backend.
type Settings struct {
	SubfolderSupport bool
}
