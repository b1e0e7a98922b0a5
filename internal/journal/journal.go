// Package journal persists the last version of every document a sync pass
// saw on each backend, together with the hash of the local copy it left
// behind. The next pass compares against it to tell local edits from remote
// ones.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/repo"
)

const schema = `
CREATE TABLE IF NOT EXISTS known_versions (
    backend_id  INTEGER NOT NULL,
    path        TEXT NOT NULL,
    kind        TEXT NOT NULL,
    root_uri    TEXT NOT NULL,
    uri         TEXT NOT NULL,
    revision    TEXT NOT NULL,
    modified_at INTEGER NOT NULL,
    local_hash  TEXT NOT NULL,
    synced_at   TEXT NOT NULL, -- RFC3339
    PRIMARY KEY (backend_id, path)
);

CREATE INDEX IF NOT EXISTS idx_known_versions_backend ON known_versions(backend_id);
`

// Entry is one journal row.
type Entry struct {
	Doc       repo.VersionedDocument
	LocalHash string
	SyncedAt  time.Time
}

type row struct {
	BackendID  int64  `db:"backend_id"`
	Path       string `db:"path"`
	Kind       string `db:"kind"`
	RootURI    string `db:"root_uri"`
	URI        string `db:"uri"`
	Revision   string `db:"revision"`
	ModifiedAt int64  `db:"modified_at"`
	LocalHash  string `db:"local_hash"`
	SyncedAt   string `db:"synced_at"`
}

func (r row) entry() (Entry, error) {
	synced, err := time.Parse(time.RFC3339, r.SyncedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse synced_at for %s: %w", r.Path, err)
	}
	return Entry{
		Doc: repo.VersionedDocument{
			BackendID:  r.BackendID,
			Kind:       repo.Kind(r.Kind),
			RootURI:    r.RootURI,
			URI:        r.URI,
			Path:       r.Path,
			Revision:   r.Revision,
			ModifiedAt: r.ModifiedAt,
		},
		LocalHash: r.LocalHash,
		SyncedAt:  synced,
	}, nil
}

// Journal is safe for concurrent use; sqlite serializes writers.
type Journal struct {
	db   *sqlx.DB
	path string
}

// Open creates or opens the journal at path. db.Memory gives a throwaway one.
func Open(path string) (*Journal, error) {
	conn, err := db.Open(schema, db.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("open sync journal: %w", err)
	}
	return &Journal{db: conn, path: path}, nil
}

func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		slog.Error("sync journal close", "path", j.path, "error", err)
		return err
	}
	return nil
}

// Get returns the entry for a document, or nil if the journal never saw it.
func (j *Journal) Get(backendID int64, path string) (*Entry, error) {
	var r row
	err := j.db.Get(&r, "SELECT * FROM known_versions WHERE backend_id = ? AND path = ?", backendID, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %d/%s: %w", backendID, path, err)
	}
	e, err := r.entry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Set records doc as the known version with the local copy's hash.
func (j *Journal) Set(doc repo.VersionedDocument, localHash string) error {
	r := row{
		BackendID:  doc.BackendID,
		Path:       doc.Path,
		Kind:       string(doc.Kind),
		RootURI:    doc.RootURI,
		URI:        doc.URI,
		Revision:   doc.Revision,
		ModifiedAt: doc.ModifiedAt,
		LocalHash:  localHash,
		SyncedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	_, err := j.db.NamedExec(`INSERT OR REPLACE INTO known_versions
		(backend_id, path, kind, root_uri, uri, revision, modified_at, local_hash, synced_at)
		VALUES (:backend_id, :path, :kind, :root_uri, :uri, :revision, :modified_at, :local_hash, :synced_at)`, r)
	if err != nil {
		return fmt.Errorf("set %d/%s: %w", doc.BackendID, doc.Path, err)
	}
	slog.Debug("sync journal set", "backend", doc.BackendID, "path", doc.Path, "revision", doc.Revision)
	return nil
}

func (j *Journal) Delete(backendID int64, path string) error {
	if _, err := j.db.Exec("DELETE FROM known_versions WHERE backend_id = ? AND path = ?", backendID, path); err != nil {
		return fmt.Errorf("delete %d/%s: %w", backendID, path, err)
	}
	return nil
}

// Entries returns every entry of a backend keyed by path. Corrupt rows are
// logged and skipped.
func (j *Journal) Entries(backendID int64) (map[string]Entry, error) {
	var rows []row
	if err := j.db.Select(&rows, "SELECT * FROM known_versions WHERE backend_id = ?", backendID); err != nil {
		return nil, fmt.Errorf("query backend %d: %w", backendID, err)
	}
	out := make(map[string]Entry, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			slog.Error("sync journal corrupt row", "backend", backendID, "path", r.Path, "error", err)
			continue
		}
		out[r.Path] = e
	}
	return out, nil
}

func (j *Journal) Count(backendID int64) (int, error) {
	var n int
	if err := j.db.Get(&n, "SELECT COUNT(*) FROM known_versions WHERE backend_id = ?", backendID); err != nil {
		return 0, fmt.Errorf("count backend %d: %w", backendID, err)
	}
	return n, nil
}

// Forget drops everything known about a backend.
func (j *Journal) Forget(backendID int64) error {
	if _, err := j.db.Exec("DELETE FROM known_versions WHERE backend_id = ?", backendID); err != nil {
		return fmt.Errorf("forget backend %d: %w", backendID, err)
	}
	return nil
}
