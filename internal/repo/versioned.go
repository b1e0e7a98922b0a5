package repo

import (
	"fmt"
	"strconv"
	"time"
)

// Kind identifies a backend variant.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindGit       Kind = "git"
)

func (k Kind) Valid() bool {
	return k == KindDirectory || k == KindGit
}

// VersionedDocument is a document reference stamped with a content revision.
// It is a value: backends hand out a fresh one per call and never modify a
// document once returned. Two documents with the same URI and Revision are
// expected to have identical content; this is exact for commit ids and
// best-effort for timestamp revisions.
type VersionedDocument struct {
	BackendID  int64  `json:"backend_id"`
	Kind       Kind   `json:"kind"`
	RootURI    string `json:"root_uri"`
	URI        string `json:"uri"`
	Path       string `json:"path"` // relative to the backend root, slash separated
	Revision   string `json:"revision"`
	ModifiedAt int64  `json:"modified_at"` // epoch millis
}

// ModTime returns ModifiedAt as a time.Time.
func (d VersionedDocument) ModTime() time.Time {
	return time.UnixMilli(d.ModifiedAt)
}

func (d VersionedDocument) String() string {
	return fmt.Sprintf("%s@%s", d.URI, d.Revision)
}

// MillisRevision formats a modification time the way timestamp-versioned
// backends stamp revisions.
func MillisRevision(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
