// Package syncer drives sync passes. Every backend gets a local working
// directory under the store dir; a pass compares it with the backend listing
// and the journal, then moves each document in whichever direction changed.
//
// Backends are driven one goroutine each. A single backend is never touched
// by two goroutines at once.
package syncer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/docsync/internal/journal"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Op is what a pass did with one document.
type Op string

const (
	OpDownload     Op = "download"
	OpUpload       Op = "upload"
	OpMerge        Op = "merge"
	OpConflict     Op = "conflict"
	OpDeleteRemote Op = "delete-remote"
	OpDeleteLocal  Op = "delete-local"
)

type Action struct {
	Path     string `json:"path"`
	Op       Op     `json:"op"`
	Revision string `json:"revision,omitempty"`
	// ConflictCopy is where the losing local copy was moved.
	ConflictCopy string `json:"conflict_copy,omitempty"`
}

type Report struct {
	BackendID int64         `json:"backend_id"`
	Kind      repo.Kind     `json:"kind"`
	Skipped   bool          `json:"skipped"`
	Actions   []Action      `json:"actions"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
}

// Conflicts counts actions that left a conflict for the user.
func (r Report) Conflicts() int {
	n := 0
	for _, a := range r.Actions {
		if a.Op == OpConflict || a.ConflictCopy != "" {
			n++
		}
	}
	return n
}

type Syncer struct {
	journal    *journal.Journal
	storeDir   string
	subfolders bool
}

func New(j *journal.Journal, storeDir string, subfolders bool) *Syncer {
	return &Syncer{journal: j, storeDir: storeDir, subfolders: subfolders}
}

// LocalDir is the working directory kept for b.
func (s *Syncer) LocalDir(b repo.SyncBackend) string {
	return filepath.Join(s.storeDir, strconv.FormatInt(b.ID(), 10))
}

// SyncAll runs one pass per backend concurrently. The first failing pass
// cancels the others; reports of finished passes are still returned.
func (s *Syncer) SyncAll(ctx context.Context, backends []repo.SyncBackend) ([]Report, error) {
	reports := make([]Report, len(backends))
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			r, err := s.Sync(ctx, b)
			reports[i] = r
			if err != nil {
				return fmt.Errorf("backend %d: %w", b.ID(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	return reports, err
}

// pass holds the state of one backend pass.
type pass struct {
	*Syncer
	b       repo.SyncBackend
	tw      repo.TwoWaySyncBackend
	dir     string
	entries map[string]journal.Entry
	local   map[string]string
	remote  map[string]repo.VersionedDocument
	report  *Report
}

// Sync runs one pass over b.
func (s *Syncer) Sync(ctx context.Context, b repo.SyncBackend) (report Report, err error) {
	report = Report{BackendID: b.ID(), Kind: b.Kind(), Started: time.Now()}
	defer func() { report.Duration = time.Since(report.Started) }()

	p := &pass{Syncer: s, b: b, dir: s.LocalDir(b), report: &report}
	p.tw, _ = b.(repo.TwoWaySyncBackend)
	if err := p.run(ctx); err != nil {
		return report, err
	}
	slog.Info("sync pass", "backend", b.ID(), "kind", b.Kind(), "actions", len(report.Actions), "skipped", report.Skipped, "took", time.Since(report.Started))
	return report, nil
}

func (p *pass) run(ctx context.Context) error {
	if err := utils.EnsureDir(p.dir); err != nil {
		return fmt.Errorf("local dir: %w", err)
	}

	var err error
	if p.entries, err = p.journal.Entries(p.b.ID()); err != nil {
		return err
	}
	recursive := p.subfolders && p.b.Kind() != repo.KindDirectory
	if p.local, err = scanLocal(p.dir, recursive); err != nil {
		return fmt.Errorf("scan local: %w", err)
	}

	// IsUnchanged also integrates the remote, so the listing below is fresh
	if p.tw != nil {
		unchanged, err := p.tw.IsUnchanged(ctx)
		if err != nil {
			return err
		}
		if unchanged && len(p.entries) > 0 && !p.localDirty() {
			p.report.Skipped = true
			p.tw.PushIfHeadDiffersFromRemote(ctx)
			return nil
		}
	}

	docs, err := p.b.ListDocuments(ctx)
	if err != nil {
		return err
	}
	p.remote = make(map[string]repo.VersionedDocument, len(docs))
	for _, d := range docs {
		p.remote[d.Path] = d
	}

	for _, path := range p.paths() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.syncPath(ctx, path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if p.tw != nil {
		p.tw.PushIfHeadDiffersFromRemote(ctx)
	}
	return nil
}

// localDirty is true when any local copy differs from what the journal
// recorded, including added and removed files.
func (p *pass) localDirty() bool {
	if len(p.local) != len(p.entries) {
		return true
	}
	for path, hash := range p.local {
		e, ok := p.entries[path]
		if !ok || e.LocalHash != hash {
			return true
		}
	}
	return false
}

func (p *pass) paths() []string {
	all := mapset.NewThreadUnsafeSet[string]()
	for k := range p.local {
		all.Add(k)
	}
	for k := range p.remote {
		all.Add(k)
	}
	for k := range p.entries {
		all.Add(k)
	}
	out := all.ToSlice()
	sort.Strings(out)
	return out
}

func (p *pass) syncPath(ctx context.Context, path string) error {
	entry, known := p.entries[path]
	remote, inRemote := p.remote[path]
	hash, inLocal := p.local[path]

	localChanged := inLocal && (!known || hash != entry.LocalHash)
	remoteChanged := inRemote && (!known || remote.Revision != entry.Doc.Revision)

	switch {
	case !inLocal && !inRemote:
		return p.journal.Delete(p.b.ID(), path)

	case inRemote && !inLocal:
		if known && !remoteChanged {
			return p.deleteRemote(ctx, remote)
		}
		return p.download(ctx, path, "")

	case inLocal && !inRemote:
		if known && !localChanged {
			return p.deleteLocal(path)
		}
		return p.upload(ctx, path)

	case !localChanged && !remoteChanged:
		return nil

	case !localChanged:
		return p.download(ctx, path, "")

	case !remoteChanged:
		return p.upload(ctx, path)

	case !known:
		return p.firstContact(ctx, path, remote, hash)

	case p.tw != nil:
		return p.merge(ctx, path, remote, entry.Doc)

	default:
		return p.conflict(ctx, path)
	}
}

// firstContact handles a document present on both sides with no history.
// Identical content is adopted; otherwise the remote copy wins and the
// local one is kept aside.
func (p *pass) firstContact(ctx context.Context, path string, remote repo.VersionedDocument, localHash string) error {
	remoteHash, err := p.remoteHash(ctx, path)
	if err != nil {
		return err
	}
	if remoteHash == localHash {
		return p.journal.Set(remote, localHash)
	}
	if p.tw != nil {
		if _, err := p.tw.SyncDocument(ctx, remote.URI, nil, p.localPath(path)); err != nil {
			return err
		}
	}
	return p.conflict(ctx, path)
}

func (p *pass) merge(ctx context.Context, path string, remote repo.VersionedDocument, known repo.VersionedDocument) error {
	local := p.localPath(path)
	res, err := p.tw.SyncDocument(ctx, remote.URI, &known, local)
	if err != nil {
		return err
	}
	if err := utils.CopyFile(res.WorkingCopyPath, local); err != nil {
		return err
	}
	hash, err := utils.FileHash(local)
	if err != nil {
		return err
	}
	if err := p.journal.Set(res.Updated, hash); err != nil {
		return err
	}

	op := OpMerge
	if !res.Merged {
		op = OpConflict
		slog.Warn("sync conflict", "backend", p.b.ID(), "path", path, "revision", res.Updated.Revision)
	}
	p.record(Action{Path: path, Op: op, Revision: res.Updated.Revision})
	return nil
}

// conflict keeps the local copy under the conflict marker and takes the
// remote copy.
func (p *pass) conflict(ctx context.Context, path string) error {
	marked, err := markConflict(p.localPath(path))
	if err != nil {
		return err
	}
	slog.Warn("sync conflict, local copy kept aside", "backend", p.b.ID(), "path", path, "copy", marked)
	return p.download(ctx, path, marked)
}

func (p *pass) download(ctx context.Context, path, conflictCopy string) error {
	local := p.localPath(path)
	doc, err := p.b.RetrieveDocument(ctx, path, local)
	if err != nil {
		return err
	}
	hash, err := utils.FileHash(local)
	if err != nil {
		return err
	}
	if err := p.journal.Set(doc, hash); err != nil {
		return err
	}
	op := OpDownload
	if conflictCopy != "" {
		op = OpConflict
	}
	p.record(Action{Path: path, Op: op, Revision: doc.Revision, ConflictCopy: conflictCopy})
	return nil
}

func (p *pass) upload(ctx context.Context, path string) error {
	doc, err := p.b.StoreDocument(ctx, p.localPath(path), path)
	if err != nil {
		return err
	}
	if err := p.journal.Set(doc, p.local[path]); err != nil {
		return err
	}
	p.record(Action{Path: path, Op: OpUpload, Revision: doc.Revision})
	return nil
}

func (p *pass) deleteRemote(ctx context.Context, remote repo.VersionedDocument) error {
	if err := p.b.Delete(ctx, remote.URI); err != nil {
		return err
	}
	if err := p.journal.Delete(p.b.ID(), remote.Path); err != nil {
		return err
	}
	p.record(Action{Path: remote.Path, Op: OpDeleteRemote})
	return nil
}

func (p *pass) deleteLocal(path string) error {
	if err := os.Remove(p.localPath(path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := p.journal.Delete(p.b.ID(), path); err != nil {
		return err
	}
	p.record(Action{Path: path, Op: OpDeleteLocal})
	return nil
}

func (p *pass) remoteHash(ctx context.Context, path string) (string, error) {
	rc, err := p.b.OpenReadStream(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "docsync-remote-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, rc); err != nil {
		return "", err
	}
	return utils.FileHash(tmp.Name())
}

func (p *pass) record(a Action) {
	slog.Debug("sync action", "backend", p.b.ID(), "path", a.Path, "op", a.Op, "revision", a.Revision)
	p.report.Actions = append(p.report.Actions, a)
}

func (p *pass) localPath(path string) string {
	return filepath.Join(p.dir, filepath.FromSlash(path))
}

// scanLocal hashes every supported document below dir keyed by slash path.
// Hidden entries and conflict copies are skipped.
func scanLocal(dir string, recursive bool) (map[string]string, error) {
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if !recursive || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !repo.IsSupportedFormat(name) || IsConflictCopy(name) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		hash, err := utils.FileHash(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = hash
		return nil
	})
	return out, err
}
