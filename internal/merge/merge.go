// Package merge implements a line-based three-way text merge.
//
// Both sides are diffed against the common ancestor. Regions only one side
// touched take that side; regions both sides touched identically are taken
// once; anything else becomes a conflict hunk delimited by the usual markers.
// Adjacent edits from different sides count as overlapping, as in git.
package merge

import (
	"bytes"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	DefaultOursLabel   = "local"
	DefaultTheirsLabel = "remote"

	markerOurs   = "<<<<<<<"
	markerSep    = "======="
	markerTheirs = ">>>>>>>"
)

// Options labels the sides in conflict markers.
type Options struct {
	OursLabel   string
	TheirsLabel string
}

func (o Options) withDefaults() Options {
	if o.OursLabel == "" {
		o.OursLabel = DefaultOursLabel
	}
	if o.TheirsLabel == "" {
		o.TheirsLabel = DefaultTheirsLabel
	}
	return o
}

// Result is the merged content. When Conflict is set Content still holds the
// best-effort merge with every conflicting region marked.
type Result struct {
	Content   []byte
	Conflict  bool
	Conflicts int
}

const (
	sideOurs = iota
	sideTheirs
)

// hunk replaces base lines [start, end) with lines.
type hunk struct {
	start int
	end   int
	lines []string
	side  int
}

// Merge reconciles ours and theirs against base.
func Merge(base, ours, theirs []byte, opts Options) Result {
	opts = opts.withDefaults()

	switch {
	case bytes.Equal(ours, theirs):
		return Result{Content: clone(ours)}
	case bytes.Equal(base, ours):
		return Result{Content: clone(theirs)}
	case bytes.Equal(base, theirs):
		return Result{Content: clone(ours)}
	}

	baseText := string(base)
	baseLines := splitLines(baseText)

	hunks := append(
		hunksOf(diff.Do(baseText, string(ours)), sideOurs),
		hunksOf(diff.Do(baseText, string(theirs)), sideTheirs)...,
	)
	sort.SliceStable(hunks, func(i, j int) bool {
		if hunks[i].start != hunks[j].start {
			return hunks[i].start < hunks[j].start
		}
		return hunks[i].side < hunks[j].side
	})

	var out strings.Builder
	res := Result{}
	pos := 0

	for i := 0; i < len(hunks); {
		// grow a region until no remaining hunk touches it
		lo, hi := hunks[i].start, hunks[i].end
		j := i + 1
		for j < len(hunks) && hunks[j].start <= hi {
			if hunks[j].end > hi {
				hi = hunks[j].end
			}
			j++
		}
		group := hunks[i:j]
		i = j

		writeLines(&out, baseLines[pos:lo])
		pos = hi

		oursSide, theirsSide := split(group)
		switch {
		case len(theirsSide) == 0:
			writeLines(&out, apply(baseLines, lo, hi, oursSide))
		case len(oursSide) == 0:
			writeLines(&out, apply(baseLines, lo, hi, theirsSide))
		default:
			o := apply(baseLines, lo, hi, oursSide)
			t := apply(baseLines, lo, hi, theirsSide)
			if equalLines(o, t) {
				writeLines(&out, o)
				continue
			}
			res.Conflict = true
			res.Conflicts++
			writeConflict(&out, o, t, opts)
		}
	}
	writeLines(&out, baseLines[pos:])

	res.Content = []byte(out.String())
	return res
}

// hunksOf turns a line diff against base into replacement hunks.
func hunksOf(diffs []diffmatchpatch.Diff, side int) []hunk {
	var hunks []hunk
	var cur *hunk
	baseIdx := 0

	flush := func() {
		if cur != nil {
			hunks = append(hunks, *cur)
			cur = nil
		}
	}

	for _, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			baseIdx += len(lines)
		case diffmatchpatch.DiffDelete:
			if cur == nil {
				cur = &hunk{start: baseIdx, end: baseIdx, side: side}
			}
			baseIdx += len(lines)
			cur.end = baseIdx
		case diffmatchpatch.DiffInsert:
			if cur == nil {
				cur = &hunk{start: baseIdx, end: baseIdx, side: side}
			}
			cur.lines = append(cur.lines, lines...)
		}
	}
	flush()
	return hunks
}

func split(group []hunk) (ours, theirs []hunk) {
	for _, h := range group {
		if h.side == sideOurs {
			ours = append(ours, h)
		} else {
			theirs = append(theirs, h)
		}
	}
	return ours, theirs
}

// apply renders base[lo:hi] with one side's hunks applied.
func apply(base []string, lo, hi int, hunks []hunk) []string {
	var out []string
	pos := lo
	for _, h := range hunks {
		out = append(out, base[pos:h.start]...)
		out = append(out, h.lines...)
		pos = h.end
	}
	return append(out, base[pos:hi]...)
}

func writeConflict(out *strings.Builder, ours, theirs []string, opts Options) {
	out.WriteString(markerOurs + " " + opts.OursLabel + "\n")
	writeTerminated(out, ours)
	out.WriteString(markerSep + "\n")
	writeTerminated(out, theirs)
	out.WriteString(markerTheirs + " " + opts.TheirsLabel + "\n")
}

// writeTerminated makes sure a marker line never ends up glued to content.
func writeTerminated(out *strings.Builder, lines []string) {
	writeLines(out, lines)
	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		out.WriteString("\n")
	}
}

func writeLines(out *strings.Builder, lines []string) {
	for _, l := range lines {
		out.WriteString(l)
	}
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// splitLines keeps line terminators so content round-trips exactly.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte(nil), b...)
}

// HasConflictMarkers reports whether content still carries an unresolved hunk.
func HasConflictMarkers(content []byte) bool {
	for _, line := range splitLines(string(content)) {
		if strings.HasPrefix(line, markerOurs+" ") || strings.HasPrefix(line, markerTheirs+" ") {
			return true
		}
	}
	return false
}
