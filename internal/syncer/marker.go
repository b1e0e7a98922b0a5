package syncer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/openmined/docsync/internal/utils"
)

// ConflictMarker is inserted before the extension of a local copy that lost
// a conflict, e.g. "notes.org" -> "notes.conflict.org".
const ConflictMarker = ".conflict"

const rotationFormat = "20060102150405"

var markerRe = regexp.MustCompile(regexp.QuoteMeta(ConflictMarker) + `(\.\d{14})?`)

// markConflict moves path aside under the conflict marker. An older marked
// copy is rotated to a timestamped name first. It returns the marked path.
func markConflict(path string) (string, error) {
	if !utils.FileExists(path) {
		return "", fmt.Errorf("cannot mark %s: file does not exist", path)
	}

	marked := markedPath(path)
	if utils.FileExists(marked) {
		rotated := rotatedPath(marked, time.Now())
		if err := os.Rename(marked, rotated); err != nil {
			return "", fmt.Errorf("rotate %s: %w", marked, err)
		}
		slog.Debug("rotated conflict copy", "from", marked, "to", rotated)
	}

	if err := os.Rename(path, marked); err != nil {
		return "", fmt.Errorf("mark %s: %w", path, err)
	}
	return marked, nil
}

// IsConflictCopy reports whether path is a marked or rotated conflict copy.
func IsConflictCopy(path string) bool {
	return markerRe.MatchString(filepath.Base(path))
}

// UnmarkedPath strips the marker and any rotation stamp.
func UnmarkedPath(path string) string {
	dir, name := filepath.Split(path)
	return dir + markerRe.ReplaceAllString(name, "")
}

func markedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ConflictMarker + ext
}

func rotatedPath(path string, t time.Time) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s.%s%s", strings.TrimSuffix(path, ext), t.Format(rotationFormat), ext)
}
