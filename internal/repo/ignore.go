package repo

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/docsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is looked up at the root of every backend.
const IgnoreFileName = ".docsyncignore"

// IgnoreFilter answers whether a backend-relative path is excluded from
// listing. It is loaded once per backend instance.
type IgnoreFilter struct {
	baseDir string
	rules   int
	ignore  *gitignore.GitIgnore
}

func NewIgnoreFilter(baseDir string) *IgnoreFilter {
	return &IgnoreFilter{baseDir: baseDir}
}

// Load compiles the ignore file if there is one. A missing or unreadable
// file leaves an empty rule set.
func (f *IgnoreFilter) Load() {
	var lines []string
	ignorePath := filepath.Join(f.baseDir, IgnoreFileName)

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" && !strings.HasPrefix(line, "#") {
					lines = append(lines, line)
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", len(lines))
			}
		}
	}

	f.rules = len(lines)
	f.ignore = gitignore.CompileIgnoreLines(lines...)
}

// Rules is the number of patterns loaded.
func (f *IgnoreFilter) Rules() int {
	return f.rules
}

// IsIgnored matches a slash-separated relative path. Directories are matched
// with a trailing slash so "dir/" patterns apply.
func (f *IgnoreFilter) IsIgnored(relPath string, isDir bool) bool {
	if f.ignore == nil || f.rules == 0 {
		return false
	}
	p := filepath.ToSlash(relPath)
	if isDir && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return f.ignore.MatchesPath(p)
}
