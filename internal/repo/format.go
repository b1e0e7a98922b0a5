package repo

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Format is a supported document format.
type Format string

const (
	FormatOrg Format = "org"
)

// DefaultFormat is the format renamed documents are given.
const DefaultFormat = FormatOrg

// supportedPatterns are matched against the base name of a file.
var supportedPatterns = []string{
	"*.org",
	"*.org.txt",
}

// IsSupportedFormat reports whether the file at p is a document this module
// synchronizes. Hidden files never are.
func IsSupportedFormat(p string) bool {
	name := path.Base(p)
	if strings.HasPrefix(name, ".") {
		return false
	}
	for _, pattern := range supportedPatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// DocumentPath turns a document name into a relative path with the format's
// extension, e.g. "notes/today" -> "notes/today.org".
func DocumentPath(name string, format Format) string {
	return strings.TrimPrefix(name, "/") + "." + string(format)
}

// DocumentName strips the supported extension off a relative path.
func DocumentName(p string) string {
	for _, suffix := range []string{".org.txt", ".org"} {
		if strings.HasSuffix(p, suffix) {
			return strings.TrimSuffix(p, suffix)
		}
	}
	return p
}

// IsNested reports whether a document name implies a subfolder.
func IsNested(name string) bool {
	return strings.Contains(strings.TrimPrefix(name, "/"), "/")
}
