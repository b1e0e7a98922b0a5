package repo

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const FileScheme = "file"

// LocalRoot parses a file:// root URI into an absolute local directory.
func LocalRoot(rootURI string) (string, error) {
	u, err := url.Parse(rootURI)
	if err != nil {
		return "", NewError(CodeConfiguration, "parse root", rootURI, "malformed uri", err)
	}
	if u.Scheme != FileScheme {
		return "", NewError(CodeConfiguration, "parse root", rootURI, "missing file scheme", nil)
	}
	if u.Path == "" {
		return "", NewError(CodeConfiguration, "parse root", rootURI, "no path", nil)
	}
	if !filepath.IsAbs(filepath.FromSlash(u.Path)) {
		return "", NewError(CodeConfiguration, "parse root", rootURI, "path is not absolute", nil)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}

// JoinURI appends a relative document path to a root URI. Each path segment
// is escaped; RelativePath reverses it.
func JoinURI(rootURI, relPath string) string {
	segments := strings.Split(strings.TrimPrefix(relPath, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimSuffix(rootURI, "/") + "/" + strings.Join(segments, "/")
}

// RelativePath extracts the root-relative path from a document URI. It
// accepts URIs below rootURI as well as bare "/rel/path" forms.
func RelativePath(rootURI, docURI string) (string, error) {
	if docURI == "" {
		return "", NewError(CodeConfiguration, "parse document", docURI, "empty uri", nil)
	}

	rel := docURI
	prefix := strings.TrimSuffix(rootURI, "/") + "/"
	if rootURI != "" && strings.HasPrefix(docURI, prefix) {
		rel = strings.TrimPrefix(docURI, prefix)
	} else if u, err := url.Parse(docURI); err == nil && u.Scheme != "" {
		return "", NewError(CodeConfiguration, "parse document", docURI, "uri outside of root "+rootURI, nil)
	}

	if unescaped, err := url.PathUnescape(rel); err == nil {
		rel = unescaped
	}
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" || rel == "." {
		return "", NewError(CodeConfiguration, "parse document", docURI, "no path", nil)
	}
	return rel, nil
}
