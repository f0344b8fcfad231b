package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Entry is one document listed in a batch manifest
type Entry struct {
	Path string
	// UserID submits the document on behalf of a user; zero means the
	// default CLI user.
	UserID int64
}

// ReadBatchFile reads a manifest of documents to translate.
// Supported line formats:
//   - a path: "reports/q3.txt"
//   - a user and a path: "42 = reports/q3.txt"
//
// Blank lines and lines starting with '#' are ignored. Relative paths are
// resolved against the manifest's directory.
func ReadBatchFile(filename string) ([]Entry, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	base := filepath.Dir(filename)
	var entries []Entry

	for n, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry := Entry{Path: line}
		if user, path, ok := strings.Cut(line, "="); ok {
			user, path = strings.TrimSpace(user), strings.TrimSpace(path)
			if path == "" {
				return nil, fmt.Errorf("%s:%d: missing document path", filename, n+1)
			}
			id, err := strconv.ParseInt(user, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("%s:%d: invalid user id %q", filename, n+1, user)
			}
			entry = Entry{Path: path, UserID: id}
		}

		if !filepath.IsAbs(entry.Path) {
			entry.Path = filepath.Join(base, entry.Path)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
