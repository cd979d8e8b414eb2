package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FS reads kernel-exported files under Root. Root is "/" in production and
// a temporary directory in tests.
type FS struct {
	Root string
}

// HostFS returns an FS rooted at "/".
func HostFS() FS {
	return FS{Root: "/"}
}

// Path joins rel onto the root.
func (fs FS) Path(rel string) string {
	root := fs.Root
	if root == "" {
		root = "/"
	}
	return filepath.Join(root, rel)
}

// ReadString returns the trimmed content of rel.
func (fs FS) ReadString(rel string) (string, error) {
	data, err := os.ReadFile(fs.Path(rel))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadInt parses the content of rel as a base-10 integer.
func (fs FS) ReadInt(rel string) (int64, error) {
	s, err := fs.ReadString(rel)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", rel, err)
	}
	return n, nil
}

// Exists reports whether rel exists.
func (fs FS) Exists(rel string) bool {
	_, err := os.Stat(fs.Path(rel))
	return err == nil
}

// List returns the sorted entry names of directory rel.
func (fs FS) List(rel string) ([]string, error) {
	entries, err := os.ReadDir(fs.Path(rel))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
