package export

import (
	"fmt"
	"path"
	"strings"

	"github.com/jun/vaultgw/internal/folder"
)

// entryName turns a requested destination into a relative, clean archive
// path. An empty destination falls back to the remote name, then to a
// numbered name.
func entryName(dest, remoteName string, i int) string {
	p := cleanPath(dest)
	if p == "" {
		p = cleanPath(remoteName)
	}
	if p == "" {
		return fmt.Sprintf("file-%d", i+1)
	}
	// Exported documents gain an extension the caller could not know about.
	if path.Ext(p) == "" && remoteName != "" {
		p += path.Ext(remoteName)
	}
	return p
}

func cleanPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = folder.Sanitize(part)
	}
	return strings.Join(parts, "/")
}

// placeholderName maps "dir/b.pdf" to "dir/ERROR_b.pdf.txt".
func placeholderName(name string) string {
	dir, base := path.Split(name)
	return dir + "ERROR_" + base + ".txt"
}

// nameSet hands out unique entry names.
type nameSet struct {
	used map[string]bool
}

func newNameSet() *nameSet {
	return &nameSet{used: make(map[string]bool)}
}

// claim returns name, or "stem (n).ext" for the first free n >= 2.
func (s *nameSet) claim(name string) string {
	if !s.used[name] {
		s.used[name] = true
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !s.used[candidate] {
			s.used[candidate] = true
			return candidate
		}
	}
}
