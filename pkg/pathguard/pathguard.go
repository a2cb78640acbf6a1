// Package pathguard keeps user-supplied paths inside an allowed root.
package pathguard

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrForbidden is returned when a requested path resolves outside its root.
var ErrForbidden = errors.New("path escapes base directory")

// IsSafe reports whether requestedPath, once made absolute, cleaned and
// symlink-resolved, is baseDir itself or lies underneath it.
func IsSafe(baseDir, requestedPath string) bool {
	base, err := resolve(baseDir)
	if err != nil {
		return false
	}
	target, err := resolve(requestedPath)
	if err != nil {
		return false
	}
	return within(base, target)
}

// Join maps a user path (URL suffix or query parameter) under baseDir.
// Leading slashes are dropped so "/a/b" means "a/b" relative to the base.
func Join(baseDir, userPath string) (string, error) {
	if strings.ContainsRune(userPath, 0) {
		return "", ErrForbidden
	}
	rel := strings.TrimLeft(filepath.FromSlash(userPath), string(filepath.Separator))
	abs := filepath.Join(baseDir, rel)
	if !IsSafe(baseDir, abs) {
		return "", ErrForbidden
	}
	return abs, nil
}

func within(base, target string) bool {
	if target == base {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(target, prefix)
}

// resolve returns the absolute, symlink-free form of p. For paths that do not
// exist yet (or cannot be walked) the deepest resolvable ancestor is resolved
// and the rest re-appended.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var rest []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

// MaxNameLen is the longest file name most filesystems accept (NAME_MAX).
const MaxNameLen = 255

// SanitizeFilename reduces an untrusted file name to a single path element
// of at most maxLen bytes that can be joined under a directory without
// escaping it. The extension is kept when the name is truncated.
func SanitizeFilename(name string, maxLen int) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}

	if maxLen <= 0 || maxLen > MaxNameLen {
		maxLen = MaxNameLen
	}
	if len(name) > maxLen {
		ext := filepath.Ext(name)
		if len(ext) > 0 && len(ext) < 20 && len(ext) < maxLen {
			name = name[:maxLen-len(ext)] + ext
		} else {
			name = name[:maxLen]
		}
		name = strings.ToValidUTF8(name, "")
	}
	return name
}
