package effects

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// resolve maps a program path onto the local filesystem. With Dir set, paths
// are rooted there and anything that escapes it is refused.
func (h *OSHost) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if h.Dir == "" {
		resolved, err := filepath.Abs(path)
		if err != nil {
			return "", errors.Wrapf(err, "invalid path %q", path)
		}
		return resolved, nil
	}

	root, err := filepath.Abs(h.Dir)
	if err != nil {
		return "", errors.Wrapf(err, "invalid root %q", h.Dir)
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("path %q is outside %s", path, root)
	}
	return resolved, nil
}

// ReadFile returns the file's contents as text.
func (h *OSHost) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resolved, err := h.resolve(path)
	if err != nil {
		return "", err
	}
	h.Log.Debugf("readFile %s", resolved)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", errors.Wrap(err, "readFile")
	}
	return string(data), nil
}

// WriteFile replaces the file's contents, creating parent directories.
func (h *OSHost) WriteFile(ctx context.Context, path, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := h.resolve(path)
	if err != nil {
		return err
	}
	h.Log.Debugf("writeFile %s (%d bytes)", resolved, len(text))
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errors.Wrap(err, "writeFile: cannot create directory")
	}
	if err := os.WriteFile(resolved, []byte(text), 0o644); err != nil {
		return errors.Wrap(err, "writeFile")
	}
	return nil
}

// ListDir returns the sorted entry names of a directory. Directories carry a
// trailing slash.
func (h *OSHost) ListDir(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved, err := h.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, errors.Wrap(err, "listDir")
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
		if entry.IsDir() {
			names[i] += "/"
		}
	}
	sort.Strings(names)
	return names, nil
}

// FileExists reports whether path names an existing file or directory.
func (h *OSHost) FileExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	resolved, err := h.resolve(path)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(resolved)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	}
	return false, errors.Wrap(err, "fileExists")
}
