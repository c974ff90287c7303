// Package objectstore keeps uploaded files on the local filesystem and maps
// them to the public URLs they are served from.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for object paths that escape the root.
var ErrInvalidPath = errors.New("objectstore: invalid path")

// Local stores objects under Root and serves them from URLPrefix.
type Local struct {
	Root      string
	URLPrefix string
}

// NewLocal returns a Local rooted at dir. prefix is the URL path dir is
// served under, e.g. "/static".
func NewLocal(dir, prefix string) *Local {
	return &Local{Root: dir, URLPrefix: "/" + strings.Trim(prefix, "/")}
}

func (l *Local) resolve(p string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(p))
	if clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return filepath.Join(l.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Put writes data to p, creating parent directories, and returns its URL.
func (l *Local) Put(ctx context.Context, p string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := l.resolve(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write object: %w", err)
	}
	return l.URL(p), nil
}

// URL returns the public URL of p.
func (l *Local) URL(p string) string {
	clean := path.Clean("/" + strings.TrimSpace(p))
	if l.URLPrefix == "/" {
		return clean
	}
	return l.URLPrefix + clean
}

// PathOf maps a URL produced by URL back to its object path. ok is false for
// URLs that do not belong to this store.
func (l *Local) PathOf(url string) (p string, ok bool) {
	prefix := strings.TrimSuffix(l.URLPrefix, "/") + "/"
	clean := path.Clean(url)
	if !strings.HasPrefix(clean, prefix) {
		return "", false
	}
	p = strings.TrimPrefix(clean, prefix)
	if p == "" {
		return "", false
	}
	return p, true
}

// Remove deletes p. A missing object is not an error.
func (l *Local) Remove(p string) error {
	full, err := l.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveURL deletes the object behind url, if it belongs to this store.
func (l *Local) RemoveURL(url string) error {
	p, ok := l.PathOf(url)
	if !ok {
		return nil
	}
	return l.Remove(p)
}
