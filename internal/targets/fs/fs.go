package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/worker"
)

const (
	// Name is the implementation name for filesystem-backed persistence.
	Name = "fs"
)

var (
	ErrMissingPath  = errors.New("fs: missing path")
	ErrAbsolutePath = errors.New("fs: absolute path not allowed")
	ErrEscapesRoot  = errors.New("fs: path escapes root")
)

// Root is the directory every path is scoped to. Inject it through
// worker.WithService(fs.Root(dir)).
type Root string

// DefaultRoot is used when no Root is injected.
var DefaultRoot = Root(filepath.Join("local", "dir"))

// Files is a filesystem persistence implementation scoped to one root.
type Files struct {
	root string
}

func New(services *worker.Services) (any, error) {
	root, err := worker.Lookup[Root](services)
	if err != nil {
		root = DefaultRoot
	}
	return NewFiles(string(root)), nil
}

func NewFiles(root string) *Files {
	resolved := strings.TrimSpace(root)
	if resolved == "" {
		resolved = string(DefaultRoot)
	}
	return &Files{root: resolved}
}

func (f *Files) Write(path, content string) error {
	p, err := f.resolvePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return err
	}
	logs.Debugf("fs.Files.Write path=%s bytes=%d", p, len(content))
	return nil
}

func (f *Files) Read(path string) (string, error) {
	p, err := f.resolvePath(path)
	if err != nil {
		return "", err
	}
	out, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Delete removes path; a missing file is not an error.
func (f *Files) Delete(path string) error {
	p, err := f.resolvePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns slash-separated paths relative to the root, sorted.
func (f *Files) List(prefix string) ([]string, error) {
	root, err := filepath.Abs(f.root)
	if err != nil {
		return nil, err
	}
	p := strings.TrimSpace(prefix)
	keys := make([]string, 0)
	err = filepath.WalkDir(root, func(path string, d iofs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, iofs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if p == "" || strings.HasPrefix(rel, p) {
			keys = append(keys, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *Files) resolvePath(pathArg string) (string, error) {
	rel := strings.TrimSpace(pathArg)
	if rel == "" {
		return "", ErrMissingPath
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrAbsolutePath, rel)
	}
	root, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	p := filepath.Clean(filepath.Join(root, rel))
	if !isWithin(p, root) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, rel)
	}
	return p, nil
}

func isWithin(path string, root string) bool {
	p := filepath.Clean(path)
	r := filepath.Clean(root)
	if p == r {
		return true
	}
	return strings.HasPrefix(p, r+string(os.PathSeparator))
}
