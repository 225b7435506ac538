package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/fsmlink/pkg/domain"
)

// Extensions are the machine file suffixes the loader recognises.
var Extensions = []string{".json", ".yaml", ".yml"}

// Loader implements ports.DefinitionStore on a directory of machine files.
// Names are paths relative to the base directory ("tof5s.json", "lab/blink.yaml");
// a name without extension also matches name+".json", ".yaml" or ".yml".
type Loader struct {
	BasePath string
}

// New creates a loader rooted at basePath ("." when empty).
func New(basePath string) *Loader {
	if basePath == "" {
		basePath = "."
	}
	return &Loader{BasePath: basePath}
}

func (l *Loader) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid definition name %q", name)
	}
	return filepath.Join(l.BasePath, clean), nil
}

// Load reads the machine file called name.
func (l *Loader) Load(_ context.Context, name string) ([]byte, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}

	candidates := []string{path}
	if filepath.Ext(path) == "" {
		for _, ext := range Extensions {
			candidates = append(candidates, path+ext)
		}
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrDefinitionNotFound, name)
}

// List walks the base directory for machine files.
func (l *Loader) List(_ context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(l.BasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != l.BasePath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMachineFile(path) {
			return nil
		}
		rel, err := filepath.Rel(l.BasePath, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func isMachineFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Save writes the machine file atomically: temp file, fsync, rename.
func (l *Loader) Save(_ context.Context, name string, data []byte) error {
	dest, err := l.resolve(name)
	if err != nil {
		return err
	}
	return WriteAtomic(dest, data)
}

// WriteAtomic replaces path with data so readers never see a partial file.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, "tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
