package loam

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/loam"
)

// Loader reads machine definitions from a Loam repository.
// A machine is a document whose metadata holds the machine file keys; the
// markdown body, if any, is its human description.
type Loader struct {
	Repo *loam.TypedRepository[MachineMetadata]
}

// New creates a Loam adapter.
func New(repo *loam.TypedRepository[MachineMetadata]) *Loader {
	return &Loader{Repo: repo}
}

// Load returns the machine document name as machine file JSON.
func (l *Loader) Load(ctx context.Context, name string) ([]byte, error) {
	doc, err := l.Repo.Get(ctx, name)
	if err != nil {
		return nil, l.notFound(ctx, name, err)
	}

	meta := doc.Data
	if meta.Name == "" {
		meta.Name = trimExtension(doc.ID)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal machine %s: %w", name, err)
	}
	return data, nil
}

// Describe returns the markdown body of the machine document.
func (l *Loader) Describe(ctx context.Context, name string) (string, error) {
	doc, err := l.Repo.Get(ctx, name)
	if err != nil {
		return "", l.notFound(ctx, name, err)
	}
	return doc.Content, nil
}

// notFound maps a failed lookup to ErrDefinitionNotFound when the name is
// absent from the repository.
func (l *Loader) notFound(ctx context.Context, name string, cause error) error {
	names, err := l.List(ctx)
	if err == nil {
		want := trimExtension(name)
		for _, n := range names {
			if n == want {
				return fmt.Errorf("loam get failed for %s: %w", name, cause)
			}
		}
	}
	return fmt.Errorf("%w: %s (%v)", domain.ErrDefinitionNotFound, name, cause)
}

// List returns document IDs without their extension.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string, len(docs))
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		id := trimExtension(doc.ID)
		if existing, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: machine '%s' is defined in both '%s' and '%s'", id, existing, doc.ID)
		}
		seen[id] = doc.ID
		names = append(names, id)
	}
	sort.Strings(names)
	return names, nil
}

func trimExtension(id string) string {
	return filepath.ToSlash(strings.TrimSuffix(id, filepath.Ext(id)))
}
