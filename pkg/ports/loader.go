package ports

import "context"

// DefinitionLoader defines how the runtime retrieves machine definitions.
// This allows the storage layer (files, Redis, Loam, memory) to be decoupled.
type DefinitionLoader interface {
	// Load retrieves the raw machine file by name.
	// It returns domain.ErrDefinitionNotFound (possibly wrapped) if the name is unknown.
	Load(ctx context.Context, name string) ([]byte, error)

	// List returns the names of all available definitions.
	List(ctx context.Context) ([]string, error)
}

// DefinitionStore is a DefinitionLoader that can also persist definitions.
type DefinitionStore interface {
	DefinitionLoader

	// Save stores data under name, replacing any previous definition.
	Save(ctx context.Context, name string, data []byte) error
}
