// Package storage defines the vault file-system abstraction.
package storage

import (
	"context"

	"github.com/starford/ansuz/internal/models"
)

// Provider is the read side of the vault. The engine never writes notes.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.Document, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Exists reports whether a document is still present.
	Exists(ctx context.Context, path string) (bool, error)
	// FindMoved looks for the new location of a vanished document.
	FindMoved(ctx context.Context, path string) (string, bool, error)
}
