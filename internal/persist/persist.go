// Package persist stores and loads full engine snapshots.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/queue"
	"github.com/starford/ansuz/internal/store"
)

// Version is the snapshot format version written by this package.
const Version = 1

// Snapshot is the flat record of everything the engine persists.
type Snapshot struct {
	Version    int         `json:"version"`
	Algorithm  item.Kind   `json:"algorithm"`
	Store      store.Data  `json:"store"`
	Queue      queue.State `json:"queue"`
	ModifiedAt time.Time   `json:"modified_at"`
}

// Persistence loads and saves snapshots under opaque keys.
// Load returns apperr.ErrNotFound for an unknown key.
type Persistence interface {
	Load(ctx context.Context, key string) (Snapshot, error)
	Save(ctx context.Context, key string, snap Snapshot) error
}

// Encode serialises snap.
func Encode(snap Snapshot) ([]byte, error) {
	if snap.Version == 0 {
		snap.Version = Version
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("persist: encode: %w", err)
	}
	return b, nil
}

// Decode parses a snapshot and rejects unknown versions.
func Decode(b []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("persist: decode: %w", err)
	}
	if snap.Version > Version {
		return Snapshot{}, fmt.Errorf("persist: snapshot version %d is newer than %d", snap.Version, Version)
	}
	if snap.Algorithm != "" && !snap.Algorithm.Valid() {
		return Snapshot{}, fmt.Errorf("persist: unknown algorithm %q", snap.Algorithm)
	}
	return snap, nil
}
