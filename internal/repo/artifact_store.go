// Package repo persists trained model artifacts as single gob bundles on
// local disk, one per logical model slot.
package repo

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ailogmon/anomaly-engine/internal/engine"
	"github.com/ailogmon/anomaly-engine/internal/utils"
)

var (
	// ErrArtifactNotFound is returned by Load when no bundle exists yet.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrArtifactCorrupt is returned by Load when the bundle cannot be
	// deserialized (truncated or incompatible format).
	ErrArtifactCorrupt = errors.New("artifact corrupt")
)

// DefaultFilename names the bundle within the artifact directory.
const DefaultFilename = "isolation_forest.model"

// ArtifactStore saves and loads a single artifact bundle under a
// configurable directory.
type ArtifactStore struct {
	dir      string
	filename string
}

// NewArtifactStore constructs a store rooted at dir. An empty filename
// falls back to DefaultFilename.
func NewArtifactStore(dir, filename string) *ArtifactStore {
	if filename == "" {
		filename = DefaultFilename
	}
	return &ArtifactStore{dir: dir, filename: filename}
}

// Path returns the bundle location.
func (s *ArtifactStore) Path() string {
	return filepath.Join(s.dir, s.filename)
}

// Save writes the artifact atomically: encode into a temp file in the same
// directory, then rename over the destination. Intermediate directories are
// created if absent.
func (s *ArtifactStore) Save(artifact *engine.Artifact) error {
	if !artifact.Valid() {
		return utils.NewAppError("repo.Save", "refusing to persist incomplete artifact", nil)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return utils.NewAppError("repo.Save", "create artifact directory", err)
	}

	tmp, err := os.CreateTemp(s.dir, s.filename+".tmp-*")
	if err != nil {
		return utils.NewAppError("repo.Save", "create temp bundle", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(artifact); err != nil {
		tmp.Close()
		return utils.NewAppError("repo.Save", "encode artifact", err)
	}
	if err := tmp.Close(); err != nil {
		return utils.NewAppError("repo.Save", "flush temp bundle", err)
	}

	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		return utils.NewAppError("repo.Save", "install bundle", err)
	}
	return nil
}

// Load reads the bundle back. The round trip preserves scaler state, forest
// state, version, timestamp, and contamination.
func (s *ArtifactStore) Load() (*engine.Artifact, error) {
	f, err := os.Open(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, s.Path())
		}
		return nil, utils.NewAppError("repo.Load", "open bundle", err)
	}
	defer f.Close()

	var artifact engine.Artifact
	if err := gob.NewDecoder(f).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)
	}
	if !artifact.Valid() {
		return nil, fmt.Errorf("%w: bundle is missing scaler or forest state", ErrArtifactCorrupt)
	}
	return &artifact, nil
}
