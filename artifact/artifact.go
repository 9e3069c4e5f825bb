// Package artifact serializes tensor states into the staging layout shared
// with the model hub. Artifacts are name→tensor mappings carrying shape and
// dtype metadata, written under fixed conventional filenames so aggregators
// on other peers know what they are looking at.
package artifact

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/swarmml/swarmtrain/model"
)

const (
	// Gradients holds a full accumulated gradient artifact.
	Gradients = "gradients.pt"
	// WeightDiff holds a parameter delta against the last baseline.
	WeightDiff = "weight_diff.pt"
	// AveragedModel holds a complete model state snapshot.
	AveragedModel = "averaged_model.pt"

	dirPermissions  = 0o755
	filePermissions = 0o644
)

var ErrEmptyState = errors.New("refusing to write an empty artifact")

// Save writes the state into dir under the given artifact name, creating
// the directory when needed. The write goes through a temp file and rename
// so a concurrent reader never observes a half-written artifact.
func Save(state model.State, dir, name string) (string, error) {
	if len(state) == 0 {
		return "", ErrEmptyState
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}

	if err := gob.NewEncoder(tmp).Encode(state); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to encode artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to close temp artifact: %w", err)
	}

	if err := os.Chmod(tmp.Name(), filePermissions); err != nil {
		os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to set artifact permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to publish artifact %s: %w", name, err)
	}

	return path, nil
}

// Load reads an artifact back into a state mapping.
func Load(path string) (model.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer f.Close()

	var state model.State
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}

	return state, nil
}

// Size reports an artifact's on-disk size in bytes, for bandwidth metrics.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}
