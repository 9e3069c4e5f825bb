// Package hub connects the miner to the shared model repository: pulling
// the externally averaged model and publishing locally computed gradient or
// weight-delta artifacts. Aggregation itself happens downstream on other
// peers; this package only moves artifacts.
package hub

import (
	"context"
	"errors"

	"github.com/swarmml/swarmtrain/model"
)

var (
	ErrNoSubmission   = errors.New("no submission available")
	ErrMissingStaged  = errors.New("staged artifact not found")
	ErrPushFailed     = errors.New("artifact push failed")
	ErrPullFailed     = errors.New("model pull failed")
	ErrBadArtifactRef = errors.New("invalid artifact reference")
)

// Gateway is the remote model hub as seen by the training loop. Poll and
// transfer operations may perform network I/O and fail transiently; the
// loop treats every error here as recoverable.
type Gateway interface {
	// HasNewSubmission polls the repository reference for an averaged
	// model newer than the one last pulled.
	HasNewSubmission(ctx context.Context, ref string) (bool, error)

	// PullLatest materializes the newest averaged model artifact into the
	// staging directory.
	PullLatest(ctx context.Context) error

	// LoadInto reconciles the staged averaged model into a live module.
	LoadInto(ctx context.Context, m model.Module) error

	// StagingDir is the local directory artifacts are serialized into
	// before a push and materialized into after a pull.
	StagingDir() string

	// Push uploads the named staged artifact to the repository.
	Push(ctx context.Context, name string) error
}
