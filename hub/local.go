package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/swarmml/swarmtrain/artifact"
	"github.com/swarmml/swarmtrain/model"
)

const dirPermissions = 0o755

// Local is a filesystem hub for single-host runs: the averaging directory
// is shared with a local aggregator process, and pushes land in a per-miner
// outbox the aggregator sweeps. Local storage writes are cheap relative to
// network pushes, which is why local policies default to a much shorter
// send interval.
type Local struct {
	stagingDir   string
	averagingDir string
	outboxDir    string
	minerID      string
	lastSeen     time.Time
	logger       *slog.Logger
}

var _ Gateway = (*Local)(nil)

func NewLocal(stagingDir, averagingDir, outboxDir, minerID string, logger *slog.Logger) (*Local, error) {
	for _, dir := range []string{stagingDir, averagingDir, outboxDir} {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create hub directory %s: %w", dir, err)
		}
	}

	return &Local{
		stagingDir:   stagingDir,
		averagingDir: averagingDir,
		outboxDir:    outboxDir,
		minerID:      minerID,
		logger:       logger,
	}, nil
}

func (l *Local) StagingDir() string {
	return l.stagingDir
}

// HasNewSubmission reports whether the shared averaged model has been
// rewritten since the last pull.
func (l *Local) HasNewSubmission(_ context.Context, _ string) (bool, error) {
	info, err := os.Stat(filepath.Join(l.averagingDir, artifact.AveragedModel))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrPullFailed, err)
	}

	return info.ModTime().After(l.lastSeen), nil
}

func (l *Local) PullLatest(_ context.Context) error {
	src := filepath.Join(l.averagingDir, artifact.AveragedModel)
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return ErrNoSubmission
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPullFailed, err)
	}

	if err := copyFile(src, filepath.Join(l.stagingDir, artifact.AveragedModel)); err != nil {
		return fmt.Errorf("%w: %w", ErrPullFailed, err)
	}
	l.lastSeen = info.ModTime()

	return nil
}

func (l *Local) LoadInto(_ context.Context, m model.Module) error {
	state, err := artifact.Load(filepath.Join(l.stagingDir, artifact.AveragedModel))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPullFailed, err)
	}

	return m.LoadState(state)
}

// Push copies a staged artifact into the outbox under a miner-scoped name
// so concurrent miners on the same host never clobber each other.
func (l *Local) Push(_ context.Context, name string) error {
	src := filepath.Join(l.stagingDir, name)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrMissingStaged, name)
	}

	dst := filepath.Join(l.outboxDir, l.minerID+"_"+name)
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}

	l.logger.Info("artifact published to local outbox", slog.String("artifact", name), slog.String("path", dst))

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), dst)
}
