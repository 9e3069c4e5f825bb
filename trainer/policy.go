package trainer

import (
	"errors"
	"fmt"
	"time"

	"github.com/swarmml/swarmtrain/artifact"
)

var ErrInvalidPolicy = errors.New("invalid training policy")

// Strategy selects what the miner publishes: the accumulated raw gradient
// or the weight delta against the last baseline snapshot.
type Strategy string

const (
	FullGradient Strategy = "full_gradient"
	WeightDelta  Strategy = "weight_delta"
)

// Sync selects where artifacts go: a remote model hub or a directory shared
// with a local aggregator.
type Sync string

const (
	RemoteSync Sync = "remote"
	LocalOnly  Sync = "local"
)

const (
	remoteSendInterval = 300 * time.Second
	localSendInterval  = 30 * time.Second
)

// Policy is the tagged variant that parameterizes the single training loop.
// It replaces a subclass per combination: the loop branches on the policy
// at the few points the variants genuinely differ.
type Policy struct {
	Strategy Strategy
	Sync     Sync
}

func (p Policy) Validate() error {
	switch p.Strategy {
	case FullGradient, WeightDelta:
	default:
		return fmt.Errorf("%w: strategy %q", ErrInvalidPolicy, p.Strategy)
	}
	switch p.Sync {
	case RemoteSync, LocalOnly:
	default:
		return fmt.Errorf("%w: sync %q", ErrInvalidPolicy, p.Sync)
	}

	return nil
}

// ArtifactName is the conventional filename aggregators expect for this
// strategy's submissions.
func (p Policy) ArtifactName() string {
	if p.Strategy == WeightDelta {
		return artifact.WeightDiff
	}

	return artifact.Gradients
}

// StepEachBatch reports whether the optimizer applies every mini-batch. The
// full-gradient local policy instead injects the accumulated gradient as a
// single step at the configured cadence.
func (p Policy) StepEachBatch() bool {
	return !(p.Strategy == FullGradient && p.Sync == LocalOnly)
}

// PullEachStep reports whether the pull check runs per step rather than
// once per epoch. Delta tracking rebases eagerly so its baseline never
// drifts far from the consensus model.
func (p Policy) PullEachStep() bool {
	return p.Strategy == WeightDelta
}

// DefaultSendInterval reflects that local staging writes are cheap relative
// to network pushes.
func (p Policy) DefaultSendInterval() time.Duration {
	if p.Sync == LocalOnly {
		return localSendInterval
	}

	return remoteSendInterval
}
