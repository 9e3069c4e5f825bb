package model

import (
	"errors"
	"fmt"
)

var ErrBaselineMismatch = errors.New("parameter missing from baseline snapshot")

// Tracker owns the baseline snapshot deltas are computed against. The
// snapshot is cloned, never aliased with live tensors, and is replaced
// atomically at every rebase instant: initial model construction, post-pull
// swap and post-update swap. Computing a delta across a model swap without
// a rebase is an error, not a silent partial result.
type Tracker struct {
	version int
	weights State
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Rebase replaces the snapshot with a clone of the current parameters.
func (t *Tracker) Rebase(p *Parameters) {
	t.weights = p.State()
	t.version++
}

// Version counts rebase instants; 0 means no snapshot has been taken.
func (t *Tracker) Version() int {
	return t.version
}

// Delta returns current − baseline for every live parameter. A live
// parameter absent from the snapshot (a model swap without a rebase) fails
// the whole computation.
func (t *Tracker) Delta(p *Parameters) (State, error) {
	if t.version == 0 {
		return nil, fmt.Errorf("%w: no snapshot taken", ErrBaselineMismatch)
	}

	diff := make(State, p.Len())
	for _, name := range p.Names() {
		cur, _ := p.Get(name)
		base, ok := t.weights[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBaselineMismatch, name)
		}
		d, err := cur.Sub(base)
		if err != nil {
			return nil, fmt.Errorf("delta for %s: %w", name, err)
		}
		diff[name] = d
	}

	return diff, nil
}
