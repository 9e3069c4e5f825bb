package trainer

import (
	"fmt"

	"github.com/swarmml/swarmtrain/model"
	"github.com/swarmml/swarmtrain/tensor"
)

// Accumulator sums per-parameter gradients across steps for the
// full-gradient policy. With a positive clip threshold each incoming
// gradient tensor is L2-clipped in place before being added, so the sum is
// over clipped gradients. The loop clears the accumulator after injecting
// it into an optimizer step: a published gradient artifact always covers
// exactly one accumulation window, never the whole run.
type Accumulator struct {
	clipThreshold float64
	sums          map[string]*tensor.Tensor
	steps         int
}

func NewAccumulator(clipThreshold float64) *Accumulator {
	return &Accumulator{
		clipThreshold: clipThreshold,
		sums:          make(map[string]*tensor.Tensor),
	}
}

// Add folds one step's gradients into the running sums. Accumulator slots
// are created lazily on first sight of a parameter name.
func (a *Accumulator) Add(grads map[string]*tensor.Tensor) error {
	for name, grad := range grads {
		if a.clipThreshold > 0 {
			grad.ClipNorm(a.clipThreshold)
		}

		sum, ok := a.sums[name]
		if !ok {
			sum = tensor.ZerosLike(grad)
			a.sums[name] = sum
		}
		if err := sum.Add(grad); err != nil {
			return fmt.Errorf("accumulating %s: %w", name, err)
		}
	}
	a.steps++

	return nil
}

// Gradients exposes the live sums for optimizer injection.
func (a *Accumulator) Gradients() map[string]*tensor.Tensor {
	return a.sums
}

// Snapshot clones the sums into a publishable state.
func (a *Accumulator) Snapshot() model.State {
	s := make(model.State, len(a.sums))
	for name, t := range a.sums {
		s[name] = t.Clone()
	}

	return s
}

func (a *Accumulator) Steps() int {
	return a.steps
}

func (a *Accumulator) Empty() bool {
	return len(a.sums) == 0
}

// Reset clears the sums, starting a new accumulation window.
func (a *Accumulator) Reset() {
	a.sums = make(map[string]*tensor.Tensor)
	a.steps = 0
}
