package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/swarmml/swarmtrain/dataset"
	"github.com/swarmml/swarmtrain/tensor"
)

var ErrBadBatch = errors.New("batch does not fit model dimensions")

const (
	weightParam = "linear.weight"
	biasParam   = "linear.bias"
)

// Linear is a softmax classifier with analytic gradients. It exists so the
// loop, evaluator and artifacts can be exercised end to end without an
// external autodiff runtime; production models implement Module elsewhere.
type Linear struct {
	params   *Parameters
	features int
	classes  int
	training bool
}

var _ Module = (*Linear)(nil)

func NewLinear(features, classes int) (*Linear, error) {
	w, err := tensor.New([]int{classes, features}, tensor.Float64)
	if err != nil {
		return nil, err
	}
	b, err := tensor.New([]int{classes}, tensor.Float64)
	if err != nil {
		return nil, err
	}

	p := NewParameters()
	if err := p.Register(weightParam, w); err != nil {
		return nil, err
	}
	if err := p.Register(biasParam, b); err != nil {
		return nil, err
	}

	return &Linear{params: p, features: features, classes: classes, training: true}, nil
}

// Init fills the weights from a seeded uniform distribution scaled by the
// fan-in, so runs are reproducible across peers given the same seed.
func (l *Linear) Init(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	limit := 1.0 / math.Sqrt(float64(l.features))
	w, _ := l.params.Get(weightParam)
	for i := range w.Data {
		w.Data[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (l *Linear) Parameters() *Parameters {
	return l.params
}

func (l *Linear) TrainMode() { l.training = true }

func (l *Linear) EvalMode() { l.training = false }

func (l *Linear) ForwardBackward(b dataset.Batch) (StepResult, error) {
	n := b.Size()
	if n == 0 {
		return StepResult{}, fmt.Errorf("%w: empty batch", ErrBadBatch)
	}

	w, _ := l.params.Get(weightParam)
	bias, _ := l.params.Get(biasParam)
	gw := tensor.ZerosLike(w)
	gb := tensor.ZerosLike(bias)

	var totalLoss float64
	for i, x := range b.Inputs {
		if len(x) != l.features {
			return StepResult{}, fmt.Errorf("%w: %d features, want %d", ErrBadBatch, len(x), l.features)
		}
		label := b.Labels[i]
		if label < 0 || label >= l.classes {
			return StepResult{}, fmt.Errorf("%w: label %d out of range", ErrBadBatch, label)
		}

		probs := l.softmax(w, bias, x)
		totalLoss += -math.Log(math.Max(probs[label], 1e-12))

		for c := 0; c < l.classes; c++ {
			g := probs[c]
			if c == label {
				g -= 1
			}
			for f := 0; f < l.features; f++ {
				gw.Data[c*l.features+f] += g * x[f]
			}
			gb.Data[c] += g
		}
	}

	inv := 1.0 / float64(n)
	gw.Scale(inv)
	gb.Scale(inv)

	return StepResult{
		Loss:     totalLoss * inv,
		Examples: n,
		Gradients: map[string]*tensor.Tensor{
			weightParam: gw,
			biasParam:   gb,
		},
	}, nil
}

func (l *Linear) Infer(b dataset.Batch) (EvalResult, error) {
	n := b.Size()
	if n == 0 {
		return EvalResult{}, fmt.Errorf("%w: empty batch", ErrBadBatch)
	}

	w, _ := l.params.Get(weightParam)
	bias, _ := l.params.Get(biasParam)

	var totalLoss float64
	correct := 0
	for i, x := range b.Inputs {
		if len(x) != l.features {
			return EvalResult{}, fmt.Errorf("%w: %d features, want %d", ErrBadBatch, len(x), l.features)
		}

		probs := l.softmax(w, bias, x)
		totalLoss += -math.Log(math.Max(probs[b.Labels[i]], 1e-12))

		best := 0
		for c := 1; c < l.classes; c++ {
			if probs[c] > probs[best] {
				best = c
			}
		}
		if best == b.Labels[i] {
			correct++
		}
	}

	return EvalResult{
		Loss:     totalLoss / float64(n),
		Examples: n,
		Correct:  correct,
	}, nil
}

func (l *Linear) LoadState(s State) error {
	if err := ReconcileState(l.params, s); err != nil {
		return err
	}

	// The class dimension may have grown with the incoming state.
	if w, ok := l.params.Get(weightParam); ok && len(w.Shape) == 2 {
		l.classes = w.Shape[0]
		l.features = w.Shape[1]
	}

	return nil
}

func (l *Linear) softmax(w, bias *tensor.Tensor, x []float64) []float64 {
	logits := make([]float64, l.classes)
	maxLogit := math.Inf(-1)
	for c := 0; c < l.classes; c++ {
		var z float64
		for f := 0; f < l.features; f++ {
			z += w.Data[c*l.features+f] * x[f]
		}
		z += bias.Data[c]
		logits[c] = z
		if z > maxLogit {
			maxLogit = z
		}
	}

	var denom float64
	for c := range logits {
		logits[c] = math.Exp(logits[c] - maxLogit)
		denom += logits[c]
	}
	for c := range logits {
		logits[c] /= denom
	}

	return logits
}

// ReconcileState applies a pulled state dict to live parameters. Matching
// shapes are copied in place. A state tensor with more rows than the live
// one replaces it wholesale (embedding growth after a vocabulary resize);
// any other mismatch aborts with ErrStateMismatch. The whole state is
// validated before any live tensor is touched: a mismatch anywhere leaves
// every parameter exactly as it was, never a half-swapped model.
func ReconcileState(p *Parameters, s State) error {
	for _, name := range p.Names() {
		incoming, ok := s[name]
		if !ok {
			return fmt.Errorf("%w: %s missing from state", ErrStateMismatch, name)
		}

		live, _ := p.Get(name)
		if !live.SameShape(incoming) && !grownRows(live, incoming) {
			return fmt.Errorf("%w: %s has shape %v, state has %v", ErrStateMismatch, name, live.Shape, incoming.Shape)
		}
	}

	for _, name := range p.Names() {
		incoming := s[name]
		live, _ := p.Get(name)
		if live.SameShape(incoming) {
			copy(live.Data, incoming.Data)

			continue
		}
		if err := p.Replace(name, incoming.Clone()); err != nil {
			return err
		}
	}

	return nil
}

func grownRows(live, incoming *tensor.Tensor) bool {
	if len(live.Shape) == 0 || len(live.Shape) != len(incoming.Shape) {
		return false
	}
	if incoming.Shape[0] < live.Shape[0] {
		return false
	}
	for i := 1; i < len(live.Shape); i++ {
		if live.Shape[i] != incoming.Shape[i] {
			return false
		}
	}

	return true
}
