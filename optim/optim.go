// Package optim provides the optimizers the training loop applies to model
// parameters. Optimizer state is bound to one model instance: after a model
// swap the loop constructs a fresh optimizer and any momentum or moment
// estimates are discarded, never carried across.
package optim

import (
	"errors"
	"fmt"

	"github.com/swarmml/swarmtrain/model"
	"github.com/swarmml/swarmtrain/tensor"
)

var (
	ErrBadLearningRate = errors.New("learning rate must be positive")
	ErrGradMismatch    = errors.New("gradient does not match parameter")
)

type Optimizer interface {
	// Step applies one update from the given per-parameter gradients.
	// Parameters without a gradient entry are left untouched.
	Step(p *model.Parameters, grads map[string]*tensor.Tensor) error
}

func applyGrad(p *model.Parameters, name string, grad *tensor.Tensor) (*tensor.Tensor, error) {
	param, ok := p.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: no parameter %s", ErrGradMismatch, name)
	}
	if !param.SameShape(grad) {
		return nil, fmt.Errorf("%w: %s has shape %v, gradient %v", ErrGradMismatch, name, param.Shape, grad.Shape)
	}

	return param, nil
}
