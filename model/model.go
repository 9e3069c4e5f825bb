// Package model defines the parameter container and the interface the
// training loop requires from a model implementation. Architectures are
// external collaborators; the only concrete module here is a small linear
// classifier used by tests and the reference command.
package model

import (
	"errors"
	"fmt"

	"github.com/swarmml/swarmtrain/dataset"
	"github.com/swarmml/swarmtrain/tensor"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrDuplicateParam   = errors.New("duplicate parameter")
	ErrStateMismatch    = errors.New("state does not match module parameters")
)

// State is a serializable mapping from parameter name to tensor, the shape
// artifacts take on disk and on the wire.
type State map[string]*tensor.Tensor

// Parameters holds named tensors in insertion order. The order is defined
// by model construction and is assumed identical across peers running the
// same architecture; it is the canonical order for content hashing.
type Parameters struct {
	names   []string
	tensors map[string]*tensor.Tensor
}

func NewParameters() *Parameters {
	return &Parameters{tensors: make(map[string]*tensor.Tensor)}
}

func (p *Parameters) Register(name string, t *tensor.Tensor) error {
	if _, ok := p.tensors[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateParam, name)
	}
	p.names = append(p.names, name)
	p.tensors[name] = t

	return nil
}

func (p *Parameters) Get(name string) (*tensor.Tensor, bool) {
	t, ok := p.tensors[name]

	return t, ok
}

// Replace swaps the tensor stored under an existing name, keeping its
// position in the canonical order.
func (p *Parameters) Replace(name string, t *tensor.Tensor) error {
	if _, ok := p.tensors[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	p.tensors[name] = t

	return nil
}

func (p *Parameters) Names() []string {
	return append([]string(nil), p.names...)
}

func (p *Parameters) Len() int {
	return len(p.names)
}

// State clones every parameter into a detached state mapping.
func (p *Parameters) State() State {
	s := make(State, len(p.names))
	for _, name := range p.names {
		s[name] = p.tensors[name].Clone()
	}

	return s
}

// StepResult carries the outcome of one forward/backward pass.
type StepResult struct {
	Loss      float64
	Examples  int
	Gradients map[string]*tensor.Tensor
}

// EvalResult carries the outcome of one gradient-free forward pass.
type EvalResult struct {
	Loss     float64
	Examples int
	Correct  int
}

// Module is the contract between the training loop and a model. A module
// owns its parameters; the loop mutates them only through an optimizer and
// replaces the module wholesale on pull events.
type Module interface {
	Parameters() *Parameters

	// ForwardBackward runs one training step on the batch and returns the
	// loss and the per-parameter gradients. It must not apply the update.
	ForwardBackward(b dataset.Batch) (StepResult, error)

	// Infer runs a forward pass with gradient computation disabled.
	Infer(b dataset.Batch) (EvalResult, error)

	// LoadState reconciles a pulled state dict into the live module. A
	// state tensor with more rows than the live one grows the parameter
	// (vocabulary growth on an embedding); any other mismatch is an error.
	LoadState(s State) error

	TrainMode()
	EvalMode()
}
