package optim

import (
	"github.com/swarmml/swarmtrain/model"
	"github.com/swarmml/swarmtrain/tensor"
)

type SGD struct {
	lr float64
}

func NewSGD(lr float64) (*SGD, error) {
	if lr <= 0 {
		return nil, ErrBadLearningRate
	}

	return &SGD{lr: lr}, nil
}

func (s *SGD) Step(p *model.Parameters, grads map[string]*tensor.Tensor) error {
	for name, grad := range grads {
		param, err := applyGrad(p, name, grad)
		if err != nil {
			return err
		}
		for i := range param.Data {
			param.Data[i] -= s.lr * grad.Data[i]
		}
	}

	return nil
}
