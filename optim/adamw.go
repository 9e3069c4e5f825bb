package optim

import (
	"math"

	"github.com/swarmml/swarmtrain/model"
	"github.com/swarmml/swarmtrain/tensor"
)

const (
	defaultBeta1       = 0.9
	defaultBeta2       = 0.999
	defaultEps         = 1e-8
	defaultWeightDecay = 0.01
)

// AdamW keeps per-parameter moment estimates keyed by name. The estimates
// start at zero for a fresh instance, which is exactly what a post-pull
// reinitialization needs.
type AdamW struct {
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	step        int
	m           map[string]*tensor.Tensor
	v           map[string]*tensor.Tensor
}

func NewAdamW(lr float64) (*AdamW, error) {
	if lr <= 0 {
		return nil, ErrBadLearningRate
	}

	return &AdamW{
		lr:          lr,
		beta1:       defaultBeta1,
		beta2:       defaultBeta2,
		eps:         defaultEps,
		weightDecay: defaultWeightDecay,
		m:           make(map[string]*tensor.Tensor),
		v:           make(map[string]*tensor.Tensor),
	}, nil
}

func (a *AdamW) Step(p *model.Parameters, grads map[string]*tensor.Tensor) error {
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))

	for name, grad := range grads {
		param, err := applyGrad(p, name, grad)
		if err != nil {
			return err
		}

		m, ok := a.m[name]
		if !ok || !m.SameShape(grad) {
			m = tensor.ZerosLike(grad)
			a.m[name] = m
		}
		v, ok := a.v[name]
		if !ok || !v.SameShape(grad) {
			v = tensor.ZerosLike(grad)
			a.v[name] = v
		}

		for i := range param.Data {
			g := grad.Data[i]
			m.Data[i] = a.beta1*m.Data[i] + (1-a.beta1)*g
			v.Data[i] = a.beta2*v.Data[i] + (1-a.beta2)*g*g

			mHat := m.Data[i] / bc1
			vHat := v.Data[i] / bc2

			param.Data[i] -= a.lr * (mHat/(math.Sqrt(vHat)+a.eps) + a.weightDecay*param.Data[i])
		}
	}

	return nil
}
