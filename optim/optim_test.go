package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmml/swarmtrain/model"
	"github.com/swarmml/swarmtrain/optim"
	"github.com/swarmml/swarmtrain/tensor"
)

func singleParam(t *testing.T, data []float64) *model.Parameters {
	t.Helper()

	p := model.NewParameters()
	tr, err := tensor.FromData([]int{len(data)}, tensor.Float64, data)
	require.NoError(t, err)
	require.NoError(t, p.Register("w", tr))

	return p
}

func TestSGDStep(t *testing.T) {
	t.Parallel()

	p := singleParam(t, []float64{1, 2})
	grad, err := tensor.FromData([]int{2}, tensor.Float64, []float64{0.5, -0.5})
	require.NoError(t, err)

	sgd, err := optim.NewSGD(0.1)
	require.NoError(t, err)
	require.NoError(t, sgd.Step(p, map[string]*tensor.Tensor{"w": grad}))

	w, _ := p.Get("w")
	assert.InDeltaSlice(t, []float64{0.95, 2.05}, w.Data, 1e-12)
}

func TestSGDRejectsGradMismatch(t *testing.T) {
	t.Parallel()

	p := singleParam(t, []float64{1})
	wrong, err := tensor.New([]int{3}, tensor.Float64)
	require.NoError(t, err)

	sgd, err := optim.NewSGD(0.1)
	require.NoError(t, err)

	err = sgd.Step(p, map[string]*tensor.Tensor{"w": wrong})
	assert.ErrorIs(t, err, optim.ErrGradMismatch)

	err = sgd.Step(p, map[string]*tensor.Tensor{"missing": wrong})
	assert.ErrorIs(t, err, optim.ErrGradMismatch)
}

func TestBadLearningRate(t *testing.T) {
	t.Parallel()

	_, err := optim.NewSGD(0)
	assert.ErrorIs(t, err, optim.ErrBadLearningRate)

	_, err = optim.NewAdamW(-1)
	assert.ErrorIs(t, err, optim.ErrBadLearningRate)
}

func TestAdamWDescendsTowardsGradient(t *testing.T) {
	t.Parallel()

	p := singleParam(t, []float64{1})
	grad, err := tensor.FromData([]int{1}, tensor.Float64, []float64{1})
	require.NoError(t, err)

	adam, err := optim.NewAdamW(0.01)
	require.NoError(t, err)

	w, _ := p.Get("w")
	before := w.Data[0]
	for i := 0; i < 5; i++ {
		require.NoError(t, adam.Step(p, map[string]*tensor.Tensor{"w": grad}))
	}

	assert.Less(t, w.Data[0], before)
}

func TestAdamWFreshInstanceHasNoCarriedState(t *testing.T) {
	t.Parallel()

	grad, err := tensor.FromData([]int{1}, tensor.Float64, []float64{1})
	require.NoError(t, err)

	first := singleParam(t, []float64{1})
	a1, err := optim.NewAdamW(0.01)
	require.NoError(t, err)
	require.NoError(t, a1.Step(first, map[string]*tensor.Tensor{"w": grad}))

	// A replacement optimizer on identical weights takes the identical
	// first step, proving no moments leaked across instances.
	second := singleParam(t, []float64{1})
	a2, err := optim.NewAdamW(0.01)
	require.NoError(t, err)
	require.NoError(t, a2.Step(second, map[string]*tensor.Tensor{"w": grad}))

	w1, _ := first.Get("w")
	w2, _ := second.Get("w")
	assert.Equal(t, w1.Data[0], w2.Data[0])
}
