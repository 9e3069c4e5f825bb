package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmml/swarmtrain/dataset"
	"github.com/swarmml/swarmtrain/model"
	"github.com/swarmml/swarmtrain/tensor"
)

func TestForwardBackwardGradientShapes(t *testing.T) {
	t.Parallel()

	m, err := model.NewLinear(3, 2)
	require.NoError(t, err)

	res, err := m.ForwardBackward(dataset.Batch{
		Inputs: [][]float64{{1, 0, 0}, {0, 1, 0}},
		Labels: []int{0, 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Examples)
	assert.Positive(t, res.Loss)
	assert.Equal(t, []int{2, 3}, res.Gradients["linear.weight"].Shape)
	assert.Equal(t, []int{2}, res.Gradients["linear.bias"].Shape)
}

func TestForwardBackwardRejectsBadBatch(t *testing.T) {
	t.Parallel()

	m, err := model.NewLinear(3, 2)
	require.NoError(t, err)

	_, err = m.ForwardBackward(dataset.Batch{})
	assert.ErrorIs(t, err, model.ErrBadBatch)

	_, err = m.ForwardBackward(dataset.Batch{Inputs: [][]float64{{1, 2}}, Labels: []int{0}})
	assert.ErrorIs(t, err, model.ErrBadBatch)

	_, err = m.ForwardBackward(dataset.Batch{Inputs: [][]float64{{1, 2, 3}}, Labels: []int{5}})
	assert.ErrorIs(t, err, model.ErrBadBatch)
}

func TestLoadStateCopiesMatchingShapes(t *testing.T) {
	t.Parallel()

	src, err := model.NewLinear(2, 2)
	require.NoError(t, err)
	src.Init(1)

	dst, err := model.NewLinear(2, 2)
	require.NoError(t, err)

	require.NoError(t, dst.LoadState(src.Parameters().State()))
	assert.Equal(t, model.Hash(src.Parameters()), model.Hash(dst.Parameters()))
}

func TestLoadStateGrowsRowDimension(t *testing.T) {
	t.Parallel()

	m, err := model.NewLinear(2, 2)
	require.NoError(t, err)

	grown, err := tensor.FromData([]int{3, 2}, tensor.Float64, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	biasGrown, err := tensor.FromData([]int{3}, tensor.Float64, []float64{1, 2, 3})
	require.NoError(t, err)

	err = m.LoadState(model.State{
		"linear.weight": grown,
		"linear.bias":   biasGrown,
	})
	require.NoError(t, err)

	w, ok := m.Parameters().Get("linear.weight")
	require.True(t, ok)
	assert.Equal(t, []int{3, 2}, w.Shape)
}

func TestReconcileStateMismatchLeavesParametersUntouched(t *testing.T) {
	t.Parallel()

	p := model.NewParameters()
	a, err := tensor.FromData([]int{2}, tensor.Float64, []float64{1, 1})
	require.NoError(t, err)
	b, err := tensor.FromData([]int{2}, tensor.Float64, []float64{2, 2})
	require.NoError(t, err)
	require.NoError(t, p.Register("a", a))
	require.NoError(t, p.Register("b", b))

	// The state covers "a" but not "b": the reconcile must fail without
	// having copied anything, not overwrite "a" and then error.
	incoming, err := tensor.FromData([]int{2}, tensor.Float64, []float64{5, 5})
	require.NoError(t, err)

	err = model.ReconcileState(p, model.State{"a": incoming})
	require.ErrorIs(t, err, model.ErrStateMismatch)

	live, _ := p.Get("a")
	assert.Equal(t, []float64{1, 1}, live.Data)

	// A delta taken after the failed reconcile stays zero: the jump to
	// the incoming weights can never masquerade as training movement.
	tracker := model.NewTracker()
	tracker.Rebase(p)
	_ = model.ReconcileState(p, model.State{"a": incoming})
	diff, err := tracker.Delta(p)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, diff["a"].Data)
	assert.Equal(t, []float64{0, 0}, diff["b"].Data)
}

func TestReconcileStateShapeMismatchLeavesParametersUntouched(t *testing.T) {
	t.Parallel()

	p := model.NewParameters()
	a, err := tensor.FromData([]int{2}, tensor.Float64, []float64{1, 1})
	require.NoError(t, err)
	b, err := tensor.FromData([]int{2}, tensor.Float64, []float64{2, 2})
	require.NoError(t, err)
	require.NoError(t, p.Register("a", a))
	require.NoError(t, p.Register("b", b))

	goodA, err := tensor.FromData([]int{2}, tensor.Float64, []float64{5, 5})
	require.NoError(t, err)
	shrunkB, err := tensor.FromData([]int{1}, tensor.Float64, []float64{9})
	require.NoError(t, err)

	err = model.ReconcileState(p, model.State{"a": goodA, "b": shrunkB})
	require.ErrorIs(t, err, model.ErrStateMismatch)

	liveA, _ := p.Get("a")
	liveB, _ := p.Get("b")
	assert.Equal(t, []float64{1, 1}, liveA.Data)
	assert.Equal(t, []float64{2, 2}, liveB.Data)
}

func TestLoadStateRejectsShrunkOrMissing(t *testing.T) {
	t.Parallel()

	m, err := model.NewLinear(2, 3)
	require.NoError(t, err)

	err = m.LoadState(model.State{})
	assert.ErrorIs(t, err, model.ErrStateMismatch)

	shrunk, err := tensor.New([]int{1, 2}, tensor.Float64)
	require.NoError(t, err)
	bias, err := tensor.New([]int{3}, tensor.Float64)
	require.NoError(t, err)

	err = m.LoadState(model.State{"linear.weight": shrunk, "linear.bias": bias})
	assert.ErrorIs(t, err, model.ErrStateMismatch)
}
