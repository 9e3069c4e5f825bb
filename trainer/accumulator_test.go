package trainer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmml/swarmtrain/tensor"
	"github.com/swarmml/swarmtrain/trainer"
)

func constGrad(t *testing.T, value float64, n int) map[string]*tensor.Tensor {
	t.Helper()

	data := make([]float64, n)
	for i := range data {
		data[i] = value
	}
	tr, err := tensor.FromData([]int{n}, tensor.Float64, data)
	require.NoError(t, err)

	return map[string]*tensor.Tensor{"w": tr}
}

func TestTenUnitStepsAccumulateToTen(t *testing.T) {
	t.Parallel()

	acc := trainer.NewAccumulator(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, acc.Add(constGrad(t, 1.0, 3)))
	}

	snap := acc.Snapshot()
	require.Contains(t, snap, "w")
	for _, v := range snap["w"].Data {
		assert.Equal(t, 10.0, v)
	}
	assert.Equal(t, 10, acc.Steps())
}

func TestClippedAccumulation(t *testing.T) {
	t.Parallel()

	// Each gradient has norm 2, clipped to 0.5 before the add.
	acc := trainer.NewAccumulator(0.5)
	for i := 0; i < 4; i++ {
		require.NoError(t, acc.Add(constGrad(t, 2.0, 1)))
	}

	snap := acc.Snapshot()
	assert.InDelta(t, 2.0, snap["w"].Data[0], 1e-12)
}

func TestSnapshotIsDetached(t *testing.T) {
	t.Parallel()

	acc := trainer.NewAccumulator(0)
	require.NoError(t, acc.Add(constGrad(t, 1.0, 1)))

	snap := acc.Snapshot()
	require.NoError(t, acc.Add(constGrad(t, 1.0, 1)))

	assert.Equal(t, 1.0, snap["w"].Data[0])
	assert.Equal(t, 2.0, acc.Gradients()["w"].Data[0])
}

func TestResetStartsANewWindow(t *testing.T) {
	t.Parallel()

	acc := trainer.NewAccumulator(0)
	require.NoError(t, acc.Add(constGrad(t, 1.0, 2)))
	require.False(t, acc.Empty())

	acc.Reset()
	assert.True(t, acc.Empty())
	assert.Zero(t, acc.Steps())

	require.NoError(t, acc.Add(constGrad(t, 3.0, 2)))
	assert.Equal(t, 3.0, acc.Snapshot()["w"].Data[0])
}

func TestAddShapeChangeFails(t *testing.T) {
	t.Parallel()

	acc := trainer.NewAccumulator(0)
	require.NoError(t, acc.Add(constGrad(t, 1.0, 2)))

	err := acc.Add(constGrad(t, 1.0, 3))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}
