package trainer_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmml/swarmtrain/dataset"
	"github.com/swarmml/swarmtrain/model"
	"github.com/swarmml/swarmtrain/trainer"
)

// scriptedModule returns canned inference results so evaluator accounting
// can be checked exactly.
type scriptedModule struct {
	model.Module
	results        []model.EvalResult
	pos            int
	mode           string
	inferredInMode []string
}

func newScriptedModule(t *testing.T, results []model.EvalResult) *scriptedModule {
	t.Helper()

	base, err := model.NewLinear(2, 2)
	require.NoError(t, err)

	return &scriptedModule{Module: base, results: results, mode: "train"}
}

func (s *scriptedModule) Infer(_ dataset.Batch) (model.EvalResult, error) {
	s.inferredInMode = append(s.inferredInMode, s.mode)
	if s.pos >= len(s.results) {
		return model.EvalResult{}, errors.New("unexpected batch")
	}
	r := s.results[s.pos]
	s.pos++

	return r, nil
}

func (s *scriptedModule) TrainMode() { s.mode = "train" }

func (s *scriptedModule) EvalMode() { s.mode = "eval" }

func evalBatches(n int) dataset.Loader {
	batches := make([]dataset.Batch, n)
	for i := range batches {
		batches[i] = dataset.Batch{
			Inputs: [][]float64{{0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}},
			Labels: []int{0, 0, 0, 0, 0},
		}
	}

	return dataset.NewSliceLoader(batches)
}

func TestEvaluateSevenOfTenCorrect(t *testing.T) {
	t.Parallel()

	m := newScriptedModule(t, []model.EvalResult{
		{Loss: 1.2, Examples: 5, Correct: 4},
		{Loss: 0.8, Examples: 5, Correct: 3},
	})

	loss, accuracy, err := trainer.Evaluate(m, evalBatches(2))
	require.NoError(t, err)

	assert.InDelta(t, 0.7, accuracy, 1e-12)
	// Batch losses are summed then divided by the example count.
	assert.InDelta(t, 2.0/10.0, loss, 1e-12)
}

func TestEvaluateRestoresTrainMode(t *testing.T) {
	t.Parallel()

	m := newScriptedModule(t, []model.EvalResult{{Loss: 1, Examples: 5, Correct: 5}})

	_, _, err := trainer.Evaluate(m, evalBatches(1))
	require.NoError(t, err)

	assert.Equal(t, "train", m.mode, "evaluation mode must not leak")
	assert.Equal(t, []string{"eval"}, m.inferredInMode)
}

func TestEvaluateRestoresTrainModeOnError(t *testing.T) {
	t.Parallel()

	m := newScriptedModule(t, nil)

	_, _, err := trainer.Evaluate(m, evalBatches(1))
	require.Error(t, err)
	assert.Equal(t, "train", m.mode)
}

func TestEvaluateEmptyLoader(t *testing.T) {
	t.Parallel()

	m := newScriptedModule(t, nil)

	_, _, err := trainer.Evaluate(m, dataset.NewSliceLoader(nil))
	assert.ErrorIs(t, err, trainer.ErrNoTestData)
}
