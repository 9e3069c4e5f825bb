package trainer

import (
	"errors"
	"fmt"

	"github.com/swarmml/swarmtrain/dataset"
	"github.com/swarmml/swarmtrain/model"
)

var ErrNoTestData = errors.New("test loader yielded no examples")

// Evaluate runs a gradient-free pass over the held-out set and returns the
// mean loss per example and the fraction of correct predictions. Batch
// losses are summed, not averaged per batch, then divided by the example
// count. The model is switched to evaluation mode for the pass and always
// restored to training mode before control returns.
func Evaluate(m model.Module, loader dataset.Loader) (loss, accuracy float64, err error) {
	m.EvalMode()
	defer m.TrainMode()

	loader.Reset()

	var totalLoss float64
	var totalExamples, totalCorrect int
	for {
		batch, ok := loader.Next()
		if !ok {
			break
		}

		res, inferErr := m.Infer(batch)
		if inferErr != nil {
			return 0, 0, fmt.Errorf("evaluation forward pass: %w", inferErr)
		}

		totalLoss += res.Loss
		totalExamples += res.Examples
		totalCorrect += res.Correct
	}

	if totalExamples == 0 {
		return 0, 0, ErrNoTestData
	}

	return totalLoss / float64(totalExamples), float64(totalCorrect) / float64(totalExamples), nil
}
