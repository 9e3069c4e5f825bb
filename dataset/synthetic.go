package dataset

import "math/rand"

// SyntheticConfig shapes a deterministic Gaussian-blob classification
// workload. Each class gets its own cluster center; the reference command
// uses it so a miner can run end to end without external data.
type SyntheticConfig struct {
	Features  int
	Classes   int
	Batches   int
	BatchSize int
	Seed      int64
}

// NewSynthetic builds a loader over randomly generated but reproducible
// batches. Two miners with the same seed see the same data.
func NewSynthetic(cfg SyntheticConfig) Loader {
	rng := rand.New(rand.NewSource(cfg.Seed))

	centers := make([][]float64, cfg.Classes)
	for c := range centers {
		centers[c] = make([]float64, cfg.Features)
		for f := range centers[c] {
			centers[c][f] = rng.NormFloat64() * 2
		}
	}

	batches := make([]Batch, cfg.Batches)
	for i := range batches {
		inputs := make([][]float64, cfg.BatchSize)
		labels := make([]int, cfg.BatchSize)
		for j := range inputs {
			label := rng.Intn(cfg.Classes)
			row := make([]float64, cfg.Features)
			for f := range row {
				row[f] = centers[label][f] + rng.NormFloat64()*0.5
			}
			inputs[j] = row
			labels[j] = label
		}
		batches[i] = Batch{Inputs: inputs, Labels: labels}
	}

	return NewSliceLoader(batches)
}
