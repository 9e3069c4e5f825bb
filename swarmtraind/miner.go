// Package swarmtraind exposes the daemon's cobra commands.
package swarmtraind

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swarmml/swarmtrain/dataset"
	"github.com/swarmml/swarmtrain/miner"
	"github.com/swarmml/swarmtrain/model"
)

// The reference workload: a linear softmax classifier over seeded
// Gaussian blobs. Swap the module and loaders here to train a real model.
const (
	workloadFeatures  = 16
	workloadClasses   = 4
	workloadBatches   = 64
	workloadBatchSize = 32
	workloadSeed      = 7
)

var minerCmds = []cobra.Command{
	{
		Use:   "start",
		Short: "Start miner",
		Long:  `Start a training miner against the configured hub.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := miner.LoadConfig()
			if err != nil {
				return err
			}

			m, err := model.NewLinear(workloadFeatures, workloadClasses)
			if err != nil {
				return err
			}
			m.Init(workloadSeed)

			train := dataset.NewSynthetic(dataset.SyntheticConfig{
				Features:  workloadFeatures,
				Classes:   workloadClasses,
				Batches:   workloadBatches,
				BatchSize: workloadBatchSize,
				Seed:      workloadSeed,
			})
			test := dataset.NewSynthetic(dataset.SyntheticConfig{
				Features:  workloadFeatures,
				Classes:   workloadClasses,
				Batches:   workloadBatches / 4,
				BatchSize: workloadBatchSize,
				Seed:      workloadSeed + 1,
			})

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return miner.Start(ctx, cancel, cfg, m, train, test)
		},
	},
}

func NewMinerCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "miner [start]",
		Short: "Miner management",
		Long:  `Run a training miner.`,
	}

	for i := range minerCmds {
		cmd.AddCommand(&minerCmds[i])
	}

	return &cmd
}
