package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/swarmml/swarmtrain/swarmtraind"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "swarmtrain",
		Short: "Swarmtrain Daemon",
		Long:  `Swarmtrain Daemon runs decentralized training miners.`,
	}

	rootCmd.AddCommand(swarmtraind.NewMinerCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
