// SPDX-License-Identifier: MIT

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/katalvlaran/scalebp/chain"
)

type runner func(ctx context.Context, c *chain.Chain, obs chain.Observations) (chain.Result, error)

func runWith(label string, run runner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer func() { err = s.close(cmd, err) }()

		res, err := run(cmd.Context(), s.chain, s.obs)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), label, res)
		return nil
	}
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filtered marginals and log-evidence",
	Long:  `Runs one forward sweep and prints p(x_t | y_1..t) for every step together with log p(y).`,
	RunE:  runWith("filtered", chain.RunFilter),
}

var smoothCmd = &cobra.Command{
	Use:   "smooth",
	Short: "Smoothed marginals, log-evidence and cut discrepancy",
	Long:  `Runs forward and backward sweeps and prints p(x_t | y_1..n) for every step, log p(y) and the largest disagreement of the evidence read at different variables.`,
	RunE:  runWith("smoothed", chain.RunSmoother),
}

func init() {
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(smoothCmd)
}
