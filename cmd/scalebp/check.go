// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/katalvlaran/scalebp/chain"
	"github.com/katalvlaran/scalebp/evidence"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
)

// errCheckFailed is returned when the two evidence values disagree.
var errCheckFailed = errors.New("evidence check failed")

var checkTol float64

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the engine evidence with the Bethe Free Energy",
	Long:  `Runs the smoother and compares log p(y) with -F, the negative Bethe Free Energy of the converged beliefs. Fails when the relative difference exceeds --tol.`,
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer func() { err = s.close(cmd, err) }()

		if s.model.GraphMode() == factorgraph.ModeFiltering {
			return fault.Config("check", fault.ErrEvidenceDisabled)
		}
		res, err := chain.RunSmoother(cmd.Context(), s.chain, s.obs)
		if err != nil {
			return err
		}
		bfe, err := evidence.BetheFreeEnergy(s.chain.Engine())
		if err != nil {
			return err
		}

		diff := math.Abs(res.LogEvidence+bfe) / math.Max(1, math.Abs(res.LogEvidence))
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "log-evidence: %.9g\n", res.LogEvidence)
		fmt.Fprintf(w, "-bethe:       %.9g\n", -bfe)
		fmt.Fprintf(w, "relative:     %.3g (tol %.3g)\n", diff, checkTol)
		fmt.Fprintf(w, "cut:          %.3g\n", res.MaxCutDiscrepancy)
		if diff > checkTol {
			return fmt.Errorf("%w: relative difference %.3g > %.3g", errCheckFailed, diff, checkTol)
		}
		fmt.Fprintln(w, "ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Float64Var(&checkTol, "tol", 1e-6, "Largest accepted relative difference")
}
