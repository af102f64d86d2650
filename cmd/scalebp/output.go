// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/katalvlaran/scalebp/chain"
	"github.com/katalvlaran/scalebp/dist"
)

func printResult(w io.Writer, label string, res chain.Result) {
	if res.HasEvidence {
		fmt.Fprintf(w, "log-evidence: %.9g\n", res.LogEvidence)
		if label == "smoothed" {
			fmt.Fprintf(w, "cut-discrepancy: %.3g\n", res.MaxCutDiscrepancy)
		}
	} else {
		fmt.Fprintln(w, "log-evidence: n/a (filtering mode)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tbelief\n", label)
	for i, id := range res.IDs {
		fmt.Fprintf(tw, "%s\t%s\n", id, describe(res.Marginals[i]))
	}
	_ = tw.Flush()
}

func describe(d dist.Distribution) string {
	switch d := d.(type) {
	case *dist.Gaussian:
		return fmt.Sprintf("mean %s cov %s", vec(d.Mean()), vec(d.Cov().Values()))
	case *dist.Categorical:
		return "p " + vec(d.Probs())
	case *dist.PointMass:
		return "point " + vec(d.Value())
	default:
		return "unit"
	}
}

func vec(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = fmt.Sprintf("%.6g", v)
	}

	return "[" + strings.Join(parts, " ") + "]"
}
