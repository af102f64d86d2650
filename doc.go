// Package scalebp computes exact inference together with the log model
// evidence on tree-structured factor graphs, by scaled message passing.
//
// 🚀 What is scalebp?
//
//	A deterministic, single-threaded engine that brings together:
//		• Distributions: Gaussian (moment + canonical form), Categorical, PointMass
//		• Scaled messages: every message carries exp(−scale), so the evidence
//		  falls out of the same sweeps that compute the marginals
//		• Factors: priors, linear-Gaussian and categorical transitions,
//		  observation clamps, equality
//		• A pull-based scheduler with incremental reruns and stale tracking
//		• Evidence readout plus the Bethe Free Energy as an independent check
//		• Chains: linear-Gaussian state-space models and hidden Markov models,
//		  filtering, smoothing and streaming appends
//
// ✨ Why scaled messages?
//
//   - Exact - on a tree every variable reads the same log p(y)
//   - Stable - messages stay normalized; only the scalar scale grows
//   - Cheap - no extra pass for the evidence
//
// Subpackages:
//
//	matrix/      - dense kernels: Mul, LU, Cholesky, solves, log-determinants
//	dist/        - Gaussian, Categorical, PointMass
//	message/     - Scaled messages and their fusion
//	factorgraph/ - variables, factors, edges, validation
//	rules/       - per-factor message rules (dispatch table)
//	schedule/    - sweep plans and the Engine
//	evidence/    - log-evidence aggregation, Bethe Free Energy
//	chain/       - state-space chains: filter, smoother, Append, Concat
//	fault/       - ConfigurationError, NumericalError and sentinels
//	cmd/scalebp  - CLI over YAML model files
//
// Quick ASCII example (one observed step):
//
//	prior ─ x0 ─ trans ─ x1 ─ obs ─ y1 ─ clamp
//
// Filtering gives p(x1 | y1) and log p(y1); smoothing adds p(x0 | y1).
//
//	go get github.com/katalvlaran/scalebp
package scalebp
