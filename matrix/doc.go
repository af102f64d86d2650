// Package matrix offers the dense linear algebra used by the message-passing
// engine.
//
// The matrix package provides:
//
//   - Dense, a row-major float64 matrix with bounds-checked At/Set.
//   - Deterministic kernels: Add, Sub, Mul, Transpose, Scale, MatVec,
//     Symmetrize, Trace.
//   - Factorizations: LU (Doolittle with partial pivoting, used for
//     LogAbsDet) and Cholesky
//     for symmetric positive definite inputs, with the triangular solves,
//     inverse and log-determinant built on one factor.
//   - Small vector helpers (Dot, AddVec, SubVec, CloneVec).
//
// Every kernel validates its inputs up front and returns a sentinel error
// (see errors.go) wrapped with the operation name; nothing panics on user
// input. Loop orders are fixed, so identical inputs give bit-identical
// outputs.
//
// Cholesky is the workhorse: Gaussian messages convert between moment and
// canonical form through a single factorization, so the inverse and the
// log-determinant used by one computation always come from the same factor.
package matrix
