// Package ir implements the MLIR-style nested-region SSA intermediate
// representation this compiler is built around: Module -> Function ->
// Region -> BasicBlock -> Op, with use-def bookkeeping, dominance,
// dominance-frontier, post-dominance and liveness analyses, and a Builder
// for structured construction and in-place rewriting.
package ir
