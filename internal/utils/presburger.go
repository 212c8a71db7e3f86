package utils

// BasicSet is a single integer linear-equality constraint over a fixed
// list of variables: sum(Coeffs[i]*x[i]) == Const. This is the minimal
// slice of Presburger arithmetic this repo needs — Vectorize's
// same-iteration read/write aliasing check reduces to "does this one
// affine equality have an integer solution", not full quantifier
// elimination. Parallelize's cross-iteration disjointness question is
// a different shape and deliberately doesn't route through this type
// (see its own doc comment).
type BasicSet struct {
	Coeffs []int64
	Const  int64
}

// IsEmpty reports whether no integer assignment to the set's variables
// satisfies its equation, decided by the classical criterion for linear
// Diophantine equations: sum(a_i * x_i) = c has an integer solution iff
// gcd(a_1..a_n) divides c (with the degenerate all-zero-coefficient case
// solvable only when c is itself zero).
func (s BasicSet) IsEmpty() bool {
	g := int64(0)
	for _, c := range s.Coeffs {
		g = gcd(absInt64(c), g)
	}
	if g == 0 {
		return s.Const != 0
	}
	return s.Const%g != 0
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func absInt64(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

// SubscriptDependence builds the basic set for "does subscript A, indexed
// by one set of induction variables, ever address the same element as
// subscript B, indexed by a second (possibly identical) set" and reports
// whether that set is non-empty. Subscripts follow ir.AttrSubscript's
// encoding: n per-induction-variable coefficients followed by one
// trailing constant term. A non-empty set is a conservative "may-alias";
// only an empty set proves the two accesses can never collide.
//
// Vectorize, its only caller, compares a single iteration's read and
// write subscripts for the same base (same-iteration read/write),
// passing vectors of equal length: the shared induction-variable
// coefficients followed by the constant term.
func SubscriptDependence(subA, subB []int64) bool {
	if len(subA) != len(subB) || len(subA) == 0 {
		return true // incomparable shapes: assume may-alias, the safe default
	}
	n := len(subA) - 1
	coeffs := make([]int64, n)
	for i := 0; i < n; i++ {
		coeffs[i] = subA[i] - subB[i]
	}
	set := BasicSet{Coeffs: coeffs, Const: subB[n] - subA[n]}
	return !set.IsEmpty()
}
