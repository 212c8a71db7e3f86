package pattern

import "math"

// evalInt evaluates a `!op args...` integer compute expression (or a bare
// int literal / bound `'` atom) against bindings already captured by a
// preceding Match. Returns ok=false if the node references an unbound
// atom or an operator this matcher doesn't know.
func evalInt(n *Node, env *Env) (int64, bool) {
	switch {
	case n.Int != nil:
		return *n.Int, true
	case n.Atom != nil:
		if n.Atom.Sigil == "'" || n.Atom.Sigil == "" {
			v, ok := env.ints[n.Atom.Name]
			return v, ok
		}
		return 0, false
	case n.List != nil:
		return evalIntList(n.List, env)
	}
	return 0, false
}

func evalIntList(l *ListNode, env *Env) (int64, bool) {
	args := make([]int64, len(l.Args))
	for i, a := range l.Args {
		v, ok := evalInt(a, env)
		if !ok {
			return 0, false
		}
		args[i] = v
	}
	switch l.Head {
	case "+":
		return args[0] + args[1], true
	case "-":
		if len(args) == 1 {
			return -args[0], true
		}
		return args[0] - args[1], true
	case "*":
		return args[0] * args[1], true
	case "/":
		if args[1] == 0 {
			return 0, false
		}
		return args[0] / args[1], true
	case "%":
		if args[1] == 0 {
			return 0, false
		}
		return args[0] % args[1], true
	case "and":
		return args[0] & args[1], true
	case "or":
		return args[0] | args[1], true
	case "xor":
		return args[0] ^ args[1], true
	case "shl":
		return args[0] << uint(args[1]), true
	case "shr":
		return args[0] >> uint(args[1]), true
	case "eq":
		return boolInt(args[0] == args[1]), true
	case "ne":
		return boolInt(args[0] != args[1]), true
	case "lt":
		return boolInt(args[0] < args[1]), true
	case "le":
		return boolInt(args[0] <= args[1]), true
	case "gt":
		return boolInt(args[0] > args[1]), true
	case "ge":
		return boolInt(args[0] >= args[1]), true
	case "inbit":
		// !inbit x n: test bit n of x
		return boolInt(args[0]&(1<<uint(args[1])) != 0), true
	case "only-if":
		return args[0], true
	case "popcount":
		return int64(popcount(uint64(args[0]))), true
	default:
		return 0, false
	}
}

func popcount(x uint64) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// evalFloat mirrors evalInt for `?op` float compute expressions.
func evalFloat(n *Node, env *Env) (float64, bool) {
	switch {
	case n.Float != nil:
		return *n.Float, true
	case n.Int != nil:
		return float64(*n.Int), true
	case n.Atom != nil:
		v, ok := env.floats[n.Atom.Name]
		return v, ok
	case n.List != nil:
		return evalFloatList(n.List, env)
	}
	return 0, false
}

func evalFloatList(l *ListNode, env *Env) (float64, bool) {
	args := make([]float64, len(l.Args))
	for i, a := range l.Args {
		v, ok := evalFloat(a, env)
		if !ok {
			return 0, false
		}
		args[i] = v
	}
	switch l.Head {
	case "+":
		return args[0] + args[1], true
	case "-":
		if len(args) == 1 {
			return -args[0], true
		}
		return args[0] - args[1], true
	case "*":
		return args[0] * args[1], true
	case "/":
		return args[0] / args[1], true
	case "sqrt":
		return math.Sqrt(args[0]), true
	case "only-if":
		return args[0], true
	default:
		return 0, false
	}
}

// evalGuard evaluates a `!only-if cond` (or `?only-if cond`) node to a
// boolean, used when a match-side node is itself a compute expression
// rather than a structural sub-match.
func evalGuard(n *Node, env *Env) (bool, bool) {
	if n.List != nil && n.List.Sigil == "?" {
		v, ok := evalFloat(n, env)
		return v != 0, ok
	}
	v, ok := evalInt(n, env)
	return v != 0, ok
}
