package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

func intType() Type   { return Type{Elem: TInt} }
func floatType() Type { return Type{Elem: TFloat} }

// square(x int) int { return x * x }
func squareFunc() *FuncDecl {
	return &FuncDecl{
		Name:       "square",
		Params:     []*Param{{Name: "x", Ty: intType()}},
		ReturnType: intType(),
		Body: &BlockStmt{Stmts: []Stmt{
			&ReturnStmt{Value: &BinaryExpr{Op: "mul", LHS: &Ident{Name: "x"}, RHS: &Ident{Name: "x"}}},
		}},
	}
}

// sum(n int) int {
//   int s = 0;
//   for (i = 0; i < n; i = i + 1) { s = s + i; }
//   return s;
// }
func sumFunc() *FuncDecl {
	return &FuncDecl{
		Name:       "sum",
		Params:     []*Param{{Name: "n", Ty: intType()}},
		ReturnType: intType(),
		Body: &BlockStmt{Stmts: []Stmt{
			&VarDeclStmt{Name: "s", Ty: intType(), Init: &IntLit{Val: 0}},
			&ForStmt{
				IV:    "i",
				Start: &IntLit{Val: 0},
				Stop:  &Ident{Name: "n"},
				Step:  &IntLit{Val: 1},
				Body: &BlockStmt{Stmts: []Stmt{
					&AssignStmt{
						Target: &Ident{Name: "s"},
						Value:  &BinaryExpr{Op: "add", LHS: &Ident{Name: "s"}, RHS: &Ident{Name: "i"}},
					},
				}},
			},
			&ReturnStmt{Value: &Ident{Name: "s"}},
		}},
	}
}

func TestLowerSquareProducesVerifiedModule(t *testing.T) {
	prog := &Program{Funcs: []*FuncDecl{squareFunc()}}
	mod, err := Lower(prog)
	require.NoError(t, err)

	fn := mod.FindFunction("square")
	require.NotNil(t, fn)
	entry := fn.EntryBlock()
	require.NotNil(t, entry)

	// first op is the parameter alloca, by the NumArgs convention.
	assert.Equal(t, ir.KAlloca, entry.Ops[0].Kind)
	last := entry.Ops[len(entry.Ops)-1]
	assert.Equal(t, ir.KReturn, last.Kind)

	assert.Empty(t, ir.Verify(mod, true))
}

func TestLowerForBuildsNestedRegion(t *testing.T) {
	prog := &Program{Funcs: []*FuncDecl{sumFunc()}}
	mod, err := Lower(prog)
	require.NoError(t, err)

	fn := mod.FindFunction("sum")
	entry := fn.EntryBlock()

	var forOp *ir.Op
	for _, o := range entry.Ops {
		if o.Kind == ir.KFor {
			forOp = o
		}
	}
	require.NotNil(t, forOp)
	require.Len(t, forOp.Regions, 1)
	body := forOp.Regions[0].Blocks[0]
	assert.NotEmpty(t, body.Ops)
	// the induction var alloca is the 4th operand (start, stop, step, ivAddr).
	require.Len(t, forOp.Operands, 4)
	assert.Equal(t, ir.KAlloca, forOp.Operands[3].Kind)
}

func TestLowerGlobalArrayAndIndex(t *testing.T) {
	prog := &Program{
		Globals: []*GlobalDecl{
			{Name: "buf", Ty: Type{Elem: TInt, Dims: []int{4}}, Zero: true},
		},
		Funcs: []*FuncDecl{{
			Name:       "get",
			Params:     []*Param{{Name: "i", Ty: intType()}},
			ReturnType: intType(),
			Body: &BlockStmt{Stmts: []Stmt{
				&ReturnStmt{Value: &IndexExpr{Base: "buf", Indices: []Expr{&Ident{Name: "i"}}}},
			}},
		}},
	}
	mod, err := Lower(prog)
	require.NoError(t, err)
	require.Len(t, mod.Globals, 1)
	assert.Equal(t, []int{4}, mod.Globals[0].Dims)

	fn := mod.FindFunction("get")
	entry := fn.EntryBlock()
	var sawAddr, sawGep, sawLoad bool
	for _, o := range entry.Ops {
		switch o.Kind {
		case ir.KAddr:
			sawAddr = true
		case ir.KGetElement:
			sawGep = true
		case ir.KLoad:
			sawLoad = true
		}
	}
	assert.True(t, sawAddr, "indexing a global should materialize its address")
	assert.True(t, sawGep, "array indexing should emit KGetElement")
	assert.True(t, sawLoad, "reading an array element should emit KLoad")
}

func TestLowerMissingReturnErrors(t *testing.T) {
	prog := &Program{Funcs: []*FuncDecl{{
		Name:       "broken",
		ReturnType: intType(),
		Body:       &BlockStmt{},
	}}}
	_, err := Lower(prog)
	assert.Error(t, err)
}

func TestLowerFloatPromotion(t *testing.T) {
	prog := &Program{Funcs: []*FuncDecl{{
		Name:       "mix",
		Params:     []*Param{{Name: "x", Ty: intType()}, {Name: "y", Ty: floatType()}},
		ReturnType: floatType(),
		Body: &BlockStmt{Stmts: []Stmt{
			&ReturnStmt{Value: &BinaryExpr{Op: "add", LHS: &Ident{Name: "x"}, RHS: &Ident{Name: "y"}}},
		}},
	}}}
	mod, err := Lower(prog)
	require.NoError(t, err)
	fn := mod.FindFunction("mix")
	entry := fn.EntryBlock()
	var add *ir.Op
	for _, o := range entry.Ops {
		if o.Kind == ir.KBinOp {
			add = o
		}
	}
	require.NotNil(t, add)
	assert.Equal(t, ir.F32, add.ResultTy)
}
