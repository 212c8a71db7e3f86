package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/ir"
)

// buildGlobalMemsetFunc builds `for (i=0;i<N;i=i+1) arr[i] = 0;` against a
// module-level global array, in the structured (pre-FlattenCFG) shape the
// front-end actually produces — a single KFor op in the entry block, one
// body block underneath it.
func buildGlobalMemsetFunc(t *testing.T, n int64) (*ir.Module, *ir.Function) {
	t.Helper()
	mod := ir.NewModule("m")
	mod.AddGlobal(&ir.Global{Name: "arr", Ty: ir.I32, Dims: []int{int(n)}, Zero: true})

	fn := ir.NewFunction("fill", nil, ir.Unit)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)

	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	start := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	stop := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(n)})
	step := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	ivSlot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.NameAttr("i")})

	forOp := bld.Create(ir.KFor, ir.Unit, []*ir.Op{start, stop, step, ivSlot}, nil)
	region := bld.CreateRegion(forOp)
	body := ir.NewBlock("body")
	region.Append(body)

	scope := bld.EnterScope()
	bld.SetInsertionPoint(body)
	base := bld.Create(ir.KAddr, ir.I64, nil, []ir.Attr{ir.NameAttr("arr")})
	iv := bld.Create(ir.KLoad, ir.I32, []*ir.Op{ivSlot}, nil)
	addr := bld.Create(ir.KGetElement, ir.I64, []*ir.Op{base, iv}, nil)
	zero := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{addr, zero}, nil)
	scope.Exit()

	mod.AddFunction(fn)
	return mod, fn
}

func TestParallelizeSplitsMemsetLoop(t *testing.T) {
	mod, fn := buildGlobalMemsetFunc(t, 64)

	runParallelize(mod)

	require.Len(t, mod.Functions, 2, "expected the original function plus a synthesized worker")

	entry := fn.EntryBlock()
	var forOp, cloneOp, joinOp *ir.Op
	for _, o := range entry.Ops {
		switch o.Kind {
		case ir.KFor:
			forOp = o
		case ir.KClone:
			cloneOp = o
		case ir.KJoin:
			joinOp = o
		}
	}
	require.NotNil(t, forOp, "the original loop must remain, now over the second half")
	require.NotNil(t, cloneOp, "a KClone must spawn the worker before the loop")
	require.NotNil(t, joinOp, "a KJoin must wait for the worker after the loop")

	_, hasParallelizable := forOp.Attr(ir.AttrParallelizable)
	assert.True(t, hasParallelizable)

	name, ok := cloneOp.Attr(ir.AttrNameAttr)
	require.True(t, ok)
	worker := mod.FindFunction(name.Str())
	require.NotNil(t, worker, "the cloned worker name must resolve to a real function")

	joinName, ok := joinOp.Attr(ir.AttrNameAttr)
	require.True(t, ok)
	assert.Equal(t, name.Str(), joinName.Str())

	workerEntry := worker.EntryBlock()
	var workerFor *ir.Op
	for _, o := range workerEntry.Ops {
		if o.Kind == ir.KFor {
			workerFor = o
		}
	}
	require.NotNil(t, workerFor, "the worker must carry its own copy of the loop")
	assert.NotEqual(t, forOp.Operands[3], workerFor.Operands[3], "the worker must own a fresh induction alloca")
}

func TestParallelizeLeavesScalarLoopAlone(t *testing.T) {
	mod := ir.NewModule("m")
	mod.AddGlobal(&ir.Global{Name: "acc", Ty: ir.I32})

	fn := ir.NewFunction("sum", nil, ir.Unit)
	entry := ir.NewBlock("entry")
	fn.Region.Append(entry)
	bld := ir.NewBuilder(fn)
	bld.SetInsertionPoint(entry)
	start := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(0)})
	stop := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(10)})
	step := bld.Create(ir.KConst, ir.I32, nil, []ir.Attr{ir.IntAttr(1)})
	ivSlot := bld.Create(ir.KAlloca, ir.I32, nil, []ir.Attr{ir.NameAttr("i")})
	forOp := bld.Create(ir.KFor, ir.Unit, []*ir.Op{start, stop, step, ivSlot}, nil)
	region := bld.CreateRegion(forOp)
	body := ir.NewBlock("body")
	region.Append(body)
	scope := bld.EnterScope()
	bld.SetInsertionPoint(body)
	accAddr := bld.Create(ir.KAddr, ir.I64, nil, []ir.Attr{ir.NameAttr("acc")})
	cur := bld.Create(ir.KLoad, ir.I32, []*ir.Op{accAddr}, nil)
	iv := bld.Create(ir.KLoad, ir.I32, []*ir.Op{ivSlot}, nil)
	next := bld.Create(ir.KBinOp, ir.I32, []*ir.Op{cur, iv}, []ir.Attr{ir.NameAttr("add")})
	bld.Create(ir.KStore, ir.Unit, []*ir.Op{accAddr, next}, nil)
	scope.Exit()
	mod.AddFunction(fn)

	runParallelize(mod)

	assert.Len(t, mod.Functions, 1, "a scalar accumulator store is not split into a worker")
}
