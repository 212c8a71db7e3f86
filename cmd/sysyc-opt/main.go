// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"sysyc/internal/backend/arm64"
	"sysyc/internal/backend/rv64"
	"sysyc/internal/diag"
	"sysyc/internal/frontend"
	"sysyc/internal/ir"
	"sysyc/internal/pipeline"
)

// sysyc-opt has no lexer/parser to drive: it runs one of a handful of
// built-in frontend.Program fixtures through the full pass pipeline and
// a chosen machine back-end, printing colorized progress on success or
// failure. A *diag.Fault raised anywhere below is recovered by diag.Run.
func main() { diag.Run(run) }

func run() {
	demo := flag.String("demo", "sum", "built-in program to compile: "+demoNames())
	target := flag.String("target", "arm64", "back-end target: arm64 or rv64")
	trace := flag.Bool("trace", false, "dump the IR after every pass")
	flag.Parse()

	prog, ok := demos[*demo]
	if !ok {
		color.Red("unknown demo %q (want one of %s)", *demo, demoNames())
		os.Exit(1)
	}

	mod, err := frontend.Lower(prog)
	if err != nil {
		color.Red("lowering failed: %s", err)
		os.Exit(1)
	}

	cfg := pipeline.DefaultConfig()
	if *trace {
		cfg.Trace = func(pass, dump string) {
			color.Cyan("-- after %s --", pass)
			fmt.Println(dump)
		}
	}

	pl, err := pipeline.New(cfg)
	if err != nil {
		color.Red("pipeline build failed: %s", err)
		os.Exit(1)
	}
	pl.Run(mod)

	if errs := ir.Verify(mod, true); len(errs) > 0 {
		color.Red("module failed verification after the pipeline ran:")
		for _, e := range errs {
			fmt.Println(" -", e)
		}
		os.Exit(1)
	}

	var asm string
	switch *target {
	case "arm64":
		asm = arm64.Compile(mod)
	case "rv64":
		asm = rv64.Compile(mod)
	default:
		color.Red("unknown target %q (want arm64 or rv64)", *target)
		os.Exit(1)
	}

	fmt.Print(asm)
	color.Green("✅ compiled %q for %s", *demo, *target)
}

func demoNames() string {
	names := make([]string, 0, len(demos))
	for n := range demos {
		names = append(names, n)
	}
	return fmt.Sprint(names)
}

// demos are hand-built frontend.Program fixtures standing in for the
// lexer/parser this driver doesn't have, following the same construction
// style internal/frontend's own tests use.
var demos = map[string]*frontend.Program{
	"sum":  sumProgram(),
	"fill": fillProgram(),
}

func intType() frontend.Type { return frontend.Type{Elem: frontend.TInt} }

func arrayType(n int) frontend.Type {
	return frontend.Type{Elem: frontend.TInt, Dims: []int{n}}
}

// sum(n) { s := 0; for (i=0;i<n;i=i+1) s = s + i; return s; }
func sumProgram() *frontend.Program {
	return &frontend.Program{
		Funcs: []*frontend.FuncDecl{{
			Name:       "sum",
			Params:     []*frontend.Param{{Name: "n", Ty: intType()}},
			ReturnType: intType(),
			Body: &frontend.BlockStmt{Stmts: []frontend.Stmt{
				&frontend.VarDeclStmt{Name: "s", Ty: intType(), Init: &frontend.IntLit{Val: 0}},
				&frontend.ForStmt{
					IV:    "i",
					Start: &frontend.IntLit{Val: 0},
					Stop:  &frontend.Ident{Name: "n"},
					Step:  &frontend.IntLit{Val: 1},
					Body: &frontend.BlockStmt{Stmts: []frontend.Stmt{
						&frontend.AssignStmt{
							Target: &frontend.Ident{Name: "s"},
							Value:  &frontend.BinaryExpr{Op: "add", LHS: &frontend.Ident{Name: "s"}, RHS: &frontend.Ident{Name: "i"}},
						},
					}},
				},
				&frontend.ReturnStmt{Value: &frontend.Ident{Name: "s"}},
			}},
		}},
	}
}

// fill() { for (i=0;i<256;i=i+1) buf[i] = 0; return 0; } — a global-array
// elementwise loop shaped exactly for Parallelize to split across a worker.
func fillProgram() *frontend.Program {
	return &frontend.Program{
		Globals: []*frontend.GlobalDecl{
			{Name: "buf", Ty: arrayType(256), Zero: true},
		},
		Funcs: []*frontend.FuncDecl{{
			Name:       "fill",
			ReturnType: intType(),
			Body: &frontend.BlockStmt{Stmts: []frontend.Stmt{
				&frontend.ForStmt{
					IV:    "i",
					Start: &frontend.IntLit{Val: 0},
					Stop:  &frontend.IntLit{Val: 256},
					Step:  &frontend.IntLit{Val: 1},
					Body: &frontend.BlockStmt{Stmts: []frontend.Stmt{
						&frontend.AssignStmt{
							Target: &frontend.IndexExpr{Base: "buf", Indices: []frontend.Expr{&frontend.Ident{Name: "i"}}},
							Value:  &frontend.IntLit{Val: 0},
						},
					}},
				},
				&frontend.ReturnStmt{Value: &frontend.IntLit{Val: 0}},
			}},
		}},
	}
}
