// Package diag implements an assert-and-abort error-handling model: the
// core treats structural IR violations as programmer errors, not
// recoverable conditions. Assert panics with a *Fault; Run recovers it
// at the top-level boundary (the pipeline driver, cmd/sysyc-opt) and
// turns it into a colorized stderr message plus nonzero exit, so a
// failing assertion never lets partial output escape — the assembly
// file is either fully written or not written at all.
package diag

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// exitFunc is swapped out in tests so Fatal doesn't kill the test binary.
var exitFunc = os.Exit

// Category tags which fatal-assertion bucket a failure belongs to.
type Category string

const (
	MalformedIR          Category = "malformed-ir"
	UnsupportedConstruct Category = "unsupported-construct"
	RegAllocInfeasible   Category = "regalloc-infeasible"
	AnalysisPrecondition Category = "analysis-precondition"
)

// Fault is a fatal compiler assertion: a category plus a stack-wrapped
// error chain (via github.com/pkg/errors, so the original panic site
// survives past Run's recover).
type Fault struct {
	Category Category
	Err      error
}

func (f *Fault) Error() string { return fmt.Sprintf("[%s] %s", f.Category, f.Err.Error()) }
func (f *Fault) Unwrap() error { return f.Err }

// New builds a Fault from a formatted message, attaching a stack trace.
func New(cat Category, format string, args ...any) *Fault {
	return &Fault{Category: cat, Err: errors.WithStack(fmt.Errorf(format, args...))}
}

// Wrap attaches cat and a stack trace to an existing error (e.g. an I/O
// failure while writing the assembly file).
func Wrap(cat Category, err error, msg string) *Fault {
	return &Fault{Category: cat, Err: errors.Wrap(err, msg)}
}

// Assert panics with a *Fault if cond is false. IR verification
// (ir/verify.go and the pipeline's after-pass check) and the utils
// downcast checks raise their faults through it; the ir package's other
// structural checks (erasing an op that still has uses, post-dominators
// computed for a function with multiple exits) panic with a plain string
// instead, which Run does not turn into a Fault.
func Assert(cond bool, cat Category, format string, args ...any) {
	if !cond {
		panic(New(cat, format, args...))
	}
}

// Fatal prints a colorized diagnostic for err to stderr and exits nonzero.
func Fatal(err error) {
	printFault(err)
	exitFunc(1)
}

func printFault(err error) {
	bold := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	var f *Fault
	if errors.As(err, &f) {
		fmt.Fprintf(os.Stderr, "%s[%s]: %s\n", bold("error"), f.Category, f.Err.Error())
		if st, ok := f.Err.(interface{ StackTrace() errors.StackTrace }); ok {
			fmt.Fprintf(os.Stderr, "%s\n", dim(fmt.Sprintf("%+v", st.StackTrace())))
		}
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", bold("error"), err.Error())
}

// Run executes fn, recovering a *Fault panic raised by Assert and
// converting it into a Fatal diagnostic and nonzero exit. Any other panic
// value propagates — only the assert-and-abort contract is this package's
// concern, not general crash recovery.
func Run(fn func()) {
	defer func() {
		if r := recover(); r == nil {
			return
		} else if f, ok := r.(*Fault); ok {
			Fatal(f)
		} else {
			panic(r)
		}
	}()
	fn()
}
