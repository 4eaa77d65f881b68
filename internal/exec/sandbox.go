// Package exec runs untrusted participant code in a disposable JS
// sandbox with a hard wall-clock budget and a captured console.
package exec

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds a single run when no budget is configured.
const DefaultTimeout = 1000 * time.Millisecond

var errBudgetExceeded = errors.New("execution timed out")

// Result is the structured outcome of one run. Error is empty on
// success; on failure ConsoleOutput still holds whatever the code
// logged before it failed.
type Result struct {
	ConsoleOutput string  `json:"consoleOutput"`
	ReturnValue   *string `json:"returnValue,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Failed reports whether the run ended in an error.
func (r Result) Failed() bool { return r.Error != "" }

// Sandbox evaluates code strings. Every Run gets a fresh runtime, so
// no state or capability survives between runs.
type Sandbox struct {
	timeout time.Duration
}

// New creates a sandbox with the given per-run budget.
// A zero or negative timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sandbox{timeout: timeout}
}

// Run evaluates code and converts any failure (throw, timeout,
// isolation fault) into a Result — it never returns an error to the
// caller and never lets the sandboxed code touch the host.
func (s *Sandbox) Run(code string) (res Result) {
	var console lineBuffer

	defer func() {
		if r := recover(); r != nil {
			res = Result{ConsoleOutput: console.String(), Error: fmt.Sprintf("sandbox fault: %v", r)}
		}
	}()

	prg, err := compile(code)
	if err != nil {
		return Result{Error: err.Error()}
	}

	vm := goja.New()
	logFn := console.logFunc()
	consoleObj := vm.NewObject()
	_ = consoleObj.Set("log", logFn)
	_ = vm.Set("console", consoleObj)
	_ = vm.Set("log", logFn)

	timer := time.AfterFunc(s.timeout, func() {
		vm.Interrupt(errBudgetExceeded)
	})
	defer timer.Stop()

	value, err := vm.RunProgram(prg)
	if err != nil {
		return Result{ConsoleOutput: console.String(), Error: s.describe(err)}
	}

	out := Result{ConsoleOutput: console.String()}
	if value != nil && !goja.IsUndefined(value) {
		rv := value.String()
		out.ReturnValue = &rv
	}
	return out
}

// compile accepts both bare expressions ("2+2") and function bodies
// ("return 2+2"): a source that fails to parse as a script is retried
// wrapped in an immediately-invoked function.
func compile(code string) (*goja.Program, error) {
	prg, err := goja.Compile("", code, false)
	if err == nil {
		return prg, nil
	}
	wrapped, werr := goja.Compile("", "(function(){\n"+code+"\n})()", false)
	if werr != nil {
		return nil, err // report the original syntax error
	}
	return wrapped, nil
}

// describe turns a runtime error into the message broadcast to the
// room: thrown Error objects contribute their message property,
// interrupts become a timeout description.
func (s *Sandbox) describe(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		val := ex.Value()
		if obj, ok := val.(*goja.Object); ok {
			if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
				return m.String()
			}
		}
		return val.String()
	}
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		return fmt.Sprintf("execution timed out after %s", s.timeout)
	}
	return err.Error()
}

// lineBuffer captures console output: each log call appends its
// arguments joined by spaces, lines are joined by newlines.
type lineBuffer struct {
	lines []string
}

func (b *lineBuffer) logFunc() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		b.lines = append(b.lines, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (b *lineBuffer) String() string {
	return strings.Join(b.lines, "\n")
}
