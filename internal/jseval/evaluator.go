// Package jseval is the JavaScript runtime for bond subordinates, built on goja.
package jseval

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"github.com/erg0nix/bond/internal/codec"
	"github.com/erg0nix/bond/internal/engine"
)

// WriteFunc is the native the stage-2 prelude uses for console output.
const WriteFunc = "__bond_write"

var identifierRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Evaluator runs code in a single goja runtime whose global scope persists
// across commands.
type Evaluator struct {
	vm       *goja.Runtime
	channels map[string]io.Writer
}

// New creates an evaluator. channels maps output channel names to the
// writers behind WriteFunc; unknown channels are discarded.
func New(channels map[string]io.Writer) *Evaluator {
	ev := &Evaluator{
		vm:       goja.New(),
		channels: channels,
	}
	ev.vm.Set(WriteFunc, ev.write)
	return ev
}

// Runtime exposes the underlying goja runtime.
func (ev *Evaluator) Runtime() *goja.Runtime {
	return ev.vm
}

// EvalExpr evaluates code as one expression. The argument is parenthesized
// so anonymous function literals parse as expressions.
func (ev *Evaluator) EvalExpr(code string) (any, error) {
	v, err := ev.vm.RunScript("<eval>", "("+code+"\n)")
	if err != nil {
		return nil, ev.convertError(err)
	}
	return exportValue(v), nil
}

// ExecBlock runs code as a script; top-level declarations become globals.
func (ev *Evaluator) ExecBlock(code string) error {
	if _, err := ev.vm.RunScript("<block>", code); err != nil {
		return ev.convertError(err)
	}
	return nil
}

// ResolveCallable looks plain identifiers up in the global scope. Any other
// callee is invoked by evaluating `(callee)(args...)`, which keeps the
// receiver of method references and accepts function literals.
func (ev *Evaluator) ResolveCallable(callee string) (engine.Callable, error) {
	callee = strings.TrimSpace(callee)
	if !identifierRe.MatchString(callee) {
		return ev.invocation(callee), nil
	}

	v := ev.vm.Get(callee)
	if v == nil {
		return nil, &engine.EvalError{Name: "ReferenceError", Message: callee + " is not defined"}
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, &engine.EvalError{Name: "TypeError", Message: callee + " is not a function"}
	}

	return func(args []any) (any, error) {
		jsArgs := make([]goja.Value, len(args))
		for i, a := range args {
			jsArgs[i] = ev.vm.ToValue(a)
		}
		ret, err := fn(goja.Undefined(), jsArgs...)
		if err != nil {
			return nil, ev.convertError(err)
		}
		return exportValue(ret), nil
	}, nil
}

func (ev *Evaluator) invocation(callee string) engine.Callable {
	return func(args []any) (any, error) {
		literals := make([]string, len(args))
		for i, a := range args {
			data, err := codec.Encode(a)
			if err != nil {
				return nil, err
			}
			literals[i] = string(data)
		}
		src := "(" + callee + "\n)(" + strings.Join(literals, ", ") + ")"
		ret, err := ev.vm.RunScript("<call>", src)
		if err != nil {
			return nil, ev.convertError(err)
		}
		return exportValue(ret), nil
	}
}

// Define binds fn as a global JavaScript function. Errors returned by fn
// are thrown into the calling script.
func (ev *Evaluator) Define(name string, fn engine.Callable) error {
	native := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = exportValue(a)
		}
		ret, err := fn(args)
		if err != nil {
			panic(ev.vm.NewGoError(err))
		}
		return ev.vm.ToValue(ret)
	}
	if err := ev.vm.Set(name, native); err != nil {
		return &engine.EvalError{Name: "Error", Message: fmt.Sprintf("cannot define %s: %v", name, err)}
	}
	return nil
}

// Defined reports whether name resolves in the global scope.
func (ev *Evaluator) Defined(name string) bool {
	return ev.vm.Get(name) != nil
}

// Interrupt aborts the running script; every later script fails immediately.
func (ev *Evaluator) Interrupt(reason error) {
	ev.vm.Interrupt(reason)
}

func (ev *Evaluator) write(channel, text string) {
	if w, ok := ev.channels[channel]; ok && w != nil {
		io.WriteString(w, text)
	}
}

func (ev *Evaluator) convertError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if reason, ok := interrupted.Value().(error); ok {
			return reason
		}
		return &engine.ProtocolError{Reason: "interrupted", Err: err}
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ev.fromException(ex)
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &engine.EvalError{Name: "SyntaxError", Message: syntax.Error()}
	}

	return &engine.EvalError{Name: "Error", Message: err.Error()}
}

func (ev *Evaluator) fromException(ex *goja.Exception) error {
	val := ex.Value()
	if val == nil {
		return &engine.EvalError{Name: "Error", Message: ex.Error()}
	}

	obj, isObject := val.(*goja.Object)
	if isObject && obj.ClassName() == "Error" {
		// Errors raised by Go callables travel through JavaScript as GoError
		// objects; hand the original Go error back unchanged.
		if inner := obj.Get("value"); inner != nil {
			if goErr, ok := inner.Export().(error); ok {
				return goErr
			}
		}

		evalErr := &engine.EvalError{
			Name:    stringProp(obj, "name"),
			Message: stringProp(obj, "message"),
			Stack:   stringProp(obj, "stack"),
		}
		if evalErr.Name == "" {
			evalErr.Name = "Error"
		}
		return evalErr
	}

	return &engine.EvalError{Message: val.String(), Thrown: exportValue(val)}
}

func stringProp(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
