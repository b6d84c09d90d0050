package engine

import "fmt"

// Callable is a function the engine can invoke with decoded arguments.
type Callable func(args []any) (any, error)

// Evaluator is the runtime-specific half of a subordinate: it turns source
// text into values and exposes named callables.
//
// EvalExpr must accept a bare anonymous function literal as an expression.
// ResolveCallable must accept plain identifiers as well as expression-like
// callees (qualified names, method references, function literals).
// Define makes fn reachable by name from evaluated code.
type Evaluator interface {
	EvalExpr(code string) (any, error)
	ExecBlock(code string) error
	ResolveCallable(callee string) (Callable, error)
	Define(name string, fn Callable) error
	Defined(name string) bool
}

// Interrupter is implemented by evaluators that can abort code that is
// currently running, e.g. after a fatal protocol fault in a nested call.
type Interrupter interface {
	Interrupt(reason error)
}

// EvalError is an application-level failure raised by evaluated code.
type EvalError struct {
	Name    string
	Message string
	Stack   string

	// Thrown holds the raw thrown value when it was not an error object.
	Thrown any
}

func (e *EvalError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ExceptionPayload is the structured form sent when exceptions are transparent.
func (e *EvalError) ExceptionPayload() any {
	if e.Thrown != nil {
		return e.Thrown
	}

	payload := map[string]any{
		"name":    e.Name,
		"message": e.Message,
	}
	if e.Stack != "" {
		payload["stack"] = e.Stack
	}
	return payload
}
