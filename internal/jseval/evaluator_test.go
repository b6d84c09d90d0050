package jseval

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erg0nix/bond/internal/codec"
	"github.com/erg0nix/bond/internal/engine"
)

func newEvaluator(t *testing.T) (*Evaluator, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	ev := New(map[string]io.Writer{"STDOUT": &stdout, "STDERR": &stderr})
	require.NoError(t, ev.ExecBlock(Prelude))
	return ev, &stdout, &stderr
}

func TestEvalExpr(t *testing.T) {
	ev, _, _ := newEvaluator(t)

	v, err := ev.EvalExpr("1+1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	v, err = ev.EvalExpr("[1, 'a', null]")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), "a", nil}, v)

	v, err = ev.EvalExpr("undefined")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEvalExprAcceptsFunctionLiteral(t *testing.T) {
	ev, _, _ := newEvaluator(t)

	v, err := ev.EvalExpr("function() {}")
	require.NoError(t, err)
	require.NotNil(t, v)

	_, err = codec.Encode(v)
	assert.True(t, codec.IsSerialization(err), "functions must not encode, got %v", err)
}

func TestExecBlockDefinesGlobals(t *testing.T) {
	ev, _, _ := newEvaluator(t)

	require.NoError(t, ev.ExecBlock("var counter = 1; function bump() { return ++counter; }"))
	assert.True(t, ev.Defined("bump"))
	assert.False(t, ev.Defined("nothing_here"))

	v, err := ev.EvalExpr("bump()")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestSyntaxError(t *testing.T) {
	ev, _, _ := newEvaluator(t)

	_, err := ev.EvalExpr("{")
	var evalErr *engine.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "SyntaxError", evalErr.Name)

	v, err := ev.EvalExpr("3")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestThrownValues(t *testing.T) {
	ev, _, _ := newEvaluator(t)

	_, err := ev.EvalExpr("(function() { throw new TypeError('bad type'); })()")
	var evalErr *engine.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "TypeError", evalErr.Name)
	assert.Equal(t, "bad type", evalErr.Message)
	assert.Equal(t, "TypeError: bad type", evalErr.Error())

	_, err = ev.EvalExpr("(function() { throw {code: 7}; })()")
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, map[string]any{"code": int64(7)}, evalErr.ExceptionPayload())
}

func TestConsoleShim(t *testing.T) {
	ev, stdout, stderr := newEvaluator(t)

	require.NoError(t, ev.ExecBlock(`
console.log("a", 1, {k: [true]});
print("b");
process.stdout.write("c");
console.error("oops");
`))

	assert.Equal(t, "a 1 {\"k\":[true]}\nb\nc", stdout.String())
	assert.Equal(t, "oops\n", stderr.String())
}

func TestResolveCallable(t *testing.T) {
	ev, _, _ := newEvaluator(t)
	require.NoError(t, ev.ExecBlock("function add(a, b) { return a + b; } var obj = {n: 10, get: function() { return this.n; }};"))

	cases := []struct {
		callee string
		args   []any
		want   any
	}{
		{"add", []any{int64(2), int64(3)}, int64(5)},
		{"String", []any{int64(5)}, "5"},
		{"Math.max", []any{int64(1), int64(9), int64(4)}, int64(9)},
		{"obj.get", nil, int64(10)},
		{"function(a) { return a * 2; }", []any{int64(21)}, int64(42)},
		{"add", []any{"x", []any{int64(1)}}, "x1"},
	}

	for _, tc := range cases {
		fn, err := ev.ResolveCallable(tc.callee)
		require.NoError(t, err, tc.callee)

		got, err := fn(tc.args)
		require.NoError(t, err, tc.callee)
		assert.Equal(t, tc.want, got, tc.callee)
	}
}

func TestResolveCallableErrors(t *testing.T) {
	ev, _, _ := newEvaluator(t)
	require.NoError(t, ev.ExecBlock("var notfn = 3;"))

	_, err := ev.ResolveCallable("missing")
	var evalErr *engine.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "ReferenceError", evalErr.Name)

	_, err = ev.ResolveCallable("notfn")
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "TypeError", evalErr.Name)
}

func TestDefineBridgesGoErrors(t *testing.T) {
	ev, _, _ := newEvaluator(t)

	sentinel := errors.New("controller said no")
	require.NoError(t, ev.Define("twice", func(args []any) (any, error) {
		return args[0].(int64) * 2, nil
	}))
	require.NoError(t, ev.Define("refuse", func([]any) (any, error) {
		return nil, sentinel
	}))

	v, err := ev.EvalExpr("twice(4)")
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)

	_, err = ev.EvalExpr("refuse()")
	assert.ErrorIs(t, err, sentinel)

	v, err = ev.EvalExpr("(function() { try { refuse(); } catch (e) { return 'caught: ' + e.message; } })()")
	require.NoError(t, err)
	assert.Equal(t, "caught: controller said no", v)
}

func TestInterrupt(t *testing.T) {
	ev, _, _ := newEvaluator(t)

	reason := &engine.ProtocolError{Reason: "test"}
	ev.Interrupt(reason)

	_, err := ev.EvalExpr("1")
	assert.ErrorIs(t, err, reason)
}
