package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erg0nix/bond/internal/bootstrap"
	"github.com/erg0nix/bond/internal/driver"
	"github.com/erg0nix/bond/internal/engine"
	"github.com/erg0nix/bond/internal/jseval"
	"github.com/erg0nix/bond/internal/wire"
)

type scriptedPrompter struct {
	lines   []string
	history []string
	prompts int
}

func (s *scriptedPrompter) Prompt(string) (string, error) {
	s.prompts++
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedPrompter) AppendHistory(item string) {
	s.history = append(s.history, item)
}

func startLocalDriver(t *testing.T, out io.Writer) *driver.Driver {
	t.Helper()

	ctrlToSubR, ctrlToSubW := io.Pipe()
	subToCtrlR, subToCtrlW := io.Pipe()

	go func() {
		in := wire.NewReader(ctrlToSubR, 0, nil)
		w := wire.NewWriter(subToCtrlW, nil)
		load := jseval.Stage2(in, w, engine.Options{})
		load(jseval.Prelude, bootstrap.Start{})
		subToCtrlW.Close()
	}()

	d, err := driver.New(wire.NewReader(subToCtrlR, 0, nil), wire.NewWriter(ctrlToSubW, nil), driver.Options{
		Lang:   "js",
		Stdout: out,
		Stderr: out,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		d.Kill()
		subToCtrlR.Close()
	})
	return d
}

func TestRunREPL(t *testing.T) {
	var out bytes.Buffer
	d := startLocalDriver(t, &out)

	p := &scriptedPrompter{lines: []string{
		"!1+1",
		"",
		"var x = 21;",
		"!x * 2",
		"console.log('side effect')",
		"{",
		"!'still here'",
	}}

	runREPL(context.Background(), d, p, "js> ", &out)

	text := out.String()
	assert.Contains(t, text, "2\n")
	assert.Contains(t, text, "42\n")
	assert.Contains(t, text, "side effect\n")
	assert.Contains(t, text, "SyntaxError")
	assert.Contains(t, text, "\"still here\"\n")
	assert.True(t, strings.HasSuffix(text, "<EOF>\n"), "output = %q", text)
	assert.Len(t, p.history, 6, "blank lines are not recorded")
}

func TestParseCallArgs(t *testing.T) {
	args := parseCallArgs([]string{"1", "\"s\"", "[true]", "plain words"})
	assert.Equal(t, []any{int64(1), "s", []any{true}, "plain words"}, args)
}

func TestBlockSource(t *testing.T) {
	code, err := blockSource(strings.NewReader("from stdin"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", code)

	code, err = blockSource(strings.NewReader("ignored"), []string{"inline"})
	require.NoError(t, err)
	assert.Equal(t, "inline", code)
}

func TestClientAddrFromBind(t *testing.T) {
	cases := map[string]string{
		":7341":          "127.0.0.1:7341",
		"0.0.0.0:7341":   "127.0.0.1:7341",
		"10.0.0.5:7341":  "10.0.0.5:7341",
		"not-an-address": "not-an-address",
	}
	for bind, want := range cases {
		if got := clientAddrFromBind(bind); got != want {
			t.Errorf("clientAddrFromBind(%q) = %q, want %q", bind, got, want)
		}
	}
}
