// Copyright © 2018 The ELPS authors

package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/luthersystems/scriptdap/debugger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()
	src := `# leading comment
set(X 1)
message("hello ${X}"
  more)
  foo ( a b # trailing
 c )
`
	f, err := Parse("main.script", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "main.script", f.Path)
	require.Len(t, f.Invocations, 3)

	assert.Equal(t, Invocation{
		Name:    "set",
		Args:    []Argument{{Value: "X"}, {Value: "1"}},
		Line:    2,
		EndLine: 2,
	}, f.Invocations[0])
	assert.Equal(t, Invocation{
		Name:    "message",
		Args:    []Argument{{Value: "hello ${X}", Quoted: true}, {Value: "more"}},
		Line:    3,
		EndLine: 4,
	}, f.Invocations[1])
	assert.Equal(t, Invocation{
		Name:    "foo",
		Args:    []Argument{{Value: "a"}, {Value: "b"}, {Value: "c"}},
		Line:    5,
		EndLine: 6,
	}, f.Invocations[2])

	assert.Equal(t, []debugger.Function{
		{Name: "set", Line: 2, EndLine: 2, Args: []string{"X", "1"}},
		{Name: "message", Line: 3, EndLine: 4, Args: []string{"hello ${X}", "more"}},
		{Name: "foo", Line: 5, EndLine: 6, Args: []string{"a", "b", "c"}},
	}, f.Functions())
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()
	for _, src := range []string{"", "\n\n", "# only a comment\n"} {
		f, err := Parse("empty.script", []byte(src))
		require.NoError(t, err, "%q", src)
		assert.Empty(t, f.Invocations)
		assert.Empty(t, f.Functions())
	}
}

func TestParse_QuotedEscapes(t *testing.T) {
	t.Parallel()
	f, err := Parse("q.script", []byte(`message("a\"b\nc" "x;y" "")`))
	require.NoError(t, err)
	require.Len(t, f.Invocations, 1)
	assert.Equal(t, []Argument{
		{Value: "a\"b\nc", Quoted: true},
		{Value: "x;y", Quoted: true},
		{Value: "", Quoted: true},
	}, f.Invocations[0].Args)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"stray paren", "set(X 1)\n)\n", "bad.script:2: unexpected source text starting: )"},
		{"unterminated", "set(X 1)\nset(Y\n", "bad.script:2: unexpected source text starting: set(Y"},
		{"long text", "(0123456789abcdefghij\n", "bad.script:1: unexpected source text starting: (0123456789abcde..."},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse("bad.script", []byte(tt.src))
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "main.script")
	require.NoError(t, os.WriteFile(path, []byte("message(hi)\n"), 0o600))
	f, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Invocations, 1)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.script"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLineIndex(t *testing.T) {
	t.Parallel()
	idx := newLineIndex([]byte("a\nbc\n\nd"))
	assert.Equal(t, int64(1), idx.line(0))
	assert.Equal(t, int64(1), idx.line(1))
	assert.Equal(t, int64(2), idx.line(2))
	assert.Equal(t, int64(2), idx.line(4))
	assert.Equal(t, int64(3), idx.line(5))
	assert.Equal(t, int64(4), idx.line(6))
}
