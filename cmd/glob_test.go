// Copyright © 2024 The ELPS authors

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandArgs_RecursivePattern(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"b.script", "a.script", "sub/c.script", "notes.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, nil, 0o600))
	}

	files, err := expandArgs([]string{"first.script", dir + "/..."})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"first.script",
		filepath.Join(dir, "a.script"),
		filepath.Join(dir, "b.script"),
		filepath.Join(dir, "sub", "c.script"),
	}, files)
}

func TestExpandArgs_MissingDirectory(t *testing.T) {
	t.Parallel()
	_, err := expandArgs([]string{filepath.Join(t.TempDir(), "nope") + "/..."})
	assert.Error(t, err)
}

func TestFilterExcludes_ByName(t *testing.T) {
	t.Parallel()
	paths := []string{
		"src/main.script",
		"src/vendor.script",
		"lib/utils.script",
	}
	result := filterExcludes(paths, []string{"vendor.script"})
	assert.Equal(t, []string{"src/main.script", "lib/utils.script"}, result)
}

func TestFilterExcludes_ByDirectory(t *testing.T) {
	t.Parallel()
	paths := []string{
		"src/main.script",
		"build/output.script",
		"build/sub/deep.script",
		"lib/utils.script",
	}
	result := filterExcludes(paths, []string{"build"})
	assert.Equal(t, []string{"src/main.script", "lib/utils.script"}, result)
}

func TestFilterExcludes_GlobPattern(t *testing.T) {
	t.Parallel()
	paths := []string{
		"src/main.script",
		"src/generated_foo.script",
		"src/generated_bar.script",
	}
	result := filterExcludes(paths, []string{"generated_*"})
	assert.Equal(t, []string{"src/main.script"}, result)
}

func TestFilterExcludes_EmptyExcludes(t *testing.T) {
	t.Parallel()
	paths := []string{"src/main.script"}
	assert.Equal(t, paths, filterExcludes(paths, nil))
}

func TestMatchesAny(t *testing.T) {
	t.Parallel()
	assert.True(t, matchesAny("src/main.script", []string{"src/*.script"}))
	assert.False(t, matchesAny("lib/main.script", []string{"src/*.script"}))
	assert.True(t, matchesAny("deep/nested/vendor.script", []string{"vendor.script"}))
	assert.False(t, matchesAny("project/src/output.script", []string{"build"}))
}

func TestSplitPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b", "c.script"}, splitPath("./a/b//c.script"))
}
