package files

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveJoinsRelativePathUnderRoot(t *testing.T) {
	root := t.TempDir()
	r := Resolver{Root: root}

	resolved, err := r.Resolve("notes/today.md")
	require.NoError(t, err)
	rootAbs, _ := filepath.Abs(root)
	assert.Equal(t, filepath.Join(rootAbs, "notes", "today.md"), resolved)
}

func TestResolveRejectsParentTraversal(t *testing.T) {
	r := Resolver{Root: t.TempDir()}
	_, err := r.Resolve("../../etc/passwd")
	assert.ErrorContains(t, err, "escapes workspace")
}

func TestResolveRejectsAbsolutePathOutsideRoot(t *testing.T) {
	r := Resolver{Root: t.TempDir()}
	_, err := r.Resolve("/etc/passwd")
	assert.ErrorContains(t, err, "escapes workspace")
}

func TestResolveRejectsEmptyPath(t *testing.T) {
	r := Resolver{Root: t.TempDir()}
	_, err := r.Resolve("   ")
	assert.Error(t, err)
}

func TestResolveAllowsRootItself(t *testing.T) {
	root := t.TempDir()
	r := Resolver{Root: root}
	resolved, err := r.Resolve(".")
	require.NoError(t, err)
	rootAbs, _ := filepath.Abs(root)
	assert.Equal(t, rootAbs, resolved)
}
