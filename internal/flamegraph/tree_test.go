package flamegraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkfile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildUntimedWalksDirectoryTree(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "all")
	mkfile(t, filepath.Join(base, "dirmeta.json"), `{"hot_value":10,"cold_value":5,"hot_0x10":3,"cold_0x10":1}`)
	mkfile(t, filepath.Join(base, "child_a", "dirmeta.json"), `{"hot_value":4}`)
	mkfile(t, filepath.Join(base, "child_b", "dirmeta.json"), `{"cold_value":2}`)

	n, err := BuildUntimed(base)
	require.NoError(t, err)

	assert.Equal(t, "all", n.Name)
	assert.Equal(t, int64(15), n.Value)
	assert.Equal(t, Offsets{Hot: 3, Cold: 1}, n.Offsets["0x10"])
	require.Len(t, n.Children, 2)
	assert.Equal(t, "child_a", n.Children[0].Name)
	assert.Equal(t, int64(4), n.Children[0].Value)
	assert.Equal(t, "child_b", n.Children[1].Name)
	assert.Equal(t, int64(2), n.Children[1].Value)
}

func TestBuildUntimedMissingDirmetaIsSchemaError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(root, 0o755))
	_, err := BuildUntimed(root)
	assert.Error(t, err)
}

func TestBuildTimedFollowsFileOrderSkippingBlankLines(t *testing.T) {
	dir := t.TempDir()
	mkfile(t, filepath.Join(dir, "meta_all.json"), `{"name":"all","hot_value":10}`)
	mkfile(t, filepath.Join(dir, "all.dat"), "b\n\na\n")
	mkfile(t, filepath.Join(dir, "meta_a.json"), `{"name":"a","hot_value":1}`)
	mkfile(t, filepath.Join(dir, "a.dat"), "")
	mkfile(t, filepath.Join(dir, "meta_b.json"), `{"name":"b","hot_value":2}`)
	mkfile(t, filepath.Join(dir, "b.dat"), "")

	n, err := BuildTimed(dir)
	require.NoError(t, err)

	assert.Equal(t, "all", n.Name)
	require.Len(t, n.Children, 2)
	assert.Equal(t, "b", n.Children[0].Name)
	assert.Equal(t, "a", n.Children[1].Name)
}

func TestBuildTimedLeafWithMissingDatFileHasNoChildren(t *testing.T) {
	dir := t.TempDir()
	mkfile(t, filepath.Join(dir, "meta_all.json"), `{"name":"all"}`)
	// all.dat intentionally absent: a leaf with no children at all.

	n, err := BuildTimed(dir)
	require.NoError(t, err)
	assert.Empty(t, n.Children)
}
