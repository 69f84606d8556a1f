package threadtree

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proftrace/dataplane/internal/profiledir"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func buildFixture(t *testing.T) *profiledir.Node {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "threads.json"),
		`{"tree":[],"spawning_callchains":{"20":["main","_start"]}}`)
	writeFile(t, filepath.Join(root, "cycles", "dirmeta.json"),
		`{"title":"CARM_INTEL_skylake"}`)
	writeFile(t, filepath.Join(root, "sources.json"), `{"libfoo.so":["0x10"]}`)
	writeFile(t, filepath.Join(root, "src.zip"), "")
	writeFile(t, filepath.Join(root, "src_index.json"), `{"a.c":"libfoo.so/0x10"}`)
	writeFile(t, filepath.Join(root, "roofline.csv"), "")
	writeFile(t, filepath.Join(root, "walltime", "10", "20", "offcpu.dat"),
		"1000000 2000000\n\n3000000 500000\n")
	writeFile(t, filepath.Join(root, "walltime", "10", "20", "dirmeta.json"),
		`{"sampled_period":5000000}`)

	n, err := profiledir.Load(root, nil)
	require.NoError(t, err)
	return n
}

func TestMaterializeEmitsBasicNodeFields(t *testing.T) {
	dir := buildFixture(t)
	m, err := New(dir)
	require.NoError(t, err)

	root := &Node{ProcessName: "init", PidTid: "10/20", StartTimeNs: 1_000_000_000, RuntimeNs: 50_000_000}
	b, err := m.Materialize(root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, "10_20", decoded["id"])
	assert.Equal(t, "10/20", decoded["pid_tid"])
	assert.Equal(t, "init", decoded["name"])
	assert.Equal(t, 1000.0, decoded["start_time"])
	assert.Equal(t, 5.0, decoded["sampled_time"])
	assert.Equal(t, []any{"main", "_start"}, decoded["start_callchain"])
}

func TestMaterializeStillRunningSentinelPassesThrough(t *testing.T) {
	dir := buildFixture(t)
	m, err := New(dir)
	require.NoError(t, err)

	root := &Node{ProcessName: "init", PidTid: "10/20", StartTimeNs: 0, RuntimeNs: StillRunning}
	b, err := m.Materialize(root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, -1.0, decoded["runtime"])
	// sampled_period is present in the fixture's dirmeta, so it still wins
	// even though runtime is the sentinel.
	assert.Equal(t, 5.0, decoded["sampled_time"])
}

func TestMaterializeSampledTimeFallsBackToRuntimeWhenDirmetaAbsent(t *testing.T) {
	dir := buildFixture(t)
	m, err := New(dir)
	require.NoError(t, err)

	// pid/tid 10/21 has no walltime/10/21/dirmeta.json.
	root := &Node{ProcessName: "work", PidTid: "10/21", StartTimeNs: 0, RuntimeNs: 7_000_000}
	b, err := m.Materialize(root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, 7.0, decoded["runtime"])
	assert.Equal(t, 7.0, decoded["sampled_time"])
}

func TestMaterializeReadsOffCPUIntervals(t *testing.T) {
	dir := buildFixture(t)
	m, err := New(dir)
	require.NoError(t, err)

	root := &Node{ProcessName: "init", PidTid: "10/20", StartTimeNs: 0, RuntimeNs: 1}
	b, err := m.Materialize(root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	offCPU := decoded["off_cpu"].([]any)
	require.Len(t, offCPU, 2)
	first := offCPU[0].([]any)
	assert.Equal(t, 1.0, first[0])
	assert.Equal(t, 2.0, first[1])
}

func TestMaterializeRootOnlyFieldsPresentOnRootButNotChildren(t *testing.T) {
	dir := buildFixture(t)
	m, err := New(dir)
	require.NoError(t, err)

	root := &Node{
		ProcessName: "init", PidTid: "10/20", StartTimeNs: 0, RuntimeNs: 1,
		Children: []*Node{{ProcessName: "work", PidTid: "10/21", StartTimeNs: 0, RuntimeNs: 1}},
	}
	b, err := m.Materialize(root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Contains(t, decoded, "general_metrics")
	assert.Contains(t, decoded, "src")
	assert.Contains(t, decoded, "src_index")
	assert.Contains(t, decoded, "roofline")

	children := decoded["children"].([]any)
	require.Len(t, children, 1)
	child := children[0].(map[string]any)
	assert.NotContains(t, child, "general_metrics")
	assert.NotContains(t, child, "src")
	assert.NotContains(t, child, "src_index")
	assert.NotContains(t, child, "roofline")
}

func TestMaterializeRooflineDetectionFromCARMMetricTitle(t *testing.T) {
	dir := buildFixture(t)
	m, err := New(dir)
	require.NoError(t, err)

	root := &Node{ProcessName: "init", PidTid: "10/20", StartTimeNs: 0, RuntimeNs: 1}
	b, err := m.Materialize(root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	roofline := decoded["roofline"].(map[string]any)
	assert.Equal(t, "Intel_x86", roofline["cpu_type"])
	aiKeys := roofline["ai_keys"].([]any)
	assert.Len(t, aiKeys, 1)
	instrKeys := roofline["instr_keys"].([]any)
	assert.Len(t, instrKeys, 8)
}

func TestMaterializeEmptyTreeReturnsEmptyObject(t *testing.T) {
	dir := buildFixture(t)
	m, err := New(dir)
	require.NoError(t, err)

	b, err := m.Materialize(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(b))
}

func TestMaterializeMetricsTableIncludesFlameGraphMarker(t *testing.T) {
	dir := buildFixture(t)
	m, err := New(dir)
	require.NoError(t, err)

	root := &Node{ProcessName: "init", PidTid: "10/20", StartTimeNs: 0, RuntimeNs: 1}
	b, err := m.Materialize(root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	metrics := decoded["metrics"].(map[string]any)
	cycles := metrics["cycles"].(map[string]any)
	assert.Equal(t, true, cycles["flame_graph"])
	assert.Equal(t, "CARM_INTEL_skylake", cycles["title"])
}
