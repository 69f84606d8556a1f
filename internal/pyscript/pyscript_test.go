package pyscript

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proftrace/dataplane/internal/chainfilter"
	"github.com/proftrace/dataplane/internal/symtab"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not found in PATH")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filter.py")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRunsSetupOnceAndProcessesEachChain(t *testing.T) {
	requirePython(t)

	script := writeScript(t, `
calls = []

def setup():
    calls.append("setup")

def process(chain):
    return [name == "keep" for name, dso in chain]
`)

	loader := &Loader{}
	fn, closeFn, err := loader.Load(script)
	require.NoError(t, err)
	defer closeFn()

	frame := func(name string) chainfilter.Frame {
		return chainfilter.Frame{Key: symtab.Key{DisplayName: name}}
	}

	result, err := fn([]chainfilter.Frame{frame("keep"), frame("drop")})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, result)

	result, err = fn([]chainfilter.Frame{frame("drop"), frame("keep")})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, result)
}

func TestApplyFailsWhenInterpreterCrashesOnMissingScript(t *testing.T) {
	requirePython(t)

	loader := &Loader{}
	fn, closeFn, err := loader.Load(filepath.Join(t.TempDir(), "does-not-exist.py"))
	require.NoError(t, err)
	defer closeFn()

	_, err = fn(nil)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownInterpreter(t *testing.T) {
	loader := &Loader{Interpreter: "definitely-not-a-real-interpreter"}
	_, _, err := loader.Load(filepath.Join(t.TempDir(), "filter.py"))
	require.Error(t, err)
}
