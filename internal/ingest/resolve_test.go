package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proftrace/dataplane/internal/protocol"
	"github.com/proftrace/dataplane/internal/session"
	"github.com/proftrace/dataplane/internal/sinkmux"
)

func newResolveSession(t *testing.T) *session.Session {
	t.Helper()
	pool, _ := newPool(1)
	frontend := sinkmux.NewSink(-1, &memWriteCloser{})
	return session.New(pool, frontend, nil)
}

func TestResolveFrameUnknownDSODefaultsToIPHex(t *testing.T) {
	sess := newResolveSession(t)
	f := resolveFrame(sess, protocol.RawFrame{IP: 0xabc})
	assert.Equal(t, "[0xabc]", f.Key.DisplayName)
	assert.Equal(t, "", f.Key.DSOName)
	assert.Equal(t, "0xabc", f.Offset)
}

func TestResolveFrameSymWithoutDSOUsesRawName(t *testing.T) {
	sess := newResolveSession(t)
	f := resolveFrame(sess, protocol.RawFrame{IP: 0x1, Sym: &protocol.RawSym{Name: "main"}})
	assert.Equal(t, "main", f.Key.DisplayName)
}

func TestResolveFrameRegularDSORecordsOffsetAndUsesBracketedName(t *testing.T) {
	sess := newResolveSession(t)
	off := uint64(0x30)
	f := resolveFrame(sess, protocol.RawFrame{IP: 0x1000, DSO: str("/lib/libc.so.6"), DSOOff: &off})
	assert.Equal(t, "[/lib/libc.so.6]", f.Key.DisplayName)
	assert.Equal(t, "/lib/libc.so.6", f.Key.DSOName)
	assert.Equal(t, "0x30", f.Offset)
	assert.Contains(t, sess.SourcesTable()["/lib/libc.so.6"], "0x30")
}

func TestResolveFramePerfMapWithSymNameDemanglesDirectly(t *testing.T) {
	sess := newResolveSession(t)
	f := resolveFrame(sess, protocol.RawFrame{
		IP:  0x1,
		DSO: str("/tmp/perf-123.map"),
		Sym: &protocol.RawSym{Name: "_Z3foov"},
	})
	assert.Equal(t, "foo()", f.Key.DisplayName)
	assert.Equal(t, "/tmp/perf-123.map", f.Key.DSOName)
}

func TestResolveFramePerfMapWithoutSymConsultsJITMapResolver(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "perf-123.map")
	require.NoError(t, os.WriteFile(mapPath, []byte("1000 10 _Z3foov\n"), 0o644))

	sess := newResolveSession(t)
	f := resolveFrame(sess, protocol.RawFrame{IP: 0x1005, DSO: str(mapPath)})
	assert.Equal(t, "foo()", f.Key.DisplayName)
}

func TestResolveFramePerfMapMissEntryFallsBackToBracketedDSO(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "perf-999.map")
	require.NoError(t, os.WriteFile(mapPath, []byte("1000 10 _Z3foov\n"), 0o644))

	sess := newResolveSession(t)
	f := resolveFrame(sess, protocol.RawFrame{IP: 0xdead, DSO: str(mapPath)})
	assert.Equal(t, "["+mapPath+"]", f.Key.DisplayName)
}
