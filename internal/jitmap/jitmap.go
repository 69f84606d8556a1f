// Package jitmap is the lazy, incremental parser of perf-<pid>.map files
// (C2): it resolves instruction pointers to demangled symbol names without
// ever blocking on a write still in flight from the JIT that owns the file.
package jitmap

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/proftrace/dataplane/internal/diag"
)

var lineRe = regexp.MustCompile(`^([0-9a-fA-F]+)\s+([0-9a-fA-F]+)\s+(.+)$`)

// entry is one resolved JIT map line.
type entry struct {
	start  uint64
	length uint64
	name   string
}

// batch is a list of entries as read in one drain, sorted by start address.
type batch []entry

func (b batch) find(ip uint64) (string, bool) {
	// rightmost entry whose start <= ip
	idx := sort.Search(len(b), func(i int) bool { return b[i].start > ip })
	if idx == 0 {
		return "", false
	}
	e := b[idx-1]
	if e.start <= ip && ip < e.start+e.length {
		return e.name, true
	}
	return "", false
}

// mapState tracks one perf-<pid>.map file's resolver state.
type mapState struct {
	path    string
	file    *os.File
	offset  int64 // bytes already consumed from the file
	partial []byte // trailing bytes read but not yet newline-terminated
	lines   int
	batches []batch
	absent  bool // file never existed; permanently returns none
}

// Resolver tracks resolver state across map ids for the process lifetime of
// the live side. Not safe for concurrent use — it is owned by the single
// session driver, per the concurrency model.
type Resolver struct {
	maps    map[string]*mapState
	missing []string // map paths that never existed, for teardown frame 3
}

func New() *Resolver {
	return &Resolver{maps: make(map[string]*mapState)}
}

// Find resolves ip against the map identified by mapID, opening and reading
// mapPath as needed. It never blocks past whatever is currently flushed to
// disk.
func (r *Resolver) Find(mapPath, mapID string, ip uint64) (string, bool) {
	st, ok := r.maps[mapID]
	if !ok {
		st = &mapState{path: mapPath}
		r.maps[mapID] = st

		f, err := os.Open(mapPath)
		if err != nil {
			st.absent = true
			r.missing = append(r.missing, mapPath)
			return "", false
		}
		st.file = f
	}

	if st.absent {
		return "", false
	}

	for _, b := range st.batches {
		if name, ok := b.find(ip); ok {
			return name, true
		}
	}

	added := r.drain(st)
	if len(added) > 0 {
		sort.Slice(added, func(i, j int) bool { return added[i].start < added[j].start })
		st.batches = append(st.batches, added)
	}

	for _, e := range added {
		if e.start <= ip && ip < e.start+e.length {
			return e.name, true
		}
	}
	return "", false
}

// drain reads every line currently flushed to disk for st, without blocking
// on bytes the writer hasn't produced yet. A trailing partial line (no
// newline yet) is left unread for the next drain.
func (r *Resolver) drain(st *mapState) []entry {
	info, err := st.file.Stat()
	if err != nil {
		return nil
	}
	readable := info.Size() - st.offset
	if readable <= 0 {
		return nil
	}

	chunk := make([]byte, readable)
	n, err := st.file.ReadAt(chunk, st.offset)
	if n == 0 && err != nil && err != io.EOF {
		return nil
	}
	chunk = chunk[:n]
	st.offset += int64(n)

	data := append(st.partial, chunk...)
	st.partial = nil

	var added []entry
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		line := bytes.TrimRight(data[start:i], "\r")
		start = i + 1
		st.lines++
		if len(line) == 0 {
			continue
		}
		m := lineRe.FindSubmatch(line)
		if m == nil {
			diag.LogJITMap("%s line %d: malformed entry %q", st.path, st.lines, string(line))
			continue
		}
		addr, err1 := strconv.ParseUint(string(m[1]), 16, 64)
		length, err2 := strconv.ParseUint(string(m[2]), 16, 64)
		if err1 != nil || err2 != nil {
			diag.LogJITMap("%s line %d: bad address field %q", st.path, st.lines, string(line))
			continue
		}
		added = append(added, entry{start: addr, length: length, name: Demangle(string(m[3]))})
	}
	if start < len(data) {
		// Incomplete trailing line: carried over to the next drain rather
		// than consumed — the JIT may still be mid-write on it.
		st.partial = append([]byte(nil), data[start:]...)
	}
	return added
}

// MissingMaps returns the map paths that never existed at all, in the order
// they were first requested (teardown frame 3, §4.5).
func (r *Resolver) MissingMaps() []string {
	out := make([]string, len(r.missing))
	copy(out, r.missing)
	return out
}

// Close closes every opened map file. Called at trace-end.
func (r *Resolver) Close() error {
	var firstErr error
	for _, st := range r.maps {
		if st.file == nil {
			continue
		}
		if err := st.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", st.path, err)
		}
	}
	return firstErr
}
