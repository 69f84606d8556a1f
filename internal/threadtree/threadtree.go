// Package threadtree materializes a pre-built thread/process tree (C8):
// it joins each node with its per-thread off-CPU intervals and spawn
// callchain, converts nanosecond timestamps to milliseconds, and serializes
// the result as the JSON object documented in spec.md §6 ("Emitted
// thread-tree node keys").
//
// The tree's nodes and parent/child relations are supplied pre-built
// (spec.md §1, explicitly out of scope here); this package only dresses
// each node with session-wide metadata and per-thread files it discovers
// under the session's walltime/<pid>/<tid>/ directory.
package threadtree

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/proftrace/dataplane/internal/errs"
	"github.com/proftrace/dataplane/internal/profiledir"
)

// StillRunning is the runtime sentinel passed through unconverted, meaning
// the thread/process had not exited when the trace was recorded.
const StillRunning int64 = -1

// Node is one pre-built thread-tree node: a process/thread name, its
// "<pid>/<tid>" identity, and the raw (nanosecond) start time and runtime
// the host recorded. The host supplies this tree pre-built (spec.md §1);
// the JSON tags exist only so cmd/flamegraphd can load one from a file for
// offline/CLI use, not because this package ever serializes a Node itself.
type Node struct {
	ProcessName string  `json:"process_name"`
	PidTid      string  `json:"pid_tid"` // "<pid>/<tid>"
	StartTimeNs int64   `json:"start_time_ns"`
	RuntimeNs   int64   `json:"runtime_ns"` // StillRunning if the thread had not exited
	Children    []*Node `json:"children,omitempty"`
}

// OffCPUInterval is one (start_ms, length_ms) region read from offcpu.dat.
type OffCPUInterval [2]float64

// emittedNode is built as a plain map, not a struct with omitempty tags:
// the root-only keys (general_metrics, src, src_index, roofline) must
// appear on the root even when their value is an empty object, while never
// appearing at all on non-root nodes — a distinction struct-tag omitempty
// can't express (it drops empty-but-present values too).
type emittedNode = map[string]any

// Materializer dresses a pre-built tree with the session-wide metadata C6
// discovered: per-metric dirmeta, sources/src_index, roofline detection,
// and the recorded spawn callchains.
type Materializer struct {
	dir        *profiledir.Node
	meta       *profiledir.GlobalMetadata
	callchains map[string]json.RawMessage
}

// New loads the session-wide metadata a materialization pass needs and
// returns a Materializer bound to dir.
func New(dir *profiledir.Node) (*Materializer, error) {
	meta, err := dir.LoadMetadata()
	if err != nil {
		return nil, err
	}
	callchains, err := dir.SpawningCallchains()
	if err != nil {
		return nil, err
	}
	return &Materializer{dir: dir, meta: meta, callchains: callchains}, nil
}

// Materialize serializes root (and its subtree) as the JSON thread-tree
// object spec.md §6 documents. A nil root (an empty session) serializes as
// "{}", matching the original's empty-tree behavior.
func (m *Materializer) Materialize(root *Node) ([]byte, error) {
	if root == nil {
		return json.Marshal(map[string]any{})
	}
	out, err := m.nodeToDict(root, true)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (m *Materializer) nodeToDict(n *Node, isRoot bool) (emittedNode, error) {
	pid, tid, err := splitPidTid(n.PidTid)
	if err != nil {
		return nil, err
	}

	startTime := toMs(n.StartTimeNs)
	var runtime any
	if n.RuntimeNs == StillRunning {
		runtime = StillRunning
	} else {
		runtime = toMs(n.RuntimeNs)
	}

	offCPU, err := m.readOffCPU(pid, tid)
	if err != nil {
		return nil, err
	}

	sampledTime, err := m.sampledTime(pid, tid, runtime)
	if err != nil {
		return nil, err
	}

	callchain, ok := m.callchains[tid]
	if !ok {
		callchain = json.RawMessage("[]")
	}

	children := make([]emittedNode, 0, len(n.Children))
	for _, child := range n.Children {
		childOut, err := m.nodeToDict(child, false)
		if err != nil {
			return nil, err
		}
		children = append(children, childOut)
	}

	out := emittedNode{
		"id":              strings.ReplaceAll(n.PidTid, "/", "_"),
		"start_time":      startTime,
		"runtime":         runtime,
		"sampled_time":    sampledTime,
		"name":            n.ProcessName,
		"pid_tid":         n.PidTid,
		"off_cpu":         offCPU,
		"start_callchain": callchain,
		"metrics":         m.meta.Metrics,
		"children":        children,
	}

	if isRoot {
		out["general_metrics"] = m.meta.GeneralMetrics
		out["src"] = rawOrNull(m.meta.Sources)
		out["src_index"] = rawOrNull(m.meta.SourceIndex)
		out["roofline"] = m.meta.Roofline
	}

	return out, nil
}

// rawOrNull turns an absent (nil) optional JSON artifact into an empty JSON
// object rather than an omitted key or a null, matching the original's
// self._sources = {} / self._source_index = {} defaults (present, just
// empty). A present artifact is passed through unparsed.
func rawOrNull(raw json.RawMessage) any {
	if raw == nil {
		return map[string]any{}
	}
	return raw
}

// sampledTime reads walltime/<pid>/<tid>/dirmeta.json's sampled_period
// (ns, converted to ms); when the file or key is absent it falls back to
// runtime, matching analysis.py's to_ms(None) -> None -> runtime chain.
func (m *Materializer) sampledTime(pid, tid string, runtime any) (any, error) {
	path := filepath.Join(m.dir.Root, "walltime", pid, tid, "dirmeta.json")
	b, err := os.ReadFile(path)
	if err != nil {
		return runtime, nil
	}
	var meta struct {
		SampledPeriod *int64 `json:"sampled_period"`
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, errs.NewSchemaError(path, "invalid JSON", err)
	}
	if meta.SampledPeriod == nil {
		return runtime, nil
	}
	return toMs(*meta.SampledPeriod), nil
}

// readOffCPU parses walltime/<pid>/<tid>/offcpu.dat: one "<a> <b>" ns pair
// per line, blank lines skipped. Returns an empty (non-nil) slice when the
// file is absent, so the emitted "off_cpu" key is always a JSON array.
func (m *Materializer) readOffCPU(pid, tid string) ([]OffCPUInterval, error) {
	path := filepath.Join(m.dir.Root, "walltime", pid, tid, "offcpu.dat")
	f, err := os.Open(path)
	if err != nil {
		return []OffCPUInterval{}, nil
	}
	defer f.Close()

	regions := []OffCPUInterval{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errs.NewSchemaError(path, "expected \"<a> <b>\" per line", nil)
		}
		a, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, errs.NewSchemaError(path, "non-integer offcpu value", err)
		}
		b, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, errs.NewSchemaError(path, "non-integer offcpu value", err)
		}
		regions = append(regions, OffCPUInterval{toMs(a), toMs(b)})
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.NewSchemaError(path, "read error", err)
	}
	return regions, nil
}

func toMs(ns int64) float64 {
	return float64(ns) / 1_000_000
}

func splitPidTid(pidTid string) (pid, tid string, err error) {
	parts := strings.SplitN(pidTid, "/", 2)
	if len(parts) != 2 {
		return "", "", errs.NewSchemaError(pidTid, "expected \"<pid>/<tid>\"", nil)
	}
	return parts[0], parts[1], nil
}
