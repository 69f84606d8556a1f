package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/proftrace/dataplane/internal/protocol"
)

// EventKind tags a raw Event with which Handler method it should be
// dispatched to.
type EventKind string

const (
	EventSample        EventKind = "sample"
	EventSyscallReturn EventKind = "syscall_return"
	EventSyscallTree   EventKind = "syscall_tree"
)

// Event is one raw event drawn from an EventSource.
type Event struct {
	Kind EventKind

	Sample protocol.SampleEvent

	SyscallRetValue int64
	SyscallChain    []protocol.RawFrame

	TreeSubtype  protocol.SyscallTreeSubtype
	TreeComm     string
	TreePID      int
	TreeTID      int
	TreeTime     int64
	TreeRetValue int64
}

// EventSource supplies the live side's raw events one at a time. The real
// perf-sample capture path is an external collaborator driven by the
// tracing host (spec.md §1) and is never reimplemented here; EventSource is
// the seam a real integration plugs into. Next returns ok=false once the
// source is exhausted — the point at which Run tears the session down,
// standing in for the host's trace-end hook (§5).
type EventSource interface {
	Next() (Event, bool, error)
}

// Run drives h with every event src produces, in order, then tears down.
func (h *Handler) Run(src EventSource) error {
	for {
		ev, ok, err := src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := h.dispatch(ev); err != nil {
			return err
		}
	}
	return h.Teardown()
}

func (h *Handler) dispatch(ev Event) error {
	switch ev.Kind {
	case EventSample:
		return h.HandleSample(ev.Sample)
	case EventSyscallReturn:
		return h.HandleSyscallReturn(ev.SyscallRetValue, ev.SyscallChain)
	case EventSyscallTree:
		return h.HandleSyscallTree(ev.TreeSubtype, ev.TreeComm, ev.TreePID, ev.TreeTID, ev.TreeTime, ev.TreeRetValue)
	default:
		return fmt.Errorf("ingest: unknown event kind %q", ev.Kind)
	}
}

// jsonEnvelope is the wire shape of one line from a JSONLineSource: a kind
// tag plus whichever payload field that kind uses.
type jsonEnvelope struct {
	Kind EventKind `json:"kind"`

	Sample *protocol.SampleEvent `json:"sample,omitempty"`

	SyscallRetValue *int64            `json:"syscall_ret_value,omitempty"`
	SyscallChain    []protocol.RawFrame `json:"syscall_chain,omitempty"`

	TreeSubtype  protocol.SyscallTreeSubtype `json:"tree_subtype,omitempty"`
	TreeComm     string                      `json:"tree_comm,omitempty"`
	TreePID      int                         `json:"tree_pid,omitempty"`
	TreeTID      int                         `json:"tree_tid,omitempty"`
	TreeTime     int64                       `json:"tree_time,omitempty"`
	TreeRetValue int64                       `json:"tree_ret_value,omitempty"`
}

// JSONLineSource is the in-repo EventSource: it replays one JSON-encoded
// jsonEnvelope per line until EOF. cmd/dataplaned wires this to stdin for
// test/replay use (spec.md §1's "stdin-framed test events"); a real
// integration supplies its own EventSource instead.
type JSONLineSource struct {
	scanner *bufio.Scanner
}

// NewJSONLineSource wraps r as a line-delimited EventSource.
func NewJSONLineSource(r io.Reader) *JSONLineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &JSONLineSource{scanner: scanner}
}

func (s *JSONLineSource) Next() (Event, bool, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return Event{}, false, fmt.Errorf("read event line: %w", err)
		}
		return Event{}, false, nil
	}

	line := s.scanner.Bytes()
	if len(line) == 0 {
		return s.Next()
	}

	var env jsonEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Event{}, false, fmt.Errorf("parse event line: %w", err)
	}

	ev := Event{Kind: env.Kind}
	switch env.Kind {
	case EventSample:
		if env.Sample == nil {
			return Event{}, false, fmt.Errorf("parse event line: sample event missing \"sample\"")
		}
		ev.Sample = *env.Sample
	case EventSyscallReturn:
		if env.SyscallRetValue == nil {
			return Event{}, false, fmt.Errorf("parse event line: syscall_return event missing \"syscall_ret_value\"")
		}
		ev.SyscallRetValue = *env.SyscallRetValue
		ev.SyscallChain = env.SyscallChain
	case EventSyscallTree:
		ev.TreeSubtype = env.TreeSubtype
		ev.TreeComm = env.TreeComm
		ev.TreePID = env.TreePID
		ev.TreeTID = env.TreeTID
		ev.TreeTime = env.TreeTime
		ev.TreeRetValue = env.TreeRetValue
	default:
		return Event{}, false, fmt.Errorf("parse event line: unknown kind %q", env.Kind)
	}
	return ev, true, nil
}
