// Package ingest is the event handler (C5): the entry point for each raw
// event, orchestrating symbol resolution (C1, C2), filtering (C3), and
// sink multiplexing (C4), and emitting framed JSON records.
package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/proftrace/dataplane/internal/chainfilter"
	"github.com/proftrace/dataplane/internal/protocol"
	"github.com/proftrace/dataplane/internal/session"
	"github.com/proftrace/dataplane/internal/sinkmux"
)

var primaryEventNameRe = regexp.MustCompile(`^([^/]+)`)

// Handler drives one Session through the events a trace produces.
type Handler struct {
	sess *session.Session
}

func New(sess *session.Session) *Handler {
	return &Handler{sess: sess}
}

// resolveAndFilter resolves every raw frame and runs the active filter,
// returning the frames in raw (unreversed) order.
func (h *Handler) resolveAndFilter(raw []protocol.RawFrame) ([]chainfilter.Frame, error) {
	resolved := make([]chainfilter.Frame, len(raw))
	for i, rf := range raw {
		resolved[i] = resolveFrame(h.sess, rf)
	}
	return h.sess.Filter.Apply(resolved)
}

func internChain(sess *session.Session, chain []chainfilter.Frame) []protocol.EmittedChainFrame {
	out := make([]protocol.EmittedChainFrame, len(chain))
	for i, f := range chain {
		out[i] = protocol.EmittedChainFrame{Code: sess.Symbols.Intern(f.Key), Offset: f.Offset}
	}
	return out
}

func reversed(chain []protocol.EmittedChainFrame) []protocol.EmittedChainFrame {
	out := make([]protocol.EmittedChainFrame, len(chain))
	for i, f := range chain {
		out[len(chain)-1-i] = f
	}
	return out
}

// HandleSample processes a sample event (§4.5).
func (h *Handler) HandleSample(ev protocol.SampleEvent) error {
	parsed := primaryEventNameRe.FindString(ev.EvName)
	// ResolveOverallEventType's return value is not emitted here — it only
	// sets (once) the session-wide overall type. The record's event_type is
	// always this sample's own parsed name.
	h.sess.ResolveOverallEventType(parsed)

	filtered, err := h.resolveAndFilter(ev.Chain)
	if err != nil {
		return err
	}
	emitted := internChain(h.sess, filtered)
	emitted = reversed(emitted)

	rec := protocol.SampleRecord{
		Type: "sample",
		Data: protocol.SampleRecordData{
			EventType: parsed,
			PID:       ev.Sample.PID,
			TID:       ev.Sample.TID,
			Time:      ev.Sample.Time,
			Period:    ev.Sample.Period,
			Callchain: emitted,
		},
	}

	sink := h.sess.Sinks.SinkFor(sinkmux.PidTid{PID: ev.Sample.PID, TID: ev.Sample.TID})
	return writeJSONLine(sink, rec)
}

// HandleSyscallReturn processes a syscall-return event (§4.5). A zero
// return value is skipped entirely.
func (h *Handler) HandleSyscallReturn(retValue int64, raw []protocol.RawFrame) error {
	if retValue == 0 {
		return nil
	}

	filtered, err := h.resolveAndFilter(raw)
	if err != nil {
		return err
	}
	emitted := internChain(h.sess, filtered)

	rec := protocol.SyscallReturnRecord{
		Type: "syscall",
		Data: protocol.SyscallReturnData{RetValue: retValue, Callchain: emitted},
	}
	sink := h.sess.Sinks.SinkFor(sinkmux.PidTid{PID: 0, TID: 0})
	return writeJSONLine(sink, rec)
}

// HandleSyscallTree emits a process-tree lifecycle event (§4.5).
func (h *Handler) HandleSyscallTree(subtype protocol.SyscallTreeSubtype, comm string, pid, tid int, time, retValue int64) error {
	rec := protocol.SyscallMetaRecord{
		Type: "syscall_meta",
		Data: protocol.SyscallMetaData{
			Subtype: subtype, Comm: comm, PID: pid, TID: tid, Time: time, RetValue: retValue,
		},
	}
	sink := h.sess.Sinks.SinkFor(sinkmux.PidTid{PID: 0, TID: 0})
	return writeJSONLine(sink, rec)
}

// Teardown emits the frontend teardown frames and stops every sink,
// including the frontend stream (§4.5).
func (h *Handler) Teardown() error {
	reverseTable := h.sess.Symbols.ReverseTable()
	callchains := make(map[string][2]string, len(reverseTable))
	for code, key := range reverseTable {
		callchains[code] = [2]string{key.DisplayName, key.DSOName}
	}
	if err := writeJSONLine(h.sess.Frontend, protocol.CallchainsFrame{Type: "callchains", Data: callchains}); err != nil {
		return err
	}

	if err := writeJSONLine(h.sess.Frontend, protocol.SourcesFrame{Type: "sources", Data: h.sess.SourcesTable()}); err != nil {
		return err
	}

	missing := h.sess.JITMaps.MissingMaps()
	if err := writeJSONLine(h.sess.Frontend, protocol.MissingSymbolMapsFrame{Type: "missing_symbol_maps", Data: missing}); err != nil {
		return err
	}

	if err := h.sess.Frontend.Stop(); err != nil {
		return err
	}

	if err := h.sess.JITMaps.Close(); err != nil {
		return err
	}

	return h.sess.Sinks.StopAll()
}

func writeJSONLine(sink *sinkmux.Sink, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return sink.WriteLine(b)
}
