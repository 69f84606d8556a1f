// Package session holds the single owning struct the live ingestion side is
// re-architected around (Design Notes, "Global mutable state"): the symbol
// interner, JIT map resolver, dso-offsets table, sink pool, and the
// set-once overall event type all live here instead of as process globals.
//
// A Session is not safe for concurrent use. It is driven synchronously by
// one caller, matching the single-threaded cooperative scheduling model —
// this is stated, not defended with a mutex.
package session

import (
	"sort"

	"github.com/proftrace/dataplane/internal/chainfilter"
	"github.com/proftrace/dataplane/internal/jitmap"
	"github.com/proftrace/dataplane/internal/sinkmux"
	"github.com/proftrace/dataplane/internal/symtab"
)

// Session is the single owning value the event handler (C5) is driven
// through for the lifetime of one trace.
type Session struct {
	Symbols  *symtab.Interner
	JITMaps  *jitmap.Resolver
	Filter   *chainfilter.Filter
	Sinks    *sinkmux.Mux
	Frontend *sinkmux.Sink

	dsoOffsets map[string]map[string]struct{} // dso name -> set of hex offsets

	overallEventType string
	eventTypeSet     bool

	spawningCallchains map[string][]chainfilter.Frame // keyed by "<pid>/<tid>"
}

// New constructs a Session around an already-assembled sink pool and
// frontend stream. filter may be nil, meaning no filtering (pass-through).
func New(pool []*sinkmux.Sink, frontend *sinkmux.Sink, filter *chainfilter.Filter) *Session {
	if filter == nil {
		filter = chainfilter.New(chainfilter.ModeNone, nil, false)
	}
	return &Session{
		Symbols:            symtab.New(),
		JITMaps:            jitmap.New(),
		Filter:             filter,
		Sinks:              sinkmux.New(pool),
		Frontend:           frontend,
		dsoOffsets:         make(map[string]map[string]struct{}),
		spawningCallchains: make(map[string][]chainfilter.Frame),
	}
}

// RecordDSOOffset adds offsetHex to the set of offsets seen for dso, for
// teardown frame 2 ("sources").
func (s *Session) RecordDSOOffset(dso, offsetHex string) {
	set, ok := s.dsoOffsets[dso]
	if !ok {
		set = make(map[string]struct{})
		s.dsoOffsets[dso] = set
	}
	set[offsetHex] = struct{}{}
}

// SourcesTable returns dso path -> sorted unique hex offsets, for teardown
// frame 2.
func (s *Session) SourcesTable() map[string][]string {
	out := make(map[string][]string, len(s.dsoOffsets))
	for dso, set := range s.dsoOffsets {
		offsets := make([]string, 0, len(set))
		for off := range set {
			offsets = append(offsets, off)
		}
		sort.Strings(offsets)
		out[dso] = offsets
	}
	return out
}

// ResolveOverallEventType sets the overall event type the first time it's
// called (§4.5: "set once, on first event"); subsequent calls are no-ops
// and return the value decided on the first call.
func (s *Session) ResolveOverallEventType(parsedName string) string {
	if s.eventTypeSet {
		return s.overallEventType
	}
	s.eventTypeSet = true
	if parsedName == "task-clock" || parsedName == "offcpu-time" {
		s.overallEventType = "walltime"
	} else {
		s.overallEventType = parsedName
	}
	return s.overallEventType
}

// SetSpawningCallchain records the callchain a (pid,tid) was spawned with.
// The thread-tree materializer does not read this table: its
// "start_callchain" field comes from threads.json's spawning_callchains.
func (s *Session) SetSpawningCallchain(pidTid string, chain []chainfilter.Frame) {
	s.spawningCallchains[pidTid] = chain
}

// SpawningCallchain returns the recorded spawn callchain for pidTid, or nil
// if none was recorded.
func (s *Session) SpawningCallchain(pidTid string) []chainfilter.Frame {
	return s.spawningCallchains[pidTid]
}
