// Package dispatch represents the "request dispatch surface" spec.md §6
// describes only as a boundary contract ("command dispatch (HTTP-style
// request routing)" is explicitly out of scope, spec.md §1). It exists here
// as a plain Go interface with one concrete implementation so the offline
// engine (C6-C9) has a single, testable entry point that cmd/flamegraphd's
// CLI front end can call — not a router, not a network server.
package dispatch

import (
	"encoding/json"
	"errors"

	"github.com/proftrace/dataplane/internal/callchainmap"
	"github.com/proftrace/dataplane/internal/flamegraph"
	"github.com/proftrace/dataplane/internal/profiledir"
	"github.com/proftrace/dataplane/internal/roofline"
	"github.com/proftrace/dataplane/internal/threadtree"
)

// ErrBadRequest is returned when a Request carries none, or more than one,
// of the shapes spec.md §6 names.
var ErrBadRequest = errors.New("dispatch: bad request")

// ErrNotFound is returned when a request names a real operation but the
// backing artifact is missing (spec.md §6, "A missing artifact yields
// not-found").
var ErrNotFound = errors.New("dispatch: not found")

// FlameGraphQuery is the {pid, tid, threshold} request shape.
type FlameGraphQuery struct {
	PID, TID  int
	Threshold float64
}

// Request is the union of request shapes spec.md §6 names. Exactly one of
// ThreadTree, GeneralAnalysis, FlameGraph, Callchain, or Src should be set;
// Dispatch rejects any other combination with ErrBadRequest.
type Request struct {
	ThreadTree      bool
	GeneralAnalysis string // analysis type, e.g. "roofline"
	FlameGraph      *FlameGraphQuery
	Callchain       []string // symbol codes to resolve
	Src             string   // source name (out of scope: always not-found)
}

func (r Request) shapeCount() int {
	n := 0
	if r.ThreadTree {
		n++
	}
	if r.GeneralAnalysis != "" {
		n++
	}
	if r.FlameGraph != nil {
		n++
	}
	if r.Callchain != nil {
		n++
	}
	if r.Src != "" {
		n++
	}
	return n
}

// Handler serves a Request, returning its JSON-serialized result.
type Handler interface {
	Dispatch(req Request) ([]byte, error)
}

// SessionHandler is the one concrete Handler, wired directly to a loaded
// session directory and a pre-built thread tree (spec.md §1: the thread
// tree's structure is supplied by the caller, not built here).
type SessionHandler struct {
	Dir        *profiledir.Node
	ThreadTree *threadtree.Node
	Threshold  float64 // not read by Dispatch: a {pid,tid,threshold} request always uses its own FlameGraphQuery.Threshold
}

// Dispatch implements Handler.
func (h *SessionHandler) Dispatch(req Request) ([]byte, error) {
	switch req.shapeCount() {
	case 0:
		return nil, ErrBadRequest
	default:
		if req.shapeCount() > 1 {
			return nil, ErrBadRequest
		}
	}

	switch {
	case req.ThreadTree:
		return h.dispatchThreadTree()
	case req.GeneralAnalysis != "":
		return h.dispatchGeneralAnalysis(req.GeneralAnalysis)
	case req.FlameGraph != nil:
		return h.dispatchFlameGraph(*req.FlameGraph)
	case req.Callchain != nil:
		return h.dispatchCallchain(req.Callchain)
	default: // req.Src != ""
		return nil, ErrNotFound
	}
}

func (h *SessionHandler) dispatchThreadTree() ([]byte, error) {
	m, err := threadtree.New(h.Dir)
	if err != nil {
		return nil, err
	}
	return m.Materialize(h.ThreadTree)
}

func (h *SessionHandler) dispatchGeneralAnalysis(analysisType string) ([]byte, error) {
	if analysisType != "roofline" {
		return nil, ErrNotFound
	}
	if h.Dir.RooflinePath == "" {
		return nil, ErrNotFound
	}
	model, ok := roofline.Load(h.Dir.RooflinePath)
	if !ok {
		return nil, ErrNotFound
	}
	return json.Marshal(model)
}

// dispatchFlameGraph builds the flame-graph pair for (pid, tid). Per the
// REDESIGN FLAGS open question on get_flame_graph's contract ("the builder
// always succeeds when inputs exist"), the only way Build can fail is a
// missing or malformed on-disk artifact — so any error here maps to
// not-found rather than propagating the builder's internal schema error.
func (h *SessionHandler) dispatchFlameGraph(q FlameGraphQuery) ([]byte, error) {
	graphs, err := flamegraph.Build(h.Dir, q.PID, q.TID, q.Threshold)
	if err != nil {
		return nil, ErrNotFound
	}
	return flamegraph.Marshal(graphs)
}

func (h *SessionHandler) dispatchCallchain(codes []string) ([]byte, error) {
	table, ok := h.Dir.Callchains()
	if !ok {
		return nil, ErrNotFound
	}
	return json.Marshal(callchainmap.Resolve(table, codes))
}
