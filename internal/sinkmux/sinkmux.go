// Package sinkmux is the round-robin (pid,tid)→sink assignment (C4): a
// fixed ordered pool of sinks is handed out to newly-seen (pid,tid) pairs in
// turn, and every subsequent event for that pair goes to the same sink.
package sinkmux

import (
	"bufio"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/proftrace/dataplane/internal/errs"
)

// stopFrame is the control frame that terminates a sink at shutdown.
const stopFrame = "<STOP>\n"

// Sink is one downstream stream — a TCP connection or a pipe file
// descriptor, both of which satisfy io.WriteCloser.
type Sink struct {
	w       *bufio.Writer
	closer  io.Closer
	index   int
	stopped bool
}

// NewSink wraps a raw connection/file as a pool sink with its pool index.
func NewSink(index int, conn io.WriteCloser) *Sink {
	return &Sink{w: bufio.NewWriter(conn), closer: conn, index: index}
}

// WriteLine writes line followed by a newline and flushes immediately — the
// multiplexer never buffers across events, per §4.4.
func (s *Sink) WriteLine(line []byte) error {
	if _, err := s.w.Write(line); err != nil {
		return errs.NewSinkWriteError(s.index, err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return errs.NewSinkWriteError(s.index, err)
	}
	if err := s.w.Flush(); err != nil {
		return errs.NewSinkWriteError(s.index, err)
	}
	return nil
}

// Stop writes the <STOP> control frame and closes the underlying
// connection. Idempotent.
func (s *Sink) Stop() error {
	if s.stopped {
		return nil
	}
	s.stopped = true
	if _, err := s.w.WriteString(stopFrame); err != nil {
		_ = s.closer.Close()
		return errs.NewSinkWriteError(s.index, err)
	}
	if err := s.w.Flush(); err != nil {
		_ = s.closer.Close()
		return errs.NewSinkWriteError(s.index, err)
	}
	return s.closer.Close()
}

// PidTid identifies a (process-id, thread-id) pair.
type PidTid struct {
	PID int
	TID int
}

// Mux assigns each newly-seen (pid,tid) pair the next sink in round-robin
// order and remembers the assignment for subsequent events. Not safe for
// concurrent use — owned by the single session driver.
type Mux struct {
	pool     []*Sink
	cursor   int
	assigned map[PidTid]*Sink
}

func New(pool []*Sink) *Mux {
	return &Mux{pool: pool, assigned: make(map[PidTid]*Sink)}
}

// SinkFor returns the sink assigned to (pid,tid), assigning one from the
// pool in round-robin order on first sight.
func (m *Mux) SinkFor(key PidTid) *Sink {
	if s, ok := m.assigned[key]; ok {
		return s
	}
	s := m.pool[m.cursor%len(m.pool)]
	m.cursor++
	m.assigned[key] = s
	return s
}

// StopAll sends the <STOP> frame to and closes every sink in the pool,
// regardless of whether it was ever assigned an event. Sinks are flushed
// concurrently (§5: ordering across sinks is never guaranteed, only within
// a single (pid,tid) stream), so one slow or failing sink never delays the
// others.
func (m *Mux) StopAll() error {
	errList := make([]error, len(m.pool))
	var g errgroup.Group
	for i, s := range m.pool {
		i, s := i, s
		g.Go(func() error {
			errList[i] = s.Stop()
			return nil
		})
	}
	_ = g.Wait()
	if me := errs.NewMultiError(errList); me != nil {
		return me
	}
	return nil
}
