// Package transport implements the sink-transport bootstrap spec.md §6
// describes: parsing the space-separated descriptor naming the frontend
// stream and the fixed sink pool, opening each (tcp or pipe), and running
// the "connect" handshake on every one of them.
package transport

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/proftrace/dataplane/internal/errs"
)

// EnvVar is the name of the environment variable cmd/dataplaned reads its
// sink-transport descriptor from. spec.md names no concrete variable;
// DATAPLANE_SINKS is this module's choice, recorded here rather than left
// implicit.
const EnvVar = "DATAPLANE_SINKS"

// connectToken is the literal ASCII handshake every opened stream receives
// before any JSON frame.
const connectToken = "connect"

// Bootstrap is the frontend stream and fixed sink pool a descriptor named.
type Bootstrap struct {
	Frontend io.ReadWriteCloser
	Sinks    []io.WriteCloser
}

// Close closes the frontend and every sink, collecting any errors.
func (b *Bootstrap) Close() error {
	errList := []error{b.Frontend.Close()}
	for _, s := range b.Sinks {
		errList = append(errList, s.Close())
	}
	if me := errs.NewMultiError(errList); me != nil {
		return me
	}
	return nil
}

// Parse reads and opens the descriptor in spec: "<tcp|pipe> <frontend> <sink>...".
// Token 0 selects the transport; token 1 is the frontend descriptor; every
// token after that is one sink. Every opened stream is handshaken before
// Parse returns.
func Parse(spec string) (*Bootstrap, error) {
	tokens := strings.Fields(spec)
	if len(tokens) < 2 {
		return nil, errs.NewConfigError(EnvVar, spec, fmt.Errorf("expected a transport and a frontend token, got %d fields", len(tokens)))
	}

	kind := tokens[0]
	if kind != "tcp" && kind != "pipe" {
		return nil, errs.NewConfigError(EnvVar, spec, fmt.Errorf("unknown transport %q, want \"tcp\" or \"pipe\"", kind))
	}

	frontend, err := openFrontend(kind, tokens[1])
	if err != nil {
		return nil, errs.NewConfigError(EnvVar, tokens[1], err)
	}
	if err := handshake(frontend); err != nil {
		return nil, err
	}

	sinks := make([]io.WriteCloser, 0, len(tokens)-2)
	for _, tok := range tokens[2:] {
		sink, err := openSink(kind, tok)
		if err != nil {
			return nil, errs.NewConfigError(EnvVar, tok, err)
		}
		if err := handshake(sink); err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	return &Bootstrap{Frontend: frontend, Sinks: sinks}, nil
}

func handshake(w io.Writer) error {
	if _, err := w.Write([]byte(connectToken)); err != nil {
		return errs.NewConfigError(EnvVar, connectToken, fmt.Errorf("handshake write: %w", err))
	}
	return nil
}

func openFrontend(kind, token string) (io.ReadWriteCloser, error) {
	switch kind {
	case "tcp":
		return net.Dial("tcp", token)
	default: // "pipe"
		r, w, err := openPipeFiles(token)
		if err != nil {
			return nil, err
		}
		return &pipeStream{r: r, w: w}, nil
	}
}

// openSink opens a sink descriptor. For pipe sinks only the write side is
// used — the read fd in the pair is the convention shared with the
// frontend descriptor, but sinks are write-only streams (spec.md §6).
func openSink(kind, token string) (io.WriteCloser, error) {
	switch kind {
	case "tcp":
		return net.Dial("tcp", token)
	default: // "pipe"
		_, w, err := openPipeFiles(token)
		return w, err
	}
}

// pipeStream joins a read fd and a write fd opened as one file-descriptor
// pair into a single bidirectional stream.
type pipeStream struct {
	r *os.File
	w *os.File
}

func (p *pipeStream) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeStream) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeStream) Close() error {
	errList := []error{p.r.Close(), p.w.Close()}
	if me := errs.NewMultiError(errList); me != nil {
		return me
	}
	return nil
}

// openPipeFiles parses a "<read_fd>_<write_fd>" token and wraps both
// descriptors as *os.File.
func openPipeFiles(token string) (r, w *os.File, err error) {
	parts := strings.SplitN(token, "_", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("expected \"<read_fd>_<write_fd>\", got %q", token)
	}
	readFD, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("non-integer read fd %q: %w", parts[0], err)
	}
	writeFD, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("non-integer write fd %q: %w", parts[1], err)
	}
	return os.NewFile(uintptr(readFD), "pipe-r"), os.NewFile(uintptr(writeFD), "pipe-w"), nil
}
