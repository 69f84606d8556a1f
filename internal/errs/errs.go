// Package errs implements the error taxonomy from spec §7: configuration
// errors, schema mismatches, user-script protocol violations, and mandatory
// sink write failures are all fatal for the operation they occur in. Missing
// optional artifacts are never errors — callers check ErrNotAvailable instead.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error per spec §7.
type Kind string

const (
	KindConfig          Kind = "config"
	KindSchema          Kind = "schema"
	KindScriptProtocol  Kind = "script_protocol"
	KindSinkWrite       Kind = "sink_write"
	KindMalformedRecord Kind = "malformed_record"
)

// ErrNotAvailable is the sentinel returned for missing optional artifacts
// (roofline data, source archive, callchains.json, source-by-name lookups).
// It is never wrapped into a structural error — §7 requires optional misses
// to degrade to none/empty, not propagate as failures.
var ErrNotAvailable = errors.New("artifact not available")

// ConfigError reports a configuration problem: a sink-transport descriptor
// that is malformed or whose endpoints cannot be opened or greeted with the
// connect handshake, a session directory or required session file that is missing
// or unreadable, or a filter-script interpreter that fails to start. Fatal
// for the request/process that encounters it.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Underlying: err, Timestamp: time.Now()}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for %s=%q: %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// SchemaError reports a structural schema mismatch: wrong roofline.csv
// headers, a flame-graph builder producing other than two elements per
// metric, or a frontend protocol frame that doesn't validate. Fails the
// whole operation per §7.
type SchemaError struct {
	Subject    string
	Reason     string
	Underlying error
	Timestamp  time.Time
}

func NewSchemaError(subject, reason string, err error) *SchemaError {
	return &SchemaError{Subject: subject, Reason: reason, Underlying: err, Timestamp: time.Now()}
}

func (e *SchemaError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("schema mismatch in %s: %s: %v", e.Subject, e.Reason, e.Underlying)
	}
	return fmt.Sprintf("schema mismatch in %s: %s", e.Subject, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Underlying }

// ScriptProtocolError reports a user-supplied filter script violating the
// documented contract (non-list return, wrong length, non-boolean element).
// Fails the whole live session per §7.
type ScriptProtocolError struct {
	Reason       string
	ChainLength  int
	ResultLength int
	Timestamp    time.Time
}

func NewScriptProtocolError(reason string, chainLen, resultLen int) *ScriptProtocolError {
	return &ScriptProtocolError{Reason: reason, ChainLength: chainLen, ResultLength: resultLen, Timestamp: time.Now()}
}

func (e *ScriptProtocolError) Error() string {
	return fmt.Sprintf("callchain filter script protocol violation: %s (chain length %d, result length %d)",
		e.Reason, e.ChainLength, e.ResultLength)
}

// SinkWriteError reports a write/flush failure against a mandatory sink.
// Fatal for the live session per §7 ("sinks are mandatory").
type SinkWriteError struct {
	SinkIndex  int
	Underlying error
	Timestamp  time.Time
}

func NewSinkWriteError(sinkIndex int, err error) *SinkWriteError {
	return &SinkWriteError{SinkIndex: sinkIndex, Underlying: err, Timestamp: time.Now()}
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink %d write failed: %v", e.SinkIndex, e.Underlying)
}

func (e *SinkWriteError) Unwrap() error { return e.Underlying }

// MultiError aggregates independent errors, e.g. from the teardown fan-out
// across sinks (§5).
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

func (e *MultiError) Unwrap() []error { return e.Errors }
