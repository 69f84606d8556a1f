// Package diag is the diagnostic stream malformed records and other
// non-fatal anomalies are logged to (spec §7: "malformed single records are
// skipped" — but never silently).
package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug can be overridden at build time:
// go build -ldflags "-X github.com/proftrace/dataplane/internal/diag.EnableDebug=true"
var EnableDebug = "false"

var (
	mu     sync.Mutex
	output io.Writer
	file   *os.File
)

// SetOutput sets the diagnostic stream. Pass nil to disable.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// InitLogFile opens a timestamped diagnostic log file under os.TempDir and
// makes it the diagnostic stream. Returns the path so callers can surface it.
func InitLogFile() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	logDir := filepath.Join(os.TempDir(), "dataplane-diag-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("create diagnostic log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("diag-%s.log", time.Now().Format("2006-01-02T150405")))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("create diagnostic log file: %w", err)
	}

	file = f
	output = f
	return logPath, nil
}

// Close closes the log file opened by InitLogFile, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	output = nil
	return err
}

func enabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("DATAPLANE_DEBUG")
	return v == "1" || v == "true"
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return output
}

// Printf writes a diagnostic line, gated by enabled().
func Printf(format string, args ...interface{}) {
	if !enabled() {
		return
	}
	if w := writer(); w != nil {
		fmt.Fprintf(w, "[diag] "+format+"\n", args...)
	}
}

// Log writes a component-tagged diagnostic line. Used for the malformed-line
// and missing-artifact notices called out in spec §7.
func Log(component, format string, args ...interface{}) {
	if !enabled() {
		return
	}
	if w := writer(); w != nil {
		fmt.Fprintf(w, "[diag:%s] "+format+"\n", append([]interface{}{component}, args...)...)
	}
}

// LogJITMap logs a malformed or skipped perf-<pid>.map line.
func LogJITMap(format string, args ...interface{}) {
	Log("jitmap", format, args...)
}

// LogFilter logs callchain-filter script protocol notices.
func LogFilter(format string, args ...interface{}) {
	Log("filter", format, args...)
}

// LogIngest logs event-handler level diagnostics.
func LogIngest(format string, args ...interface{}) {
	Log("ingest", format, args...)
}
