package diag

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func saveAndRestoreState() func() {
	originalDebug := EnableDebug
	originalOutput := output
	originalFile := file
	return func() {
		EnableDebug = originalDebug
		output = originalOutput
		file = originalFile
	}
}

func TestEnabled(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "false"
	t.Setenv("DATAPLANE_DEBUG", "")
	assert.False(t, enabled())

	EnableDebug = "true"
	assert.True(t, enabled())

	EnableDebug = "false"
	t.Setenv("DATAPLANE_DEBUG", "1")
	assert.True(t, enabled())
}

func TestLog(t *testing.T) {
	defer saveAndRestoreState()()
	EnableDebug = "true"

	var buf bytes.Buffer
	SetOutput(&buf)

	LogJITMap("skipping malformed line %d in %s", 12, "perf-99.map")

	out := buf.String()
	assert.True(t, strings.Contains(out, "[diag:jitmap]"))
	assert.True(t, strings.Contains(out, "skipping malformed line 12 in perf-99.map"))
}

func TestLogDisabledIsSilent(t *testing.T) {
	defer saveAndRestoreState()()
	EnableDebug = "false"

	var buf bytes.Buffer
	SetOutput(&buf)

	LogIngest("should not appear")
	assert.Equal(t, 0, buf.Len())
}

func TestSetOutputNilDisables(t *testing.T) {
	defer saveAndRestoreState()()
	EnableDebug = "true"
	SetOutput(nil)

	// Must not panic with a nil writer.
	LogFilter("script returned %d booleans for %d frames", 2, 3)
}
