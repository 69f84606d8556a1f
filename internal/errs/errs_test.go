package errs

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	underlying := stderrors.New("ambiguous node id")
	err := NewConfigError("node_id", "host-42", underlying)

	assert.True(t, stderrors.Is(err, underlying))
	assert.Equal(t, `config error for node_id="host-42": ambiguous node id`, err.Error())
}

func TestSchemaError(t *testing.T) {
	err := NewSchemaError("roofline.csv", "header row mismatch", nil)
	assert.Equal(t, "schema mismatch in roofline.csv: header row mismatch", err.Error())

	wrapped := NewSchemaError("flame_graph", "expected 2 elements, got 1", stderrors.New("boom"))
	assert.Contains(t, wrapped.Error(), "boom")
}

func TestScriptProtocolError(t *testing.T) {
	err := NewScriptProtocolError("result length mismatch", 5, 3)
	assert.Contains(t, err.Error(), "chain length 5")
	assert.Contains(t, err.Error(), "result length 3")
}

func TestSinkWriteError(t *testing.T) {
	underlying := stderrors.New("broken pipe")
	err := NewSinkWriteError(2, underlying)
	assert.True(t, stderrors.Is(err, underlying))
	assert.Contains(t, err.Error(), "sink 2 write failed")
}

func TestMultiError(t *testing.T) {
	e1 := stderrors.New("one")
	e2 := stderrors.New("two")

	merged := NewMultiError([]error{nil, e1, nil, e2})
	assert.Len(t, merged.Errors, 2)
	assert.Contains(t, merged.Error(), "2 errors")

	single := NewMultiError([]error{e1})
	assert.Equal(t, "one", single.Error())

	assert.Nil(t, NewMultiError(nil))
}

func TestErrNotAvailableIsSentinel(t *testing.T) {
	wrapped := stderrors.Join(ErrNotAvailable)
	assert.True(t, stderrors.Is(wrapped, ErrNotAvailable))
}
