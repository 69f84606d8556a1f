package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternBijection(t *testing.T) {
	in := New()

	a := Key{DisplayName: "A"}
	b := Key{DisplayName: "B"}

	codeA := in.Intern(a)
	codeB := in.Intern(b)
	assert.NotEqual(t, codeA, codeB)
	assert.Equal(t, codeA, in.Intern(a))
	assert.Equal(t, codeB, in.Intern(b))
}

func TestInternSequenceS1(t *testing.T) {
	in := New()
	codeA := in.Intern(Key{DisplayName: "A"})
	codeB := in.Intern(Key{DisplayName: "B"})
	codeA2 := in.Intern(Key{DisplayName: "A"})
	codeC := in.Intern(Key{DisplayName: "C"})

	assert.Equal(t, "a", codeA)
	assert.Equal(t, "b", codeB)
	assert.Equal(t, "a", codeA2)
	assert.Equal(t, "c", codeC)

	reverse := in.ReverseTable()
	require.Len(t, reverse, 3)
	assert.Equal(t, Key{DisplayName: "A"}, reverse["a"])
	assert.Equal(t, Key{DisplayName: "B"}, reverse["b"])
	assert.Equal(t, Key{DisplayName: "C"}, reverse["c"])
}

func TestCodeGenEmissionOrder(t *testing.T) {
	gen := newCodeGen()

	var last string
	for i := 1; i <= 125; i++ {
		last = gen.next()
		switch i {
		case 1:
			assert.Equal(t, "a", last)
		case 26:
			assert.Equal(t, "z", last)
		case 62:
			assert.Equal(t, "9", last)
		case 63:
			assert.Equal(t, "9a", last)
		case 124:
			assert.Equal(t, "99", last)
		case 125:
			assert.Equal(t, "99a", last)
		}
	}
}

func TestLenTracksDistinctKeys(t *testing.T) {
	in := New()
	in.Intern(Key{DisplayName: "A"})
	in.Intern(Key{DisplayName: "A"})
	in.Intern(Key{DisplayName: "B"})
	assert.Equal(t, 2, in.Len())
}
