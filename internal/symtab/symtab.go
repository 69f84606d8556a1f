// Package symtab is the bijection between (display_name, dso_name) pairs and
// short opaque codes (C1). Codes are generated by a saturating-carry counter
// over a 62-character alphabet; once assigned, a code is stable for the
// process lifetime.
package symtab

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Key identifies a resolved symbol: the pair two callchain frames share a
// code for when both fields are equal.
type Key struct {
	DisplayName string
	DSOName     string
}

// codeGen produces the monotonic code sequence a, b, …, 9, 9a, 9b, …, 99,
// 99a, … Digit 0 is least significant. On overflow the overflowing digit
// saturates at alphabet[len-1] instead of wrapping to 0, and the carry moves
// to the next digit, appending one if none exists yet. This saturation is
// load-bearing: it is what keeps the sequence the same length as the
// original implementation's output for any given number of interned
// symbols, and tests pin specific emissions to catch a regression.
type codeGen struct {
	digits []int
}

func newCodeGen() *codeGen {
	return &codeGen{digits: []int{0}}
}

func (g *codeGen) next() string {
	buf := make([]byte, len(g.digits))
	for i, d := range g.digits {
		buf[i] = alphabet[d]
	}

	n := len(g.digits)
	for i := 0; i < n; i++ {
		g.digits[i]++
		if g.digits[i] < len(alphabet) {
			break
		}
		g.digits[i] = len(alphabet) - 1
		if i == len(g.digits)-1 {
			g.digits = append(g.digits, 0)
		}
	}

	return string(buf)
}

// Interner is the symbol dictionary. The zero value is not usable; use New.
type Interner struct {
	codes   map[Key]string
	reverse map[string]Key
	gen     *codeGen
}

func New() *Interner {
	return &Interner{
		codes:   make(map[Key]string),
		reverse: make(map[string]Key),
		gen:     newCodeGen(),
	}
}

// Intern returns the code for key, allocating one on first use.
func (in *Interner) Intern(key Key) string {
	if code, ok := in.codes[key]; ok {
		return code
	}
	code := in.gen.next()
	in.codes[key] = code
	in.reverse[code] = key
	return code
}

// ReverseTable returns the code→key table as it stands, for teardown
// emission (§4.5 frame 1, "callchains"). The returned map is a copy; callers
// may not assume it stays live past symbol table mutation.
func (in *Interner) ReverseTable() map[string]Key {
	out := make(map[string]Key, len(in.reverse))
	for code, key := range in.reverse {
		out[code] = key
	}
	return out
}

// Len reports how many distinct keys have been interned.
func (in *Interner) Len() int {
	return len(in.codes)
}
