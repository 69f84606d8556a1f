// Package callchainmap renders a raw callchain of interned symbol codes
// back to (display_name, dso_name) pairs, using the reverse symbol table
// emitted at teardown (§4.5 teardown frame 1, "callchains"). This is the
// tiny boundary dumper spec.md §1 mentions in passing — no interesting
// engineering.
package callchainmap

// Frame is one resolved callchain entry.
type Frame struct {
	DisplayName string
	DSOName     string
}

// Resolve renders codes against table (as persisted in callchains.json:
// code -> [display_name, dso_name]). A code absent from table renders with
// the code itself as the display name and an empty DSO — the table is
// expected to be complete, but a caller inspecting a partial dump shouldn't
// get an error for it.
func Resolve(table map[string][2]string, codes []string) []Frame {
	out := make([]Frame, len(codes))
	for i, code := range codes {
		pair, ok := table[code]
		if !ok {
			out[i] = Frame{DisplayName: code}
			continue
		}
		out[i] = Frame{DisplayName: pair[0], DSOName: pair[1]}
	}
	return out
}
