// Package chainfilter applies allow/deny rule groups or a user-supplied
// predicate to a resolved callchain (C3), optionally marking dropped runs
// with a "(cut)" sentinel frame.
package chainfilter

import (
	"regexp"

	"github.com/proftrace/dataplane/internal/errs"
	"github.com/proftrace/dataplane/internal/symtab"
)

// Mode selects how conditions decide which frames survive.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeAllow  Mode = "allow"
	ModeDeny   Mode = "deny"
	ModeScript Mode = "script"
)

// ConditionKind selects which part of a frame a condition matches against.
type ConditionKind string

const (
	KindSym  ConditionKind = "SYM"
	KindExec ConditionKind = "EXEC"
	KindAny  ConditionKind = "ANY"
)

// Condition is one (kind, regex) pair within a rule group.
type Condition struct {
	Kind  ConditionKind
	Regex *regexp.Regexp
}

func (c Condition) matches(f Frame) bool {
	switch c.Kind {
	case KindSym:
		return c.Regex.MatchString(f.Key.DisplayName)
	case KindExec:
		return c.Regex.MatchString(f.Key.DSOName)
	case KindAny:
		return c.Regex.MatchString(f.Key.DisplayName) || c.Regex.MatchString(f.Key.DSOName)
	default:
		return false
	}
}

// Group is an ordered list of conditions that must ALL match (AND).
type Group []Condition

// Frame is a resolved callchain frame prior to interning: a symbol key plus
// its offset string (§4.6's output shape).
type Frame struct {
	Key    symtab.Key
	Offset string
}

// CutFrame is the sentinel frame inserted in place of a maximal run of
// dropped frames when marking is enabled.
var CutFrame = Frame{Key: symtab.Key{DisplayName: "(cut)", DSOName: ""}, Offset: ""}

// ScriptFunc is a user-supplied predicate module: given the whole resolved
// callchain, it returns one boolean per frame. Returning a slice of the
// wrong length is a script protocol violation (§7).
type ScriptFunc func(chain []Frame) ([]bool, error)

// Filter is an immutable, compiled filter configuration.
type Filter struct {
	mode   Mode
	groups []Group
	mark   bool
	script ScriptFunc
}

// New builds a rule-group filter (allow/deny/none). Use NewScript for
// script mode.
func New(mode Mode, groups []Group, mark bool) *Filter {
	return &Filter{mode: mode, groups: groups, mark: mark}
}

// NewScript builds a script-mode filter around a user predicate.
func NewScript(script ScriptFunc, mark bool) *Filter {
	return &Filter{mode: ModeScript, script: script, mark: mark}
}

func (f *Filter) satisfiesGroups(frame Frame) bool {
	for _, group := range f.groups {
		all := true
		for _, cond := range group {
			if !cond.matches(frame) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Apply filters chain per the configured mode, optionally marking dropped
// runs with CutFrame. It does not reverse the sequence — callers reverse or
// not depending on the event kind (sample vs syscall), per §4.3's "filter
// duplication" re-architecture.
func (f *Filter) Apply(chain []Frame) ([]Frame, error) {
	if f.mode == ModeNone {
		out := make([]Frame, len(chain))
		copy(out, chain)
		return out, nil
	}

	var accepted []bool
	if f.mode == ModeScript {
		result, err := f.script(chain)
		if err != nil {
			return nil, errs.NewScriptProtocolError(err.Error(), len(chain), -1)
		}
		if len(result) != len(chain) {
			return nil, errs.NewScriptProtocolError("result length mismatch", len(chain), len(result))
		}
		accepted = result
	}

	out := make([]Frame, 0, len(chain))
	lastCut := false
	for i, frame := range chain {
		var keep bool
		switch f.mode {
		case ModeScript:
			keep = accepted[i]
		case ModeAllow:
			keep = f.satisfiesGroups(frame)
		case ModeDeny:
			keep = !f.satisfiesGroups(frame)
		}

		if keep {
			out = append(out, frame)
			lastCut = false
		} else if f.mark && !lastCut {
			out = append(out, CutFrame)
			lastCut = true
		}
	}
	return out, nil
}
