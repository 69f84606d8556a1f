// Package protocol holds the wire shapes exchanged with the tracing host
// and the frontend (§4.5, §6), as typed JSON structs — the same discipline
// the teacher uses for its own request/response shapes.
package protocol

import "encoding/json"

// SampleEvent is the live-side sample record (§4.5 "Sample event").
type SampleEvent struct {
	EvName string       `json:"ev_name"`
	Comm   string       `json:"comm"`
	Sample SampleFields `json:"sample"`
	Chain  []RawFrame   `json:"callchain"`
}

type SampleFields struct {
	PID    int   `json:"pid"`
	TID    int   `json:"tid"`
	Time   int64 `json:"time"`
	Period int64 `json:"period"`
}

// RawFrame is one raw callchain entry as received, before resolution.
type RawFrame struct {
	IP     uint64  `json:"ip"`
	DSO    *string `json:"dso,omitempty"`
	DSOOff *uint64 `json:"dso_off,omitempty"`
	Sym    *RawSym `json:"sym,omitempty"`
}

type RawSym struct {
	Name string `json:"name"`
}

// EmittedChainFrame is one frame of an emitted (post-filter, post-intern)
// callchain: a symbol code paired with its offset string. It marshals as a
// two-element JSON array (`[code, offset]`), matching the original's
// `(symbol_code, offset)` tuple — §3's "sequence of (symbol_code,
// offset_string)" pairs, not a `{code, offset}` object.
type EmittedChainFrame struct {
	Code   string
	Offset string
}

func (f EmittedChainFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{f.Code, f.Offset})
}

func (f *EmittedChainFrame) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	f.Code, f.Offset = pair[0], pair[1]
	return nil
}

// SampleRecord is the frame written to a sink for a sample event.
type SampleRecord struct {
	Type string           `json:"type"`
	Data SampleRecordData `json:"data"`
}

type SampleRecordData struct {
	EventType string              `json:"event_type"`
	PID       int                 `json:"pid,string"`
	TID       int                 `json:"tid,string"`
	Time      int64               `json:"time"`
	Period    int64               `json:"period"`
	Callchain []EmittedChainFrame `json:"callchain"`
}

// SyscallReturnRecord is written to the fixed (0,0) sink for a syscall
// return whose return value was non-zero.
type SyscallReturnRecord struct {
	Type string           `json:"type"`
	Data SyscallReturnData `json:"data"`
}

type SyscallReturnData struct {
	RetValue  int64               `json:"ret_value,string"`
	Callchain []EmittedChainFrame `json:"callchain"`
}

// SyscallTreeSubtype enumerates §4.5's syscall_meta subtypes.
type SyscallTreeSubtype string

const (
	SubtypeNewProc SyscallTreeSubtype = "new_proc"
	SubtypeExit    SyscallTreeSubtype = "exit"
	SubtypeExecve  SyscallTreeSubtype = "execve"
)

// SyscallMetaRecord is written to the fixed (0,0) sink for a process-tree
// lifecycle event.
type SyscallMetaRecord struct {
	Type string            `json:"type"`
	Data SyscallMetaData   `json:"data"`
}

type SyscallMetaData struct {
	Subtype  SyscallTreeSubtype `json:"subtype"`
	Comm     string             `json:"comm"`
	PID      int                `json:"pid,string"`
	TID      int                `json:"tid,string"`
	Time     int64              `json:"time"`
	RetValue int64              `json:"ret_value,string"`
}

// Teardown frames (§4.5), sent to the frontend stream after the last
// sample/syscall frame.

type CallchainsFrame struct {
	Type string            `json:"type"`
	Data map[string][2]string `json:"data"`
}

type SourcesFrame struct {
	Type string              `json:"type"`
	Data map[string][]string `json:"data"`
}

type MissingSymbolMapsFrame struct {
	Type string   `json:"type"`
	Data []string `json:"data"`
}

// FilterSettings is the frontend's "filter_settings" command body (§6).
type FilterSettings struct {
	Type       string     `json:"type"`
	Conditions [][]string `json:"conditions,omitempty"`
	Script     string     `json:"script,omitempty"`
	Mark       bool       `json:"mark"`
}

// FilterSettingsCommand is the full frontend command envelope.
type FilterSettingsCommand struct {
	Type string         `json:"type"`
	Data FilterSettings `json:"data"`
}
