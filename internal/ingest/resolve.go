package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/proftrace/dataplane/internal/chainfilter"
	"github.com/proftrace/dataplane/internal/jitmap"
	"github.com/proftrace/dataplane/internal/protocol"
	"github.com/proftrace/dataplane/internal/session"
	"github.com/proftrace/dataplane/internal/symtab"
)

var perfMapRe = regexp.MustCompile(`^perf-(\d+)\.map$`)

// resolveFrame implements §4.6: raw frame → (symbol key, offset string).
func resolveFrame(sess *session.Session, raw protocol.RawFrame) chainfilter.Frame {
	display := fmt.Sprintf("[%#x]", raw.IP)
	dso := ""
	offset := fmt.Sprintf("%#x", raw.IP)
	displaySet := false

	if raw.DSO != nil {
		dsoVal := *raw.DSO
		dso = dsoVal
		base := filepath.Base(dsoVal)

		if m := perfMapRe.FindStringSubmatch(base); m != nil {
			mapID := m[1]
			switch {
			case raw.Sym != nil && raw.Sym.Name != "":
				display = jitmap.Demangle(raw.Sym.Name)
				displaySet = true
			default:
				if name, ok := sess.JITMaps.Find(dsoVal, mapID, raw.IP); ok {
					display = name
					displaySet = true
				} else {
					display = "[" + dsoVal + "]"
				}
			}
		} else {
			offHex := ""
			if raw.DSOOff != nil {
				offHex = fmt.Sprintf("%#x", *raw.DSOOff)
			}
			sess.RecordDSOOffset(dsoVal, offHex)
			display = "[" + dsoVal + "]"
			offset = offHex
		}
	}

	if !displaySet && raw.Sym != nil && raw.Sym.Name != "" {
		display = raw.Sym.Name
	}

	return chainfilter.Frame{Key: symtab.Key{DisplayName: display, DSOName: dso}, Offset: offset}
}
