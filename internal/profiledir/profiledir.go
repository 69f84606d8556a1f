// Package profiledir walks the on-disk session directory (C6): it discovers
// metrics, thread metadata, source archives, and roofline data without
// interpreting any of the tree/forest content itself — that's the flame-graph
// builder's (C7) and thread-tree materializer's (C8) job.
package profiledir

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/proftrace/dataplane/internal/errs"
)

var errNotADirectory = errors.New("not a directory")

// Node is a discovered session directory (spec.md §3, "Directory layout of a
// session").
type Node struct {
	Root string

	ThreadsPath     string
	CallchainsPath  string // "" if absent
	RooflinePath    string // "" if absent
	SourcesPath     string // "" if absent
	SourceZipPath   string // "" if absent
	SourceIndexPath string // "" if absent

	Metrics []string // metric directory names, sorted
}

// DefaultExcludes skips partially-written metric directories, mirroring the
// teacher's include/exclude convention for a directory walk.
var DefaultExcludes = []string{"*.tmp", ".*"}

// Load discovers the layout of a session directory rooted at root. Exclude
// patterns (doublestar glob, matched against the metric directory's base
// name) default to DefaultExcludes when nil.
func Load(root string, excludes []string) (*Node, error) {
	if excludes == nil {
		excludes = DefaultExcludes
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, errs.NewConfigError("session_root", root, err)
	}
	if !info.IsDir() {
		return nil, errs.NewConfigError("session_root", root, errNotADirectory)
	}

	n := &Node{Root: root}

	threadsPath := filepath.Join(root, "threads.json")
	if _, err := os.Stat(threadsPath); err != nil {
		return nil, errs.NewConfigError("threads.json", threadsPath, err)
	}
	n.ThreadsPath = threadsPath

	n.CallchainsPath = optionalPath(root, "callchains.json")
	n.RooflinePath = optionalPath(root, "roofline.csv")
	n.SourcesPath = optionalPath(root, "sources.json")
	n.SourceZipPath = optionalPath(root, "src.zip")
	n.SourceIndexPath = optionalPath(root, "src_index.json")

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errs.NewConfigError("session_root", root, err)
	}

	reserved := map[string]bool{
		"threads.json": true, "callchains.json": true, "roofline.csv": true,
		"sources.json": true, "src.zip": true, "src_index.json": true,
	}

	var metrics []string
	for _, e := range entries {
		if !e.IsDir() || reserved[e.Name()] {
			continue
		}
		if excluded(e.Name(), excludes) {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), "dirmeta.json")); err != nil {
			continue // not a metric directory
		}
		metrics = append(metrics, e.Name())
	}
	sort.Strings(metrics)
	n.Metrics = metrics

	return n, nil
}

func excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		if matched, _ := doublestar.Match(p, name); matched {
			return true
		}
	}
	return false
}

func optionalPath(root, name string) string {
	p := filepath.Join(root, name)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// MetricDir returns the on-disk path to metric's per-(pid,tid) tree root.
func (n *Node) MetricDir(metric string, pid, tid int) string {
	return filepath.Join(n.Root, metric, strconv.Itoa(pid), strconv.Itoa(tid))
}

// Threads reads the pre-built thread-tree payload, passed through unparsed
// to internal/threadtree per spec.md §1's "thread-tree data structure...
// supplied pre-built" out-of-scope note.
func (n *Node) Threads() (json.RawMessage, error) {
	b, err := os.ReadFile(n.ThreadsPath)
	if err != nil {
		return nil, errs.NewConfigError("threads.json", n.ThreadsPath, err)
	}
	return json.RawMessage(b), nil
}

// Sources reads sources.json (the dso-offsets table persisted at teardown),
// returning (nil, false) if the artifact is absent — a "missing optional
// artifact" per spec.md §7, never an error.
func (n *Node) Sources() (map[string][]string, bool) {
	if n.SourcesPath == "" {
		return nil, false
	}
	b, err := os.ReadFile(n.SourcesPath)
	if err != nil {
		return nil, false
	}
	var out map[string][]string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Callchains reads callchains.json (the reverse symbol table persisted at
// teardown), returning (nil, false) if absent.
func (n *Node) Callchains() (map[string][2]string, bool) {
	if n.CallchainsPath == "" {
		return nil, false
	}
	b, err := os.ReadFile(n.CallchainsPath)
	if err != nil {
		return nil, false
	}
	var out map[string][2]string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return out, true
}
