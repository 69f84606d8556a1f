// Package flamegraph builds untimed and timed call trees from a session's
// on-disk metric directories and runs the threshold-based compression
// transform (C7, spec.md §4.7 — "core of the core").
package flamegraph

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/proftrace/dataplane/internal/errs"
)

// Offsets accumulates per-offset hot/cold mass for one node (dirmeta.json's
// "hot_0x…"/"cold_0x…" keys).
type Offsets struct {
	Hot  int64 `json:"hot_value,omitempty"`
	Cold int64 `json:"cold_value,omitempty"`
}

// Node is the in-memory flame-graph node (spec.md §3).
type Node struct {
	Name      string             `json:"name"`
	Value     int64              `json:"value"`
	HotValue  int64              `json:"hot_value,omitempty"`
	ColdValue int64              `json:"cold_value,omitempty"`
	Offsets   map[string]Offsets `json:"offsets,omitempty"`

	Children       []*Node `json:"children,omitempty"`
	HiddenChildren []*Node `json:"hidden_children,omitempty"`
	CompressedID   *int    `json:"compressed_id,omitempty"`
}

// dirMeta mirrors dirmeta.json's shape: known keys plus an open map for the
// hot_0x…/cold_0x… offset keys.
type dirMeta struct {
	Name      string           `json:"name,omitempty"`
	HotValue  *int64           `json:"hot_value,omitempty"`
	ColdValue *int64           `json:"cold_value,omitempty"`
	Remainder map[string]int64 `json:"-"`
}

func (d *dirMeta) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Remainder = make(map[string]int64)
	for k, v := range raw {
		switch k {
		case "name":
			_ = json.Unmarshal(v, &d.Name)
		case "hot_value":
			var n int64
			if err := json.Unmarshal(v, &n); err == nil {
				d.HotValue = &n
			}
		case "cold_value":
			var n int64
			if err := json.Unmarshal(v, &n); err == nil {
				d.ColdValue = &n
			}
		default:
			var n int64
			if err := json.Unmarshal(v, &n); err == nil {
				d.Remainder[k] = n
			}
		}
	}
	return nil
}

func applyMeta(n *Node, m dirMeta) {
	if m.HotValue != nil {
		n.HotValue = *m.HotValue
	}
	if m.ColdValue != nil {
		n.ColdValue = *m.ColdValue
	}
	n.Value = n.HotValue + n.ColdValue

	for k, v := range m.Remainder {
		hex, isHot := strings.CutPrefix(k, "hot_")
		if !isHot {
			var isCold bool
			hex, isCold = strings.CutPrefix(k, "cold_")
			if !isCold {
				continue
			}
			if n.Offsets == nil {
				n.Offsets = make(map[string]Offsets)
			}
			o := n.Offsets[hex]
			o.Cold += v
			n.Offsets[hex] = o
			continue
		}
		if n.Offsets == nil {
			n.Offsets = make(map[string]Offsets)
		}
		o := n.Offsets[hex]
		o.Hot += v
		n.Offsets[hex] = o
	}
}

func readDirMeta(path string) (dirMeta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return dirMeta{}, err
	}
	var m dirMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return dirMeta{}, err
	}
	return m, nil
}

// BuildUntimed constructs the aggregated (sibling-order-irrelevant) tree
// rooted at root (spec.md §4.7.1). Construction is iterative: dirmeta
// application doesn't depend on children at all, so each directory's node
// is finalized when it is popped, before its subdirectories are visited,
// walking depth-first with an explicit stack rather than host recursion.
func BuildUntimed(root string) (*Node, error) {
	type frame struct {
		path   string
		node   *Node
		parent *Node
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, errs.NewSchemaError("untimed tree", "root directory missing: "+root, err)
	}

	rootNode := &Node{Name: filepath.Base(root)}
	stack := []frame{{path: root, node: rootNode}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		meta, err := readDirMeta(filepath.Join(top.path, "dirmeta.json"))
		if err != nil {
			return nil, errs.NewSchemaError("untimed tree", "dirmeta.json unreadable at "+top.path, err)
		}
		applyMeta(top.node, meta)

		entries, err := os.ReadDir(top.path)
		if err != nil {
			return nil, errs.NewSchemaError("untimed tree", "directory unreadable at "+top.path, err)
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			child := &Node{Name: name}
			top.node.Children = append(top.node.Children, child)
			stack = append(stack, frame{path: filepath.Join(top.path, name), node: child})
		}
	}

	return rootNode, nil
}

// BuildTimed constructs the time-ordered tree rooted at timed/all.dat
// (spec.md §4.7.1). Sibling order is the order ids appear in the parent's
// `.dat` file. Iterative, file-indexed, no host recursion.
func BuildTimed(dir string) (*Node, error) {
	rootNode, err := loadTimedNode(dir, "all")
	if err != nil {
		return nil, err
	}

	type work struct {
		dir string
		id  string
		n   *Node
	}
	stack := []work{{dir: dir, id: "all", n: rootNode}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		childIDs, err := readChildIDs(filepath.Join(top.dir, top.id+".dat"))
		if err != nil {
			return nil, errs.NewSchemaError("timed tree", "data file unreadable: "+top.id+".dat", err)
		}
		for _, cid := range childIDs {
			child, err := loadTimedNode(top.dir, cid)
			if err != nil {
				return nil, err
			}
			top.n.Children = append(top.n.Children, child)
			stack = append(stack, work{dir: top.dir, id: cid, n: child})
		}
	}

	return rootNode, nil
}

func loadTimedNode(dir, id string) (*Node, error) {
	metaPath := filepath.Join(dir, "meta_"+id+".json")
	meta, err := readDirMeta(metaPath)
	if err != nil {
		return nil, errs.NewSchemaError("timed tree", "meta file unreadable: "+metaPath, err)
	}
	n := &Node{Name: meta.Name}
	applyMeta(n, meta)
	return n, nil
}

// readChildIDs reads one child-id per line from path, in file order,
// skipping blank lines (spec.md §4.7.1).
func readChildIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // a leaf's .dat file may legitimately list no children
		}
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// metricUntimedRoot renders the untimed tree's root directory under a
// (metric,pid,tid) directory, matching profiledir's layout convention.
func metricUntimedRoot(metricDir string) string {
	return filepath.Join(metricDir, "untimed", "all")
}

func metricTimedDir(metricDir string) string {
	return filepath.Join(metricDir, "timed")
}
