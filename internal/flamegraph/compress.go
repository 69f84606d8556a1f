package flamegraph

// job is one pending node to compress: the node itself, the mass its
// children's thresholds are measured against, and whether its immediate
// parent in the *output* tree is itself a compression sentinel.
type job struct {
	node             *Node
	total            int64
	parentCompressed bool
}

// Compress runs the threshold-based compression transform (spec.md §4.7.2)
// independently over the untimed and timed trees, then the post-pass
// collapse (§4.7.3). Both roots are mutated in place.
func Compress(untimedRoot, timedRoot *Node, threshold float64) {
	compressOne(untimedRoot, threshold, false)
	compressOne(timedRoot, threshold, true)
}

func compressOne(root *Node, threshold float64, ordered bool) {
	var blocks []*Node
	stack := []job{{node: root, total: root.Value, parentCompressed: false}}

	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stack = append(stack, processJob(j, threshold, ordered, &blocks)...)
	}

	postPassCollapse(blocks)
}

// processJob builds j.node's output child list (kept children plus any
// compression sentinels) and returns the new jobs that still need
// processing: every kept child, and every newly created sentinel.
func processJob(j job, threshold float64, ordered bool, blocks *[]*Node) []job {
	children := j.node.Children
	compressable := make([]bool, len(children))
	var newJobs []job

	for i, c := range children {
		if float64(c.Value) < threshold*float64(j.total) {
			compressable[i] = true
		} else {
			newJobs = append(newJobs, job{node: c, total: c.Value, parentCompressed: false})
		}
	}

	var newChildren []*Node
	flushInto := func(run []*Node, mass int64) {
		nodes, jobs := flushRun(run, mass, j.total, j.parentCompressed, blocks)
		newChildren = append(newChildren, nodes...)
		newJobs = append(newJobs, jobs...)
	}

	var run []*Node
	var mass int64
	for i, c := range children {
		if compressable[i] {
			run = append(run, c)
			mass += c.Value
			continue
		}
		if ordered && mass > 0 {
			flushInto(run, mass)
			run, mass = nil, 0
		}
		newChildren = append(newChildren, c)
	}
	if mass > 0 {
		flushInto(run, mass)
	}

	if j.node.CompressedID != nil {
		j.node.Children = nil
		j.node.HiddenChildren = newChildren
	} else {
		j.node.Children = newChildren
	}

	return newJobs
}

// flushRun applies the shared flush rules (spec.md §4.7.2) to one
// accumulated run of compressable children, returning the node(s) to splice
// into the output child list and the job(s) needed to keep processing them.
func flushRun(run []*Node, mass, total int64, parentCompressed bool, blocks *[]*Node) ([]*Node, []job) {
	if mass == 0 {
		return nil, nil
	}

	if len(run) == 1 && len(run[0].Children) == 0 {
		// Single compressable leaf: inline without a sentinel. Its subtree
		// (empty, being a leaf) needs no further processing.
		return run, nil
	}

	if mass == total && parentCompressed {
		if len(run) > 1 {
			half := len(run) / 2
			part1, part2 := run[:half], run[half:]

			var mass1 int64
			for _, c := range part1 {
				mass1 += c.Value
			}
			mass2 := mass - mass1

			id1 := len(*blocks)
			s1 := &Node{Name: "(compressed)", Value: mass1, Children: part1, CompressedID: &id1}
			*blocks = append(*blocks, s1)

			id2 := len(*blocks)
			s2 := &Node{Name: "(compressed)", Value: mass2, Children: part2, CompressedID: &id2}
			*blocks = append(*blocks, s2)

			return []*Node{s1, s2}, []job{
				{node: s1, total: mass1, parentCompressed: true},
				{node: s2, total: mass2, parentCompressed: true},
			}
		}
		// Single element at full parent mass under a compressed parent:
		// inline unconditionally, without recursing into its subtree — this
		// preserves the original's behavior in this case even when the
		// inlined child is not itself a leaf.
		return run, nil
	}

	id := len(*blocks)
	sentinel := &Node{Name: "(compressed)", Value: mass, Children: run, CompressedID: &id}
	*blocks = append(*blocks, sentinel)
	return []*Node{sentinel}, []job{{node: sentinel, total: mass, parentCompressed: true}}
}

// postPassCollapse collapses degenerate sentinel chains: a sentinel whose
// sole hidden child is itself a sentinel absorbs that child's hidden
// children directly (spec.md §4.7.3).
func postPassCollapse(blocks []*Node) {
	deleted := make(map[int]bool)
	for _, block := range blocks {
		if block.CompressedID == nil || deleted[*block.CompressedID] {
			continue
		}
		for len(block.HiddenChildren) == 1 && block.HiddenChildren[0].CompressedID != nil {
			inner := block.HiddenChildren[0]
			deleted[*inner.CompressedID] = true
			block.HiddenChildren = inner.HiddenChildren
		}
	}
}
