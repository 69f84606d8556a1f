package flamegraph

import (
	"encoding/json"

	"github.com/proftrace/dataplane/internal/errs"
	"github.com/proftrace/dataplane/internal/profiledir"
)

// MetricGraph is the per-metric pair of trees, in the fixed order spec.md
// §4.7.4 requires: untimed root first, timed root second.
type MetricGraph [2]*Node

// Build constructs and compresses the untimed/timed tree pair for every
// metric directory discovered under node for (pid, tid), returning the
// {metric_name: [untimed_tree, timed_tree]} map spec.md §4.7.4 emits.
func Build(node *profiledir.Node, pid, tid int, threshold float64) (map[string]MetricGraph, error) {
	out := make(map[string]MetricGraph, len(node.Metrics))
	for _, metric := range node.Metrics {
		metricDir := node.MetricDir(metric, pid, tid)

		untimed, err := BuildUntimed(metricUntimedRoot(metricDir))
		if err != nil {
			return nil, err
		}
		timed, err := BuildTimed(metricTimedDir(metricDir))
		if err != nil {
			return nil, err
		}

		Compress(untimed, timed, threshold)

		graph := MetricGraph{untimed, timed}
		if graph[0] == nil || graph[1] == nil {
			return nil, errs.NewSchemaError(metric, "flame graph must have exactly 2 elements", nil)
		}
		out[metric] = graph
	}
	return out, nil
}

// Marshal renders the per-metric graph map as the JSON string spec.md
// §4.7.4 specifies.
func Marshal(graphs map[string]MetricGraph) ([]byte, error) {
	return json.Marshal(graphs)
}

// MarshalJSON renders a MetricGraph as a two-element array, matching
// spec.md's wire shape exactly (not an object with named fields).
func (g MetricGraph) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*Node{g[0], g[1]})
}
