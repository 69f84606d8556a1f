package profiledir

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/proftrace/dataplane/internal/errs"
)

// carmTitleRe matches a metric's dirmeta "title" against the CARM
// roofline-source convention (spec.md §6, "Roofline metadata detection").
var carmTitleRe = regexp.MustCompile(`^CARM_(\S+)_(\S+)$`)

// RooflineInfo is the global roofline-capable-metric marker derived from the
// first metric whose dirmeta title matches the CARM convention.
type RooflineInfo struct {
	CPUType   string   `json:"cpu_type"`
	AIKeys    []string `json:"ai_keys"`
	InstrKeys []string `json:"instr_keys"`
}

var intelRoofline = RooflineInfo{
	CPUType: "Intel_x86",
	AIKeys:  []string{"mem_inst_retired.any"},
	InstrKeys: []string{
		"fp_arith_inst_retired.scalar_single",
		"fp_arith_inst_retired.scalar_double",
		"fp_arith_inst_retired.128b_packed_single",
		"fp_arith_inst_retired.128b_packed_double",
		"fp_arith_inst_retired.256b_packed_single",
		"fp_arith_inst_retired.256b_packed_double",
		"fp_arith_inst_retired.512b_packed_single",
		"fp_arith_inst_retired.512b_packed_double",
	},
}

var amdRoofline = RooflineInfo{
	CPUType: "AMD_x86",
	AIKeys:  []string{"ls_dispatch:ld_dispatch", "ls_dispatch:store_dispatch"},
	InstrKeys: []string{
		"retired_sse_avx_operations:sp_mult_add_flops",
		"retired_sse_avx_operations:dp_mult_add_flops",
		"retired_sse_avx_operations:sp_add_sub_flops",
		"retired_sse_avx_operations:dp_add_sub_flops",
		"retired_sse_avx_operations:sp_mult_flops",
		"retired_sse_avx_operations:dp_mult_flops",
		"retired_sse_avx_operations:sp_div_flops",
		"retired_sse_avx_operations:dp_div_flops",
	},
}

// GlobalMetadata is the session-wide metadata the thread-tree materializer
// (C8) attaches to every emitted node (Metrics) or to the root node alone
// (GeneralMetrics, Sources, SourceIndex).
type GlobalMetadata struct {
	Metrics        map[string]map[string]any
	GeneralMetrics map[string]any
	Sources        json.RawMessage
	SourceIndex    json.RawMessage
	Roofline       *RooflineInfo // nil when no metric matched the CARM convention
}

// LoadMetadata reads every metric's dirmeta.json, the optional sources.json
// and src_index.json, and detects the CARM roofline convention, mirroring
// analysis.py's constructor (__init__) rather than get_flame_graph: this is
// "discovers... thread metadata, sources, roofline data" per spec.md's C6
// table entry, not flame-graph-specific.
func (n *Node) LoadMetadata() (*GlobalMetadata, error) {
	meta := &GlobalMetadata{
		Metrics:        make(map[string]map[string]any, len(n.Metrics)),
		GeneralMetrics: make(map[string]any),
	}

	for _, metric := range n.Metrics {
		dirmetaPath := filepath.Join(n.Root, metric, "dirmeta.json")
		b, err := os.ReadFile(dirmetaPath)
		if err != nil {
			return nil, errs.NewConfigError("dirmeta.json", dirmetaPath, err)
		}
		var data map[string]any
		if err := json.Unmarshal(b, &data); err != nil {
			return nil, errs.NewSchemaError(dirmetaPath, "invalid JSON", err)
		}
		data["flame_graph"] = true
		meta.Metrics[metric] = data

		if meta.Roofline == nil {
			if title, ok := data["title"].(string); ok {
				if m := carmTitleRe.FindStringSubmatch(title); m != nil {
					switch m[1] {
					case "INTEL":
						r := intelRoofline
						meta.Roofline = &r
					case "AMD":
						r := amdRoofline
						meta.Roofline = &r
					}
				}
			}
		}
	}

	if n.RooflinePath != "" {
		meta.GeneralMetrics["roofline"] = map[string]any{
			"title": "Cache-aware roofline model",
		}
	}

	if n.SourcesPath != "" {
		b, err := os.ReadFile(n.SourcesPath)
		if err != nil {
			return nil, errs.NewConfigError("sources.json", n.SourcesPath, err)
		}
		meta.Sources = json.RawMessage(b)
	}

	// src_index.json is only consulted when paired with a source archive;
	// reading the archive's own embedded index is the source-archive
	// reader's job (spec.md §1, explicitly out of scope here).
	if n.SourceZipPath != "" && n.SourceIndexPath != "" {
		b, err := os.ReadFile(n.SourceIndexPath)
		if err != nil {
			return nil, errs.NewConfigError("src_index.json", n.SourceIndexPath, err)
		}
		meta.SourceIndex = json.RawMessage(b)
	}

	return meta, nil
}

// threadsEnvelope reads only the spawning_callchains key of threads.json;
// the "tree" key is the pre-built thread tree itself, supplied externally
// per spec.md §1 and never parsed here.
type threadsEnvelope struct {
	SpawningCallchains map[string]json.RawMessage `json:"spawning_callchains"`
}

// SpawningCallchains returns the tid -> spawn-callchain table recorded in
// threads.json, keyed exactly as the live side wrote it.
func (n *Node) SpawningCallchains() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(n.ThreadsPath)
	if err != nil {
		return nil, errs.NewConfigError("threads.json", n.ThreadsPath, err)
	}
	var env threadsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errs.NewSchemaError(n.ThreadsPath, "invalid JSON", err)
	}
	if env.SpawningCallchains == nil {
		return map[string]json.RawMessage{}, nil
	}
	return env.SpawningCallchains, nil
}
