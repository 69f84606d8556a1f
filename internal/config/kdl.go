package config

import (
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// parseKDL walks the document AST and overrides cfg's defaults in place.
// Unknown nodes are ignored rather than rejected, matching a tolerant
// forward-compatible config file format.
func parseKDL(content string, cfg *Config) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return err
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "sink_pool_size":
			if v, ok := firstIntArg(n); ok {
				cfg.SinkPoolSize = v
			}
		case "compression_threshold":
			if v, ok := firstFloatArg(n); ok {
				cfg.CompressionThreshold = v
			}
		case "diag_log_path":
			if v, ok := firstStringArg(n); ok {
				cfg.DiagLogPath = v
			}
		}
	}
	return nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
