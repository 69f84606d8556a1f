// Command flamegraphd is the offline CLI front end for the flame-graph and
// thread-tree engine (C6-C8): given a session directory it runs either the
// flame-graph builder for one (pid, tid, threshold) or the thread-tree
// materializer, and prints the resulting JSON to stdout.
//
// It is a minimal, in-scope caller of the dispatch.Handler interface —
// spec.md §6 keeps the request-dispatch surface itself external/interface
// only; this binary is what exercises it from a terminal.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/proftrace/dataplane/internal/config"
	"github.com/proftrace/dataplane/internal/dispatch"
	"github.com/proftrace/dataplane/internal/profiledir"
	"github.com/proftrace/dataplane/internal/threadtree"
	"github.com/proftrace/dataplane/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "flamegraphd",
		Usage:   "build a flame graph or thread tree from an on-disk profiler session",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Required: true, Usage: "session directory root"},
			&cli.BoolFlag{Name: "tree", Usage: "materialize the thread tree instead of a flame graph"},
			&cli.StringFlag{Name: "thread-tree-json", Usage: "path to a pre-built thread-tree JSON file (required with --tree)"},
			&cli.IntFlag{Name: "pid", Usage: "process id (flame-graph mode)"},
			&cli.IntFlag{Name: "tid", Usage: "thread id (flame-graph mode)"},
			&cli.Float64Flag{Name: "threshold", Usage: "compression threshold (default from config)"},
			&cli.StringFlag{Name: "general-analysis", Usage: "general analysis type, e.g. roofline"},
			&cli.StringSliceFlag{Name: "callchain", Usage: "symbol codes to resolve via callchains.json"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "flamegraphd:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	sessionRoot := c.String("session")

	dir, err := profiledir.Load(sessionRoot, nil)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	cfg, err := config.Load(sessionRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	threshold := cfg.CompressionThreshold
	if c.IsSet("threshold") {
		threshold = c.Float64("threshold")
	}

	handler := &dispatch.SessionHandler{Dir: dir, Threshold: threshold}

	req, err := buildRequest(c, threshold)
	if err != nil {
		return err
	}

	if req.ThreadTree {
		handler.ThreadTree, err = loadThreadTree(c.String("thread-tree-json"))
		if err != nil {
			return err
		}
	}

	out, err := handler.Dispatch(req)
	if err != nil {
		if errors.Is(err, dispatch.ErrNotFound) {
			return fmt.Errorf("not found: %w", err)
		}
		return err
	}

	fmt.Println(string(out))
	return nil
}

func buildRequest(c *cli.Context, threshold float64) (dispatch.Request, error) {
	switch {
	case c.Bool("tree"):
		if c.String("thread-tree-json") == "" {
			return dispatch.Request{}, errors.New("--thread-tree-json is required with --tree")
		}
		return dispatch.Request{ThreadTree: true}, nil
	case c.String("general-analysis") != "":
		return dispatch.Request{GeneralAnalysis: c.String("general-analysis")}, nil
	case len(c.StringSlice("callchain")) > 0:
		return dispatch.Request{Callchain: c.StringSlice("callchain")}, nil
	case c.IsSet("pid") || c.IsSet("tid"):
		return dispatch.Request{FlameGraph: &dispatch.FlameGraphQuery{
			PID: c.Int("pid"), TID: c.Int("tid"), Threshold: threshold,
		}}, nil
	default:
		return dispatch.Request{}, errors.New("specify one of --tree, --general-analysis, --callchain, or --pid/--tid")
	}
}

func loadThreadTree(path string) (*threadtree.Node, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read thread-tree file: %w", err)
	}
	var root threadtree.Node
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("parse thread-tree file: %w", err)
	}
	return &root, nil
}
