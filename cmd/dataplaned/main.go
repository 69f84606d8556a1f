// Command dataplaned boots the live ingestion pipeline (C1-C5): it opens
// the sink transport named by DATAPLANE_SINKS, runs the frontend
// configuration handshake, then drives the event handler from an
// EventSource until exhaustion, tearing the session down on exit.
//
// The real perf-sample capture path is an external collaborator (spec.md
// §1); this binary's only built-in EventSource replays newline-delimited
// JSON events from stdin, for tests and offline replay.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/urfave/cli/v2"

	"github.com/proftrace/dataplane/internal/chainfilter"
	"github.com/proftrace/dataplane/internal/diag"
	"github.com/proftrace/dataplane/internal/ingest"
	"github.com/proftrace/dataplane/internal/protocol"
	"github.com/proftrace/dataplane/internal/pyscript"
	"github.com/proftrace/dataplane/internal/session"
	"github.com/proftrace/dataplane/internal/sinkmux"
	"github.com/proftrace/dataplane/internal/transport"
	"github.com/proftrace/dataplane/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "dataplaned",
		Usage:   "run the live sampling-profiler ingestion pipeline",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sinks-env", Value: transport.EnvVar, Usage: "environment variable naming the sink-transport descriptor"},
			&cli.StringFlag{Name: "diag-log", Usage: "path to write the diagnostic log (default: a temp file)"},
			&cli.StringFlag{Name: "python", Value: "python3", Usage: "python interpreter used for \"python\" mode filter scripts"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dataplaned:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if path := c.String("diag-log"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open diagnostic log: %w", err)
		}
		diag.SetOutput(f)
	} else if _, err := diag.InitLogFile(); err != nil {
		return fmt.Errorf("init diagnostic log: %w", err)
	}

	descriptor := os.Getenv(c.String("sinks-env"))
	bootstrap, err := transport.Parse(descriptor)
	if err != nil {
		return fmt.Errorf("open sink transport: %w", err)
	}
	// Teardown (via handler.Run -> Handler.Teardown) sends <STOP> and closes
	// the frontend stream and every sink; no separate bootstrap.Close() is
	// needed on the success path.

	pool := make([]*sinkmux.Sink, len(bootstrap.Sinks))
	for i, w := range bootstrap.Sinks {
		pool[i] = sinkmux.NewSink(i, w)
	}
	frontendSink := sinkmux.NewSink(-1, bootstrap.Frontend)

	filter, closeScript, err := runHandshake(bootstrap.Frontend, c.String("python"))
	if err != nil {
		return fmt.Errorf("frontend handshake: %w", err)
	}
	if closeScript != nil {
		defer closeScript()
	}

	sess := session.New(pool, frontendSink, filter)
	handler := ingest.New(sess)

	src := ingest.NewJSONLineSource(os.Stdin)
	if err := handler.Run(src); err != nil {
		return fmt.Errorf("run ingestion: %w", err)
	}
	return nil
}

var conditionRe = regexp.MustCompile(`^(SYM|EXEC|ANY) (.+)$`)

// runHandshake reads filter_settings JSON lines from frontend until the
// literal "<STOP>" line (spec.md §6) and compiles the configured filter.
// It returns a non-nil cleanup func only in "python" mode, where it
// terminates the backing interpreter subprocess.
func runHandshake(frontend io.Reader, interpreter string) (*chainfilter.Filter, func() error, error) {
	scanner := bufio.NewScanner(frontend)
	filter := chainfilter.New(chainfilter.ModeNone, nil, false)
	var closeFn func() error

	for scanner.Scan() {
		line := scanner.Bytes()
		if string(line) == "<STOP>" {
			return filter, closeFn, nil
		}
		if len(line) == 0 {
			continue
		}

		var cmd protocol.FilterSettingsCommand
		if err := json.Unmarshal(line, &cmd); err != nil {
			return nil, closeFn, fmt.Errorf("parse frontend command: %w", err)
		}
		if cmd.Type != "filter_settings" {
			continue
		}

		raw, err := json.Marshal(cmd.Data)
		if err != nil {
			return nil, closeFn, fmt.Errorf("re-encode filter_settings: %w", err)
		}
		if err := protocol.ValidateFilterSettings(raw); err != nil {
			return nil, closeFn, err
		}

		f, cf, err := buildFilter(cmd.Data, interpreter)
		if err != nil {
			return nil, closeFn, err
		}
		filter, closeFn = f, cf
	}
	if err := scanner.Err(); err != nil {
		return nil, closeFn, fmt.Errorf("read frontend stream: %w", err)
	}
	return filter, closeFn, nil
}

// buildFilter compiles one validated filter_settings command into a
// chainfilter.Filter, grounded on the original's "SYM <regex>" / "EXEC
// <regex>" / "ANY <regex>" condition-string convention.
func buildFilter(fs protocol.FilterSettings, interpreter string) (*chainfilter.Filter, func() error, error) {
	switch fs.Type {
	case "none", "":
		return chainfilter.New(chainfilter.ModeNone, nil, fs.Mark), nil, nil
	case "allow", "deny":
		groups, err := parseConditionGroups(fs.Conditions)
		if err != nil {
			return nil, nil, err
		}
		mode := chainfilter.ModeAllow
		if fs.Type == "deny" {
			mode = chainfilter.ModeDeny
		}
		return chainfilter.New(mode, groups, fs.Mark), nil, nil
	case "python":
		loader := &pyscript.Loader{Interpreter: interpreter}
		fn, closeFn, err := loader.Load(fs.Script)
		if err != nil {
			return nil, nil, err
		}
		return chainfilter.NewScript(fn, fs.Mark), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("filter_settings: unknown type %q", fs.Type)
	}
}

func parseConditionGroups(raw [][]string) ([]chainfilter.Group, error) {
	groups := make([]chainfilter.Group, 0, len(raw))
	for _, rawGroup := range raw {
		group := make(chainfilter.Group, 0, len(rawGroup))
		for _, cond := range rawGroup {
			m := conditionRe.FindStringSubmatch(cond)
			if m == nil {
				return nil, fmt.Errorf("filter_settings: malformed condition %q", cond)
			}
			re, err := regexp.Compile(m[2])
			if err != nil {
				return nil, fmt.Errorf("filter_settings: invalid condition regex %q: %w", m[2], err)
			}
			group = append(group, chainfilter.Condition{Kind: chainfilter.ConditionKind(m[1]), Regex: re})
		}
		groups = append(groups, group)
	}
	return groups, nil
}
