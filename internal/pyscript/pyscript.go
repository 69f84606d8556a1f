// Package pyscript bridges a user-supplied Python predicate module into a
// chainfilter.ScriptFunc (spec.md §6: "For python, the script is loaded and
// its setup() is called once; later process(raw_callchain_tuple) is invoked
// per callchain"). The interpreter is an external collaborator, invoked the
// same way the teacher shells out to git in internal/git/provider.go: one
// long-lived subprocess, JSON lines over stdin/stdout rather than a
// per-call fork.
package pyscript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/proftrace/dataplane/internal/chainfilter"
	"github.com/proftrace/dataplane/internal/errs"
)

// bridgeSource is the stdio shim run inside the subprocess: it imports the
// user's module by path, calls setup() once, then answers one JSON request
// per line with one JSON response per line.
const bridgeSource = `
import sys, json, importlib.util

def main():
    path = sys.argv[1]
    spec = importlib.util.spec_from_file_location("userscript", path)
    mod = importlib.util.module_from_spec(spec)
    spec.loader.exec_module(mod)
    if hasattr(mod, "setup"):
        mod.setup()
    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        chain = json.loads(line)
        result = mod.process([tuple(frame) for frame in chain])
        sys.stdout.write(json.dumps({"result": list(result)}) + "\n")
        sys.stdout.flush()

if __name__ == "__main__":
    main()
`

// Loader launches python3 once per script path and exposes the resulting
// subprocess as a chainfilter.ScriptFunc.
type Loader struct {
	// Interpreter overrides the python executable; empty means "python3".
	Interpreter string
}

// process is one running bridge subprocess and the stdio pipes to it.
type process struct {
	cmd    *exec.Cmd
	stdin  *bufio.Writer
	stdout *bufio.Scanner
	mu     sync.Mutex
}

// Load starts the interpreter against scriptPath, runs its one-time setup,
// and returns a ScriptFunc that forwards each Apply call to process().
// The returned close func must be called to terminate the subprocess.
func (l *Loader) Load(scriptPath string) (chainfilter.ScriptFunc, func() error, error) {
	interp := l.Interpreter
	if interp == "" {
		interp = "python3"
	}

	cmd := exec.Command(interp, "-c", bridgeSource, scriptPath)
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, errs.NewConfigError("script", scriptPath, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errs.NewConfigError("script", scriptPath, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, errs.NewConfigError("script", scriptPath, fmt.Errorf("start interpreter: %w", err))
	}

	p := &process{
		cmd:    cmd,
		stdin:  bufio.NewWriter(stdinPipe),
		stdout: bufio.NewScanner(stdoutPipe),
	}
	p.stdout.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	closeFn := func() error {
		_ = stdinPipe.Close()
		return cmd.Wait()
	}
	return p.apply, closeFn, nil
}

func (p *process) apply(chain []chainfilter.Frame) ([]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tuples := make([][2]string, len(chain))
	for i, f := range chain {
		tuples[i] = [2]string{f.Key.DisplayName, f.Key.DSOName}
	}
	req, err := json.Marshal(tuples)
	if err != nil {
		return nil, fmt.Errorf("encode script request: %w", err)
	}
	if _, err := p.stdin.Write(req); err != nil {
		return nil, fmt.Errorf("write script request: %w", err)
	}
	if err := p.stdin.WriteByte('\n'); err != nil {
		return nil, fmt.Errorf("write script request: %w", err)
	}
	if err := p.stdin.Flush(); err != nil {
		return nil, fmt.Errorf("flush script request: %w", err)
	}

	if !p.stdout.Scan() {
		if err := p.stdout.Err(); err != nil {
			return nil, fmt.Errorf("read script response: %w", err)
		}
		return nil, fmt.Errorf("script process exited without a response")
	}

	var resp struct {
		Result []bool `json:"result"`
	}
	if err := json.Unmarshal(p.stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode script response: %w", err)
	}
	return resp.Result, nil
}
