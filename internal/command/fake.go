package command

import (
	"context"
	"os/exec"
	"sync"
)

// Response is a canned result for one command line
type Response struct {
	Output []byte
	Err    error
}

// Fake is an in-memory Runner. Calls are keyed by their formatted command
// line; unknown commands fail with exit status 127.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]Response
	installed map[string]bool
	calls     []string
}

func NewFake() *Fake {
	return &Fake{
		responses: make(map[string][]Response),
		installed: make(map[string]bool),
	}
}

// On queues a response for the command line. When several responses are
// queued they are consumed in order and the last one repeats.
func (f *Fake) On(line string, out string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = append(f.responses[line], Response{Output: []byte(out), Err: err})
	return f
}

// Install marks a program as present for LookPath
func (f *Fake) Install(names ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.installed[n] = true
	}
	return f
}

func (f *Fake) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	line := Format(name, args...)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)

	queue, ok := f.responses[line]
	if !ok || len(queue) == 0 {
		return nil, &ExitError{Command: line, ExitCode: 127, Stderr: "command not found"}
	}

	r := queue[0]
	if len(queue) > 1 {
		f.responses[line] = queue[1:]
	}
	return r.Output, r.Err
}

func (f *Fake) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installed[name] {
		return "/usr/bin/" + name, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// Calls returns every command line run so far
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}
