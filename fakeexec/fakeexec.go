// Package fakeexec provides a recording exec.Executor for tests, so that p4 and git need not be installed.
package fakeexec

import (
	"context"
	"io"

	"github.com/jmgilman/go/exec"
)

// Call - a recorded Run
type Call struct {
	Args       []string
	Dir        string
	Env        map[string]string
	InheritEnv bool
}

// Handler produces the result for a call. Returning a nil result means empty output.
type Handler func(call Call) (*exec.Result, error)

// Executor records every Run. Per-call settings (dir, env, inherit) are cleared after each Run.
type Executor struct {
	Calls   []Call
	Handler Handler
	dir     string
	env     map[string]string
	inherit bool
}

func New(h Handler) *Executor {
	return &Executor{Handler: h}
}

// Fail builds the error a real command returns on non-zero exit
func Fail(call Call, code int, stderr string) (*exec.Result, error) {
	res := &exec.Result{Stderr: stderr, Combined: stderr, ExitCode: code}
	return res, &exec.ExecError{Command: call.Args, ExitCode: code, Stderr: stderr}
}

func (e *Executor) WithEnv(env map[string]string) exec.Executor {
	if e.env == nil {
		e.env = make(map[string]string)
	}
	for k, v := range env {
		e.env[k] = v
	}
	return e
}

func (e *Executor) WithDir(dir string) exec.Executor {
	e.dir = dir
	return e
}

func (e *Executor) WithInheritEnv() exec.Executor {
	e.inherit = true
	return e
}

func (e *Executor) WithContext(ctx context.Context) exec.Executor { return e }
func (e *Executor) WithDisableColors() exec.Executor            { return e }
func (e *Executor) WithTimeout(timeout string) exec.Executor    { return e }
func (e *Executor) WithStdout(w io.Writer) exec.Executor        { return e }
func (e *Executor) WithStderr(w io.Writer) exec.Executor        { return e }
func (e *Executor) WithPassthrough() exec.Executor              { return e }

func (e *Executor) Run(args ...string) (*exec.Result, error) {
	call := Call{Args: append([]string{}, args...), Dir: e.dir, Env: e.env, InheritEnv: e.inherit}
	e.dir = ""
	e.env = nil
	e.inherit = false
	e.Calls = append(e.Calls, call)
	if e.Handler == nil {
		return &exec.Result{}, nil
	}
	res, err := e.Handler(call)
	if res == nil {
		res = &exec.Result{}
	}
	return res, err
}

func (e *Executor) Clone() exec.Executor {
	return &Executor{Handler: e.Handler}
}

// Commands returns the arguments of each recorded call
func (e *Executor) Commands() [][]string {
	cmds := make([][]string, 0, len(e.Calls))
	for _, c := range e.Calls {
		cmds = append(cmds, c.Args)
	}
	return cmds
}
