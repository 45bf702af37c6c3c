// Package pipeline runs external programs as argv lists, optionally
// connected stdout to stdin the way a shell pipeline is, without ever going
// through a shell. Paths and parameters are passed to the programs verbatim.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"unicode"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"
	"v.io/x/lib/envvar"
	"v.io/x/lib/lookpath"
)

// Stage is one command of a pipeline. Stage[0] names the program.
type Stage []string

func (s Stage) String() string { return strings.Join(s, " ") }

// ExitError is returned when a stage exits with a non-zero status.
type ExitError struct {
	// Argv is the command that failed.
	Argv Stage
	// Code is the exit status of the command, or -1 if it was killed by a
	// signal.
	Code int
	// Stderr holds whatever the command wrote to its standard error.
	Stderr string
	// Err is the underlying *exec.ExitError.
	Err error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Argv, e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// IsExitError reports whether err is an *ExitError.
func IsExitError(err error) bool {
	_, ok := err.(*ExitError)
	return ok
}

// LookPath resolves the program to run. Names without a path separator are
// searched for in $PATH; others must name an executable file. The returned
// error is of kind errors.Unavailable.
func LookPath(prog string) (string, error) {
	if prog == "" {
		return "", errors.E(errors.Unavailable, "empty program name")
	}
	if strings.ContainsRune(prog, filepath.Separator) {
		if err := unix.Access(prog, unix.X_OK); err != nil {
			return "", errors.E(errors.Unavailable, fmt.Sprintf("%s is not executable", prog), err)
		}
		return prog, nil
	}
	path, err := lookpath.Look(envvar.SliceToMap(os.Environ()), prog)
	if err != nil {
		return "", errors.E(errors.Unavailable, fmt.Sprintf("%s not found in PATH", prog), err)
	}
	return path, nil
}

// IsUnavailable reports whether err means a program could not be found or
// launched.
func IsUnavailable(err error) bool {
	return errors.Is(errors.Unavailable, err)
}

// ContextErr returns the error for a command cut short because ctx is
// done: errors.Canceled after an explicit cancel, errors.Timeout otherwise.
func ContextErr(ctx context.Context, msg string) error {
	if ctx.Err() == context.Canceled {
		return errors.E(errors.Canceled, msg, ctx.Err())
	}
	return errors.E(errors.Timeout, msg, ctx.Err())
}

// Command resolves the program named by s[0] and returns an *exec.Cmd bound
// to ctx: the process is killed if ctx is done before it exits.
func Command(ctx context.Context, s Stage) (*exec.Cmd, error) {
	if len(s) == 0 {
		return nil, errors.E(errors.Invalid, "pipeline: empty stage")
	}
	path, err := LookPath(s[0])
	if err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, path, s[1:]...), nil
}

// Output runs the stages, each one's stdout feeding the next one's stdin,
// and returns the last stage's stdout with trailing whitespace removed.
//
// A stage that exits non-zero yields an *ExitError, except for a non-final
// stage killed by SIGPIPE, which only means a later stage stopped reading.
// If ctx expires first, the error is of kind errors.Timeout, or
// errors.Canceled if ctx was cancelled.
func Output(ctx context.Context, stages ...Stage) (string, error) {
	if len(stages) == 0 {
		return "", errors.E(errors.Invalid, "pipeline: no stages")
	}
	var (
		cmds    = make([]*exec.Cmd, len(stages))
		stderrs = make([]bytes.Buffer, len(stages))
		pipes   = make([]io.Closer, len(stages))
		stdout  bytes.Buffer
	)
	for i, s := range stages {
		cmd, err := Command(ctx, s)
		if err != nil {
			return "", err
		}
		cmd.Stderr = &stderrs[i]
		if i > 0 {
			r, err := cmds[i-1].StdoutPipe()
			if err != nil {
				return "", err
			}
			cmd.Stdin, pipes[i] = r, r
		}
		cmds[i] = cmd
	}
	cmds[len(cmds)-1].Stdout = &stdout

	if log.At(log.Debug) {
		strs := make([]string, len(stages))
		for i, s := range stages {
			strs[i] = s.String()
		}
		log.Debug.Printf("pipeline: running %s", strings.Join(strs, " | "))
	}
	started := 0
	var err error
	for i, cmd := range cmds {
		if ctx.Err() != nil {
			err = ContextErr(ctx, stages[i].String())
			break
		}
		if err = cmd.Start(); err != nil {
			if ctx.Err() != nil {
				err = ContextErr(ctx, stages[i].String())
			} else {
				err = errors.E(errors.Unavailable, fmt.Sprintf("start %s", cmd.Path), err)
			}
			break
		}
		started++
		// The child holds its own copy of the read end. Dropping ours lets
		// the upstream stage see EPIPE once this one exits.
		if pipes[i] != nil {
			_ = pipes[i].Close()
		}
	}
	if err != nil {
		for _, cmd := range cmds[:started] {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
		return "", err
	}
	for i, cmd := range cmds {
		e := cmd.Wait()
		if e == nil || err != nil {
			continue
		}
		if ctx.Err() != nil {
			err = ContextErr(ctx, stages[i].String())
			continue
		}
		if i < len(cmds)-1 && killedBy(e, syscall.SIGPIPE) {
			continue
		}
		err = newExitError(stages[i], stderrs[i].String(), e)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRightFunc(stdout.String(), unicode.IsSpace), nil
}

func newExitError(s Stage, stderr string, err error) error {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return errors.E(s.String(), err)
	}
	return &ExitError{Argv: s, Code: exitErr.ExitCode(), Stderr: stderr, Err: exitErr}
}

func killedBy(err error, sig syscall.Signal) bool {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && status.Signal() == sig
}
