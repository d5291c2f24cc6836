// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package osutil runs compilers, formatters and runner binaries, and wraps file system helpers.
package osutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	DefaultDirPerm  = 0755
	DefaultFilePerm = 0644
)

// ErrTimeout is wrapped by RunError when the command was killed on timeout.
var ErrTimeout = errors.New("timed out")

// RunError describes a failed command together with its combined output.
type RunError struct {
	Cmd      string
	Output   []byte
	ExitCode int
	Err      error
}

func (err *RunError) Error() string {
	msg := fmt.Sprintf("%v: %v", err.Cmd, err.Err)
	if len(err.Output) != 0 {
		msg += "\n" + string(err.Output)
	}
	return msg
}

func (err *RunError) Unwrap() error {
	return err.Err
}

// Command is exec.Command that puts the child into its own process group,
// on linux the group is also killed if the parent dies.
func Command(bin string, args ...string) *exec.Cmd {
	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = procAttr()
	return cmd
}

// CommandContext is exec.CommandContext that kills the whole process group when ctx is done.
func CommandContext(ctx context.Context, bin string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.SysProcAttr = procAttr()
	cmd.Cancel = func() error {
		killGroup(cmd.Process)
		return cmd.Process.Kill()
	}
	return cmd
}

// Run runs cmd and kills it after timeout. Output that is not redirected by the caller
// (stdout and stderr) is returned, and included in the error if the command fails.
func Run(timeout time.Duration, cmd *exec.Cmd) ([]byte, error) {
	output := new(bytes.Buffer)
	if cmd.Stdout == nil {
		cmd.Stdout = output
	}
	if cmd.Stderr == nil {
		cmd.Stderr = output
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = procAttr()
	}
	if err := cmd.Start(); err != nil {
		return nil, &RunError{Cmd: cmd.String(), Err: err}
	}
	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		killGroup(cmd.Process)
		cmd.Process.Kill()
	})
	err := cmd.Wait()
	timer.Stop()
	if err == nil {
		return output.Bytes(), nil
	}
	rerr := &RunError{Cmd: cmd.String(), Output: output.Bytes(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		rerr.ExitCode = exitErr.ExitCode()
	}
	if timedOut.Load() {
		rerr.Err = fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	return output.Bytes(), rerr
}

func IsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func MkdirAll(dir string) error {
	return os.MkdirAll(dir, DefaultDirPerm)
}

func WriteFile(filename string, data []byte) error {
	return os.WriteFile(filename, data, DefaultFilePerm)
}

// Abs makes path absolute relative to the current directory, empty paths stay empty.
func Abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// HandleInterrupts calls cancel on the first SIGINT/SIGTERM so that the program can
// shut down gracefully, and exits the process on the third one.
func HandleInterrupts(cancel func()) {
	c := make(chan os.Signal, 3)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for i := 0; ; i++ {
			sig := <-c
			switch i {
			case 0:
				fmt.Fprintf(os.Stderr, "%v: shutting down...\n", sig)
				cancel()
			case 1:
				fmt.Fprintf(os.Stderr, "%v: shutting down harder...\n", sig)
			default:
				fmt.Fprintf(os.Stderr, "%v: terminating\n", sig)
				os.Exit(int(syscall.SIGINT))
			}
		}
	}()
}
