// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seedforge/seedforge/pkg/log"
	"github.com/seedforge/seedforge/pkg/osutil"
	"github.com/seedforge/seedforge/prog"
	"golang.org/x/sync/semaphore"
)

// Exec runs an external instrumented runner for every sequence.
// The rendered seed is written to the runner's stdin, the runner prints Info as JSON:
//
//	{"calls": [{"branches": ["entry"]}, {"branches": ["entry", "null_item"]}]}
//
// The runner is killed when ctx is done or Timeout expires.
type Exec struct {
	Bin     string
	Args    []string
	Timeout time.Duration
	// Render turns a sequence into the runner input.
	Render func(*prog.Sequence) ([]byte, error)
	gate   *semaphore.Weighted
}

// NewExec creates an oracle that runs at most procs runners at the same time.
func NewExec(bin string, args []string, procs int, timeout time.Duration,
	render func(*prog.Sequence) ([]byte, error)) *Exec {
	if procs < 1 {
		procs = 1
	}
	return &Exec{
		Bin:     bin,
		Args:    args,
		Timeout: timeout,
		Render:  render,
		gate:    semaphore.NewWeighted(int64(procs)),
	}
}

func (e *Exec) Run(ctx context.Context, seq *prog.Sequence) (*Info, error) {
	src, err := e.Render(seq)
	if err != nil {
		return nil, fmt.Errorf("failed to render sequence: %w", err)
	}
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.gate.Release(1)
	timeout := e.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout == 0 || left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	cmd := osutil.CommandContext(ctx, e.Bin, e.Args...)
	cmd.Stdin = bytes.NewReader(src)
	stderr := new(bytes.Buffer)
	cmd.Stderr = stderr
	out, err := osutil.Run(timeout, cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, osutil.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		log.Logf(2, "runner failed on %v: %v\n%s", seq, err, stderr.Bytes())
		return nil, fmt.Errorf("%w: %w", ErrCrashed, err)
	}
	info := new(Info)
	if err := json.Unmarshal(out, info); err != nil {
		return nil, fmt.Errorf("failed to parse runner output: %w\n%s", err, out)
	}
	if len(info.Calls) != len(seq.Calls) {
		return nil, fmt.Errorf("%w: runner reported %v calls, sequence has %v",
			ErrCrashed, len(info.Calls), len(seq.Calls))
	}
	for i, ci := range info.Calls {
		fn := seq.Calls[i].Func
		for _, br := range ci.Branches {
			if !fn.HasBranch(br) {
				return nil, fmt.Errorf("runner reported unknown branch %v of %v", br, fn.Name)
			}
		}
	}
	return info, nil
}
