// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package oracle

import (
	"context"
	"fmt"

	"github.com/seedforge/seedforge/prog"
)

// Model computes feedback from the branch model of the catalog without running anything.
// Every reached call hits its entry branch, conditional branches are decided by
// literal values, NULL injection and the state of the bound handles.
// It's deterministic: the same sequence always gives the same info.
type Model struct{}

func (Model) Run(ctx context.Context, seq *prog.Sequence) (*Info, error) {
	info := &Info{Calls: make([]CallInfo, len(seq.Calls))}
	m := prog.NewMachine()
	for i, c := range seq.Calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		branches := []string{prog.EntryBranch}
		for _, br := range c.Func.Branches {
			if reached(m, c, br.Cond) {
				branches = append(branches, br.ID)
			}
		}
		info.Calls[i].Branches = branches
		// A lifecycle bug in a real run is a crash.
		if err := m.Apply(i, c); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCrashed, err)
		}
	}
	return info, nil
}

func reached(m *prog.Machine, c *prog.Call, cond prog.Cond) bool {
	if cond.Kind == prog.CondAlways {
		return true
	}
	arg := c.Args[cond.Arg]
	switch cond.Kind {
	case prog.CondNull:
		return isNull(arg)
	case prog.CondNonNull:
		return !isNull(arg)
	case prog.CondValue:
		return arg.Kind == prog.ArgLiteral && arg.Value == cond.Value
	case prog.CondState:
		if arg.Kind != prog.ArgResource {
			return false
		}
		h := m.Handle(arg.Var)
		return h != nil && h.State.Live() && h.State >= cond.State
	}
	panic(fmt.Sprintf("unknown cond kind %v", cond.Kind))
}

func isNull(arg prog.Arg) bool {
	switch arg.Kind {
	case prog.ArgNull:
		return true
	case prog.ArgLiteral:
		return arg.Value == "NULL" || arg.Value == "nullptr"
	}
	return false
}
