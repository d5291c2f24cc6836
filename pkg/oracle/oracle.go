// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package oracle provides coverage feedback for API sequences.
package oracle

import (
	"context"
	"errors"

	"github.com/seedforge/seedforge/prog"
)

// Oracle runs a sequence and reports branches reached by each call.
// Run must honor ctx cancellation and deadline.
type Oracle interface {
	Run(ctx context.Context, seq *prog.Sequence) (*Info, error)
}

type CallInfo struct {
	// Branches are branch ids of the called function, prog.EntryBranch included if the call was reached.
	Branches []string `json:"branches"`
}

type Info struct {
	Calls []CallInfo `json:"calls"`
}

// ErrCrashed is returned when the sequence brought the runner down.
var ErrCrashed = errors.New("sequence execution crashed")

// Hits returns the number of distinct (function, branch) pairs in info.
func (info *Info) Hits(seq *prog.Sequence) int {
	seen := make(map[*prog.Function]map[string]bool)
	hits := 0
	for i, ci := range info.Calls {
		if i >= len(seq.Calls) {
			break
		}
		fn := seq.Calls[i].Func
		if seen[fn] == nil {
			seen[fn] = make(map[string]bool)
		}
		for _, br := range ci.Branches {
			if !seen[fn][br] {
				seen[fn][br] = true
				hits++
			}
		}
	}
	return hits
}
