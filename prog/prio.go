// Copyright 2015/2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"sort"
	"sync"
)

// Calculation of function priorities.
// Functions are ordered by (not yet covered, critical, declaration order).
// Coverage is the set of library calls already present in accepted sequences
// of the current run, so the ordering changes as the run progresses but is
// fully determined by the coverage state.

// Novelty is the set of functions already covered by a library run.
// It is safe for concurrent use.
type Novelty struct {
	mu      sync.RWMutex
	covered map[string]bool
}

func NewNovelty() *Novelty {
	return &Novelty{covered: make(map[string]bool)}
}

func (n *Novelty) Covered(name string) bool {
	if n == nil {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.covered[name]
}

// Add marks the functions as covered and returns how many were new.
func (n *Novelty) Add(names ...string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	added := 0
	for _, name := range names {
		if !n.covered[name] {
			n.covered[name] = true
			added++
		}
	}
	return added
}

func (n *Novelty) Len() int {
	if n == nil {
		return 0
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.covered)
}

// ChoiceTable is the priority ordering of enabled functions for one synthesis attempt.
type ChoiceTable struct {
	cat   *Catalog
	calls []*Function
}

// BuildChoiceTable orders enabled functions by priority.
// If enabled is nil, all callable functions of the catalog are used.
func (cat *Catalog) BuildChoiceTable(novelty *Novelty, enabled map[*Function]bool) *ChoiceTable {
	if enabled == nil {
		enabled = cat.Enabled()
	}
	var calls []*Function
	for _, fn := range cat.Functions {
		if enabled[fn] && cat.Disabled[fn] == "" {
			calls = append(calls, fn)
		}
	}
	covered := make(map[*Function]bool)
	for _, fn := range calls {
		covered[fn] = novelty.Covered(fn.Name)
	}
	sort.SliceStable(calls, func(i, j int) bool {
		a, b := calls[i], calls[j]
		if covered[a] != covered[b] {
			return !covered[a]
		}
		if a.Critical != b.Critical {
			return a.Critical
		}
		return a.ID < b.ID
	})
	return &ChoiceTable{cat, calls}
}

// Calls returns enabled functions in priority order.
func (ct *ChoiceTable) Calls() []*Function {
	return ct.calls
}

func (ct *ChoiceTable) Enabled(fn *Function) bool {
	for _, fn1 := range ct.calls {
		if fn1 == fn {
			return true
		}
	}
	return false
}

// phaseCalls returns enabled functions eligible for the phase in priority order.
func (ct *ChoiceTable) phaseCalls(phase Phase) []*Function {
	var calls []*Function
	for _, fn := range ct.calls {
		if fn.Eligible(phase) {
			calls = append(calls, fn)
		}
	}
	return calls
}

// Eligible says if the function may be placed into the phase.
func (fn *Function) Eligible(phase Phase) bool {
	if len(fn.Phases) != 0 {
		for _, p := range fn.Phases {
			if p == phase {
				return true
			}
		}
		return false
	}
	switch phase {
	case PhaseInitialize:
		return fn.Effect == EffectAllocates
	case PhaseConfigure:
		return fn.Effect == EffectMutates || fn.Effect == EffectTransfers
	case PhaseOperate:
		switch fn.Effect {
		case EffectMutates, EffectTransfers, EffectPure:
			return true
		case EffectAllocates:
			return fn.NeedsHandles()
		}
	case PhaseValidate:
		return fn.Effect == EffectPure
	case PhaseCleanup:
		return fn.Effect == EffectFrees
	}
	return false
}
