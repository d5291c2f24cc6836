// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
	"math/rand"
)

// Range is an inclusive bound on the number of calls in a phase.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Budget bounds the size of synthesized sequences.
// The Cleanup range is ignored: cleanup emits exactly the calls needed
// to release the remaining root handles.
type Budget struct {
	Phases [NumPhases]Range
	// FaultPercent is the chance of passing NULL into a nullable handle param.
	FaultPercent int
}

func DefaultBudget() *Budget {
	return &Budget{
		Phases: [NumPhases]Range{
			PhaseInitialize: {1, 4},
			PhaseConfigure:  {0, 6},
			PhaseOperate:    {1, 6},
			PhaseValidate:   {0, 4},
		},
		FaultPercent: 5,
	}
}

func (b *Budget) Validate() error {
	for phase := PhaseInitialize; phase < PhaseCleanup; phase++ {
		r := b.Phases[phase]
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("bad %v budget [%v, %v]", phase, r.Min, r.Max)
		}
	}
	if b.FaultPercent < 0 || b.FaultPercent > 100 {
		return fmt.Errorf("bad fault percent %v", b.FaultPercent)
	}
	return nil
}

// Synthesize generates a candidate sequence. Functions not yet covered
// according to novelty are preferred. The candidate still needs to pass Validate.
func Synthesize(cat *Catalog, budget *Budget, rs rand.Source, novelty *Novelty) (*Sequence, error) {
	if budget == nil {
		budget = DefaultBudget()
	}
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	return cat.Generate(rs, budget, cat.BuildChoiceTable(novelty, nil)), nil
}

// Generate generates a sequence using the functions of the choice table.
func (cat *Catalog) Generate(rs rand.Source, budget *Budget, ct *ChoiceTable) *Sequence {
	r := newRand(cat, rs)
	s := newState(cat, budget)
	for phase := PhaseInitialize; phase < PhaseCleanup; phase++ {
		want := r.randRange(budget.Phases[phase].Min, budget.Phases[phase].Max)
		for _, fn := range ct.phaseCalls(phase) {
			if s.count(phase) >= want {
				break
			}
			s.generateCall(r, fn, phase, nil)
		}
	}
	s.generateCleanup(r)
	if debug {
		if err := s.seq.validateStructure(); err != nil {
			panic(fmt.Sprintf("generated bad sequence: %v\n%s", err, s.seq.Serialize()))
		}
	}
	return s.seq
}

type state struct {
	cat    *Catalog
	budget *Budget
	seq    *Sequence
	m      *Machine
	phases [NumPhases]int
	nvars  int
}

func newState(cat *Catalog, budget *Budget) *state {
	return &state{
		cat:    cat,
		budget: budget,
		seq:    &Sequence{Catalog: cat},
		m:      NewMachine(),
	}
}

func (s *state) count(phase Phase) int {
	return s.phases[phase]
}

// candidates returns handles that can be bound to param p.
func (s *state) candidates(p *Param, consume bool, used map[*Handle]bool) []*Handle {
	var res []*Handle
	for _, h := range s.m.Handles() {
		if used[h] || !isCompatibleResourceImpl(p.Res.Kind, h.Res.Kind, true) {
			continue
		}
		if consume {
			if h.Releasable() {
				res = append(res, h)
			}
			continue
		}
		if h.Borrowable() && h.State >= p.Requires {
			res = append(res, h)
		}
	}
	return res
}

// generateCall appends a call to fn if its preconditions can be met.
// If consumed is set, it is bound to the consumed param.
func (s *state) generateCall(r *randGen, fn *Function, phase Phase, consumed *Handle) bool {
	c := &Call{
		Func:  fn,
		Phase: phase,
		Args:  make([]Arg, len(fn.Params)),
	}
	var vars []*Var
	newVar := func(res *ResourceDesc, ctype string) *Var {
		v := &Var{Res: res, CType: ctype}
		vars = append(vars, v)
		return v
	}
	used := make(map[*Handle]bool)
	if consumed != nil {
		used[consumed] = true
	}
	consumeIdx := fn.Consumes()
	for i, p := range fn.Params {
		switch p.Kind {
		case ParamPlain:
			c.Args[i] = literalArg(r.literal(p))
		case ParamOut:
			c.Args[i] = outArg(newVar(p.Res, p.CType))
		case ParamBorrows, ParamOwns:
			if i == consumeIdx && consumed != nil {
				c.Args[i] = resourceArg(consumed.Var)
				continue
			}
			if p.Nullable && s.budget.FaultPercent != 0 && r.Intn(100) < s.budget.FaultPercent {
				c.Args[i] = nullArg()
				continue
			}
			cands := s.candidates(p, i == consumeIdx, used)
			if len(cands) == 0 {
				if !p.Nullable {
					return false
				}
				c.Args[i] = nullArg()
				continue
			}
			h := cands[r.Intn(len(cands))]
			used[h] = true
			c.Args[i] = resourceArg(h.Var)
		}
	}
	if fn.Ret.Res != nil {
		c.Ret = newVar(fn.Ret.Res, fn.Ret.CType)
	}
	idx := len(s.seq.Calls)
	if err := s.m.Apply(idx, c); err != nil {
		return false
	}
	for _, v := range vars {
		v.ID = s.nvars
		s.nvars++
	}
	s.seq.Calls = append(s.seq.Calls, c)
	s.phases[phase]++
	return true
}

// generateCleanup releases all live roots in reverse creation order.
func (s *state) generateCleanup(r *randGen) {
	roots := s.m.Roots()
	for i := len(roots) - 1; i >= 0; i-- {
		h := roots[i]
		if !h.Releasable() {
			continue
		}
		for _, fn := range s.cat.Dtors(h.Res) {
			if s.generateCall(r, fn, PhaseCleanup, h) {
				break
			}
		}
	}
}
