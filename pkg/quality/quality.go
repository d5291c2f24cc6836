// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package quality scores sequences with coverage feedback.
package quality

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seedforge/seedforge/pkg/hash"
	"github.com/seedforge/seedforge/pkg/log"
	"github.com/seedforge/seedforge/pkg/oracle"
	"github.com/seedforge/seedforge/pkg/signal"
	"github.com/seedforge/seedforge/prog"
)

var (
	// ErrScoringTimeout means the oracle did not answer in time.
	// The sequence should be discarded, not retried.
	ErrScoringTimeout = errors.New("scoring timed out")
	// ErrOracleFailure means the oracle crashed or misbehaved on the sequence.
	ErrOracleFailure = errors.New("oracle failure")
)

// Report is the quality of one scored sequence.
// Field order is the serialization order.
type Report struct {
	Density float64 `json:"density"`
	// UniqueBranches maps qualified function names to sorted ids of branches hit.
	UniqueBranches map[string][]string `json:"unique_branches"`
	LibraryCalls   []string            `json:"library_calls"`
	CriticalCalls  []string            `json:"critical_calls"`
	Visited        int                 `json:"visited"`
}

// NumBranches returns the number of distinct branches in the report.
func (rep *Report) NumBranches() int {
	n := 0
	for _, ids := range rep.UniqueBranches {
		n += len(ids)
	}
	return n
}

// Score is the scalar rank of the report: density weighted by the number of branches.
func (rep *Report) Score() float64 {
	return rep.Density * float64(1+rep.NumBranches())
}

// Signal returns reached branches as signal, branches of critical calls have higher priority.
func (rep *Report) Signal() signal.Signal {
	critical := make(map[string]bool)
	for _, name := range rep.CriticalCalls {
		critical[name] = true
	}
	var res signal.Signal
	for fn, ids := range rep.UniqueBranches {
		prio := signal.Regular
		if critical[fn] {
			prio = signal.Critical
		}
		res.Merge(signal.FromBranches(fn, ids, prio))
	}
	return res
}

func emptyReport() *Report {
	return &Report{
		UniqueBranches: map[string][]string{},
		LibraryCalls:   []string{},
		CriticalCalls:  []string{},
	}
}

type Options struct {
	// Timeout bounds every oracle call, zero means no bound besides the caller's ctx.
	Timeout time.Duration
	// Critical extends the catalog's critical functions (plain or qualified names).
	Critical []string
}

// Scorer produces exactly one report per scoring call.
// Visited counters are kept per canonical sequence and are the only mutable state.
type Scorer struct {
	cat      *prog.Catalog
	oracle   oracle.Oracle
	opts     Options
	critical map[*prog.Function]bool

	mu      sync.Mutex
	visited map[hash.Sig]int
}

func NewScorer(cat *prog.Catalog, o oracle.Oracle, opts Options) (*Scorer, error) {
	s := &Scorer{
		cat:      cat,
		oracle:   o,
		opts:     opts,
		critical: make(map[*prog.Function]bool),
		visited:  make(map[hash.Sig]int),
	}
	extra := make(map[string]bool)
	for _, name := range opts.Critical {
		extra[name] = true
	}
	for _, fn := range cat.Functions {
		if fn.Critical || extra[fn.Name] || extra[fn.QualifiedName] {
			s.critical[fn] = true
			delete(extra, fn.Name)
			delete(extra, fn.QualifiedName)
		}
	}
	for name := range extra {
		return nil, fmt.Errorf("critical function %v is not in catalog %v", name, cat.Library)
	}
	return s, nil
}

// Canonical returns the visited key of a sequence: the ordered list of function names.
func Canonical(seq *prog.Sequence) hash.Sig {
	return hash.Names(seq.Names())
}

// Score runs the sequence through the oracle and builds its report.
// On timeout the report has no branches, Visited is 0 and ErrScoringTimeout is returned.
func (s *Scorer) Score(ctx context.Context, seq *prog.Sequence) (*Report, error) {
	if seq.Catalog != s.cat {
		return nil, fmt.Errorf("sequence of %v scored with %v catalog", seq.Catalog.Library, s.cat.Library)
	}
	rep := emptyReport()
	if s.opts.Timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	info, err := s.oracle.Run(ctx, seq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Logf(2, "%v: scoring %v timed out", s.cat.Library, seq)
			return rep, fmt.Errorf("%w: %w", ErrScoringTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return rep, err
		}
		return rep, fmt.Errorf("%w: %w", ErrOracleFailure, err)
	}
	if len(info.Calls) != len(seq.Calls) {
		return rep, fmt.Errorf("%w: info for %v calls, sequence has %v",
			ErrOracleFailure, len(info.Calls), len(seq.Calls))
	}
	calls := make(map[string]bool)
	critical := make(map[string]bool)
	branches := make(map[string]map[string]bool)
	for i, c := range seq.Calls {
		name := c.Func.QualifiedName
		calls[name] = true
		if s.critical[c.Func] {
			critical[name] = true
		}
		for _, br := range info.Calls[i].Branches {
			if branches[name] == nil {
				branches[name] = make(map[string]bool)
			}
			branches[name][br] = true
		}
	}
	rep.LibraryCalls = sortedKeys(calls)
	rep.CriticalCalls = sortedKeys(critical)
	for name, ids := range branches {
		rep.UniqueBranches[name] = sortedKeys(ids)
	}
	if total := s.cat.TotalBranches(); total != 0 {
		rep.Density = min(1, float64(rep.NumBranches())/float64(total))
	}
	sig := Canonical(seq)
	s.mu.Lock()
	s.visited[sig]++
	rep.Visited = s.visited[sig]
	s.mu.Unlock()
	return rep, nil
}

// Visited returns how many times the canonical sequence was scored.
func (s *Scorer) Visited(seq *prog.Sequence) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visited[Canonical(seq)]
}

// Restore sets the visited counter of a canonical sequence, used on resume.
func (s *Scorer) Restore(sig hash.Sig, visited int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if visited > s.visited[sig] {
		s.visited[sig] = visited
	}
}

// VisitedCounts returns a copy of all visited counters.
func (s *Scorer) VisitedCounts() map[hash.Sig]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make(map[hash.Sig]int, len(s.visited))
	for sig, n := range s.visited {
		res[sig] = n
	}
	return res
}

func sortedKeys(m map[string]bool) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
