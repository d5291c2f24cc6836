// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package manager

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seedforge/seedforge/pkg/corpus"
	"github.com/seedforge/seedforge/pkg/stat"
)

// Stats are per library, metrics of all libraries share Prometheus names
// and differ in the "library" label.
type Stats struct {
	Candidates  *stat.Val
	Rejected    *stat.Val
	Violations  map[string]*stat.Val
	Timeouts    *stat.Val
	Crashes     *stat.Val
	Accepted    *stat.Val
	Rechecks    *stat.Val
	Rotations   *stat.Val
	Seeds       *stat.Val
	BuildFailed *stat.Val
	Density     *stat.Val
	Branches    *stat.Val
	Coverage    *stat.Val
	Calls       *stat.Val
	Triples     *stat.Val
	Latency     *stat.Val
	MaxLatency  *stat.Val
	AvgDensity  *stat.Val

	ScoreLatency stat.AverageValue[time.Duration]
	SeedDensity  stat.AverageValue[float64]

	lib    string
	corpus atomic.Pointer[corpus.Corpus]
}

var (
	statsMu  sync.Mutex
	libStats = make(map[string]*Stats)
)

// StatsFor returns the metrics of the library, creating them on first use.
func StatsFor(lib string) *Stats {
	statsMu.Lock()
	defer statsMu.Unlock()
	if st := libStats[lib]; st != nil {
		return st
	}
	st := newStats(lib)
	libStats[lib] = st
	return st
}

func newStats(lib string) *Stats {
	labels := stat.Labels{"library": lib}
	name := func(what string) string {
		return fmt.Sprintf("%v %v", what, lib)
	}
	st := &Stats{
		Candidates: stat.New(name("candidates"), "Number of synthesized candidate sequences",
			stat.Simple, stat.Rate{}, stat.Prometheus("seedforge_candidates"), labels),
		Rejected: stat.New(name("rejected"), "Candidates rejected by the lifecycle validator",
			stat.Rate{}, stat.Prometheus("seedforge_rejected"), labels),
		Timeouts: stat.New(name("score timeouts"), "Candidates discarded because scoring timed out",
			stat.Prometheus("seedforge_score_timeouts"), labels),
		Crashes: stat.New(name("oracle failures"), "Candidates discarded because the oracle failed",
			stat.Prometheus("seedforge_oracle_failures"), labels),
		Accepted: stat.New(name("accepted"), "Scored sequences that extended the corpus",
			stat.Simple, stat.Prometheus("seedforge_accepted"), labels),
		Rechecks: stat.New(name("rechecks"), "Corpus sequences re-scored in quiet rounds",
			stat.Console, labels),
		Rotations: stat.New(name("rotations"), "Candidates synthesized from a rotated subset of functions",
			stat.Console, labels),
		Seeds: stat.New(name("seeds"), "Number of emitted seeds",
			stat.Simple, stat.Prometheus("seedforge_seeds"), labels),
		BuildFailed: stat.New(name("build failures"), "Emitted seeds that failed to compile",
			stat.Prometheus("seedforge_build_failures"), labels),
		Density: stat.New(name("density"), "Distribution of the density of accepted sequences, in percents",
			stat.Console, stat.Distribution{}, stat.Prometheus("seedforge_density"), labels),
		Violations: make(map[string]*stat.Val),
		lib:        lib,
	}
	st.Branches = stat.New(name("branches"), "Branches reached by the corpus",
		stat.Simple, stat.Prometheus("seedforge_branches"), labels, func() int {
			if c := st.corpus.Load(); c != nil {
				return c.Stats().Signal
			}
			return 0
		})
	st.Coverage = stat.New(name("coverage"), "Share of catalog branches reached by the corpus",
		stat.Prometheus("seedforge_coverage"), labels, stat.FormatPercent, func() int {
			if c := st.corpus.Load(); c != nil {
				return int(c.Stats().Coverage * 10000)
			}
			return 0
		})
	st.Calls = stat.New(name("calls"), "Library functions called by the corpus",
		stat.Prometheus("seedforge_calls"), labels, func() int {
			if c := st.corpus.Load(); c != nil {
				return c.Stats().Calls
			}
			return 0
		})
	st.Triples = stat.New(name("triples"), "API 3-grams in the corpus",
		stat.Console, labels, func() int {
			if c := st.corpus.Load(); c != nil {
				return c.Stats().Triples
			}
			return 0
		})
	st.Latency = stat.New(name("score latency"), "Average sequence scoring latency",
		stat.Prometheus("seedforge_score_latency_us"), labels, func() int {
			return int(st.ScoreLatency.Value().Microseconds())
		}, func(v int, period time.Duration) string {
			return fmt.Sprint(time.Duration(v) * time.Microsecond)
		})
	st.MaxLatency = stat.New(name("max score latency"), "Slowest sequence scoring",
		stat.Console, labels, func() int {
			return int(st.ScoreLatency.Max().Microseconds())
		}, func(v int, period time.Duration) string {
			return fmt.Sprint(time.Duration(v) * time.Microsecond)
		})
	st.AvgDensity = stat.New(name("avg density"), "Average branch density of accepted sequences",
		stat.Simple, labels, func() int {
			return int(st.SeedDensity.Value() * 10000)
		}, stat.FormatPercent)
	return st
}

func (st *Stats) violation(kind string) *stat.Val {
	statsMu.Lock()
	defer statsMu.Unlock()
	v := st.Violations[kind]
	if v == nil {
		v = stat.New(fmt.Sprintf("%v %v", kind, st.lib), "Candidates rejected with "+kind, stat.Console)
		st.Violations[kind] = v
	}
	return v
}
