// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package manager

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/seedforge/seedforge/pkg/corpus"
	"github.com/seedforge/seedforge/pkg/csource"
	"github.com/seedforge/seedforge/pkg/hash"
	"github.com/seedforge/seedforge/pkg/log"
	"github.com/seedforge/seedforge/pkg/mgrconfig"
	"github.com/seedforge/seedforge/pkg/osutil"
	"github.com/seedforge/seedforge/pkg/quality"
	"github.com/seedforge/seedforge/prog"
)

// Reasons a library run stops.
const (
	StopTarget    = "target count reached"
	StopConverged = "converged"
	StopAttempts  = "max attempts reached"
	StopTimeout   = "generation timeout"
)

// library is the state of one library run. Everything except stats is private to the run.
type library struct {
	cfg     *mgrconfig.Config
	cat     *prog.Catalog
	store   *Store
	scorer  *quality.Scorer
	corpus  *corpus.Corpus
	novelty *prog.Novelty
	enabled map[*prog.Function]bool
	rotator *prog.Rotator
	rs      rand.Source
	rnd     *rand.Rand
	stats   *Stats
	log     *log.Logger
}

func (mgr *Manager) newLibrary(cat *prog.Catalog) (*library, error) {
	scorer, err := quality.NewScorer(cat, mgr.oracle, quality.Options{
		Timeout:  mgr.cfg.ScoreTimeoutDur,
		Critical: mgr.cfg.Critical[cat.Library],
	})
	if err != nil {
		return nil, err
	}
	// Each library gets its own stream, so results don't depend on scheduling.
	rs := rand.NewSource(mgr.seed ^ hash.Names([]string{cat.Library}).Seed())
	lib := &library{
		cfg:     mgr.cfg,
		cat:     cat,
		store:   mgr.store,
		scorer:  scorer,
		corpus:  corpus.NewCorpus(context.Background(), cat),
		novelty: prog.NewNovelty(),
		rs:      rs,
		rnd:     rand.New(rs),
		enabled: cat.Enabled(),
		stats:   StatsFor(cat.Library),
		log:     log.Named(cat.Library),
	}
	lib.rotator = prog.MakeRotator(cat, lib.enabled, lib.rnd)
	lib.stats.corpus.Store(lib.corpus)
	return lib, nil
}

func (lib *library) run(ctx context.Context, res *Result) ([]Artifact, error) {
	if lib.store != nil {
		r := lib.store.Restore(lib.cat, lib.corpus, lib.scorer)
		for _, item := range lib.corpus.Items() {
			lib.novelty.Add(item.Seq.Names()...)
		}
		lib.log.Logf(0, "restored %v sequences, %v visited counters (%v broken records)",
			r.seqs, r.visited, r.broken)
	}
	if err := lib.loop(ctx, res); err != nil {
		// Accepted items are already saved, keep the counters for the next run.
		if lib.store != nil {
			lib.store.SaveVisited(lib.cat.Library, lib.scorer.VisitedCounts())
		}
		return nil, err
	}
	if err := lib.corpus.Minimize(lib.cfg.Minimize); err != nil {
		return nil, err
	}
	if err := lib.persist(); err != nil {
		return nil, err
	}
	arts, err := lib.emit()
	if err != nil {
		return nil, err
	}
	st := lib.corpus.Stats()
	lib.log.Logf(0, "%v after %v rounds: %v seeds, %v sequences, %v branches (%.1f%%), %v calls, %v triples",
		res.Stop, res.Rounds, len(arts), st.Seqs, st.Signal, st.Coverage*100,
		st.Calls, st.Triples)
	return arts, nil
}

func (lib *library) loop(ctx context.Context, res *Result) error {
	start := time.Now()
	quiet := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case lib.corpus.Stats().Seqs >= lib.cfg.TargetCount:
			res.Stop = StopTarget
		case quiet >= lib.cfg.ConvergeRounds:
			res.Stop = StopConverged
		case lib.cfg.MaxAttempts != 0 && res.Attempts >= lib.cfg.MaxAttempts:
			res.Stop = StopAttempts
		case lib.cfg.GenTimeoutDur != 0 && time.Since(start) >= lib.cfg.GenTimeoutDur:
			res.Stop = StopTimeout
		}
		if res.Stop != "" {
			return nil
		}
		progress := false
		for i := 0; i < lib.cfg.RoundSize; i++ {
			res.Attempts++
			novel, err := lib.attempt(ctx)
			if err != nil {
				return err
			}
			progress = progress || novel
		}
		res.Rounds++
		if progress {
			quiet = 0
			continue
		}
		quiet++
		if lib.cfg.Recheck && quiet == lib.cfg.ConvergeRounds/2 {
			if err := lib.recheck(ctx); err != nil {
				return err
			}
		}
	}
}

// attempt synthesizes, validates and scores one candidate.
// It returns true if the candidate extended the corpus.
// Only cancellation and persistence failures are returned as errors,
// all other failures discard the candidate.
func (lib *library) attempt(ctx context.Context) (bool, error) {
	lib.stats.Candidates.Add(1)
	seq, err := lib.synthesize()
	if err != nil {
		lib.log.Logf(3, "synthesis failed: %v", err)
		return false, nil
	}
	if err := prog.Validate(seq); err != nil {
		lib.stats.Rejected.Add(1)
		if v, ok := prog.AsViolation(err); ok {
			lib.stats.violation(v.Kind.String()).Add(1)
		}
		lib.log.Logf(3, "rejected %v: %v", seq, err)
		return false, nil
	}
	start := time.Now()
	rep, err := lib.scorer.Score(ctx, seq)
	lib.stats.ScoreLatency.Save(time.Since(start))
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return false, ctx.Err()
		case errors.Is(err, quality.ErrScoringTimeout):
			lib.stats.Timeouts.Add(1)
		default:
			lib.stats.Crashes.Add(1)
			lib.log.Logf(1, "failed to score %v: %v", seq, err)
		}
		return false, nil
	}
	item, novelty := lib.corpus.Save(seq, rep)
	if item == nil {
		return false, nil
	}
	lib.novelty.Add(seq.Names()...)
	lib.stats.Accepted.Add(1)
	lib.stats.Density.Add(int(rep.Density * 100))
	lib.stats.SeedDensity.Save(rep.Density)
	lib.log.Logf(2, "new sequence %v [%v] %+v", item.ID, seq, novelty)
	if lib.store != nil {
		if err := lib.store.SaveItem(lib.cat.Library, item); err != nil {
			return false, err
		}
	}
	return true, nil
}

// synthesize follows the priority order until every enabled function is covered,
// afterwards candidates are built from rotated subsets of the catalog.
func (lib *library) synthesize() (*prog.Sequence, error) {
	if lib.novelty.Len() < len(lib.enabled) {
		return prog.Synthesize(lib.cat, lib.cfg.PhaseBudget, lib.rs, lib.novelty)
	}
	lib.stats.Rotations.Add(1)
	ct := lib.cat.BuildChoiceTable(lib.novelty, lib.rotator.Select())
	return lib.cat.Generate(lib.rs, lib.cfg.PhaseBudget, ct), nil
}

// recheck re-scores a random corpus sequence, coverage changes point to a flaky oracle.
func (lib *library) recheck(ctx context.Context) error {
	item := lib.corpus.ChooseItem(lib.rnd)
	if item == nil {
		return nil
	}
	lib.stats.Rechecks.Add(1)
	rep, err := lib.scorer.Score(ctx, item.Seq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lib.log.Logf(1, "recheck of sequence %v failed: %v", item.ID, err)
		return nil
	}
	if lost := item.Signal.Diff(rep.Signal()); !lost.Empty() || rep.NumBranches() != item.Report.NumBranches() {
		lib.log.Logf(0, "sequence %v coverage changed on recheck: %v -> %v branches",
			item.ID, item.Report.NumBranches(), rep.NumBranches())
	}
	return nil
}

func (lib *library) persist() error {
	if lib.store == nil {
		return nil
	}
	keep := make(map[string]bool)
	for _, item := range lib.corpus.Items() {
		keep[item.Sig] = true
	}
	lib.store.Retain(lib.cat.Library, keep)
	lib.store.SaveVisited(lib.cat.Library, lib.scorer.VisitedCounts())
	return lib.store.Flush()
}

// emit renders up to TargetCount corpus items in insertion order.
// With a workdir, seeds are written to workdir/<library>/seeds/<id>.c,
// replacing seeds of previous runs.
func (lib *library) emit() ([]Artifact, error) {
	var dir string
	if lib.cfg.Workdir != "" {
		dir = filepath.Join(lib.cfg.Workdir, lib.cat.Library, "seeds")
		if err := os.RemoveAll(dir); err != nil {
			return nil, err
		}
		if err := osutil.MkdirAll(dir); err != nil {
			return nil, err
		}
	}
	var arts []Artifact
	for _, item := range lib.corpus.Items() {
		if len(arts) >= lib.cfg.TargetCount {
			break
		}
		data, err := csource.Emit(item.Seq, item.Report, item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to emit sequence %v: %w", item.ID, err)
		}
		if lib.cfg.Format {
			if formatted, err := csource.Format(data); err != nil {
				lib.log.Logf(1, "failed to format seed %v: %v", item.ID, err)
			} else {
				data = formatted
			}
		}
		if lib.cfg.Compiler != "" {
			obj, err := csource.Build(lib.cfg.Compiler, data, lib.cfg.CFlags...)
			if err != nil {
				lib.stats.BuildFailed.Add(1)
				lib.log.Errorf("seed %v does not compile: %v", item.ID, err)
				continue
			}
			os.Remove(obj)
		}
		art := Artifact{
			Library: lib.cat.Library,
			ID:      item.ID,
			Data:    data,
			Seq:     item.Seq,
		}
		if dir != "" {
			art.Path = filepath.Join(dir, fmt.Sprintf("%v.c", item.ID))
			if err := osutil.WriteFile(art.Path, data); err != nil {
				return nil, err
			}
		}
		lib.stats.Seeds.Add(1)
		arts = append(arts, art)
	}
	return arts, nil
}
