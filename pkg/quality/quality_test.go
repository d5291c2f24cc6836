// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package quality

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seedforge/seedforge/pkg/oracle"
	"github.com/seedforge/seedforge/pkg/signal"
	"github.com/seedforge/seedforge/prog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, cat *prog.Catalog, text string) *prog.Sequence {
	seq, err := prog.Deserialize(cat, []byte(text))
	require.NoError(t, err)
	return seq
}

func TestScoreAllocFree(t *testing.T) {
	t.Parallel()
	cat := prog.MustLoad(t, prog.AllocFreeDescriptor())
	scorer, err := NewScorer(cat, oracle.Model{}, Options{})
	require.NoError(t, err)
	seq := parse(t, cat, "v0 = alloc()\n# Cleanup\nfree(v0)\n")

	rep1, err := scorer.Score(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, 1, rep1.Visited)
	assert.Equal(t, []string{"alloc", "free"}, rep1.LibraryCalls)
	assert.Equal(t, map[string][]string{"alloc": {"entry"}, "free": {"entry"}}, rep1.UniqueBranches)
	assert.Equal(t, 1.0, rep1.Density)
	assert.Equal(t, 3.0, rep1.Score())

	rep2, err := scorer.Score(context.Background(), seq.Clone())
	require.NoError(t, err)
	assert.Equal(t, 2, rep2.Visited)
	assert.Equal(t, rep1.LibraryCalls, rep2.LibraryCalls)
	assert.Equal(t, rep1.UniqueBranches, rep2.UniqueBranches)
	assert.Equal(t, 2, scorer.Visited(seq))
}

func TestScoreCritical(t *testing.T) {
	t.Parallel()
	cat := prog.MustLoad(t, prog.TestDescriptor())
	scorer, err := NewScorer(cat, oracle.Model{}, Options{Critical: []string{"mj_delete"}})
	require.NoError(t, err)
	seq := parse(t, cat, `
v0 = mj_create_object()
# Validate
mj_print(v0)
mj_print(nil)
# Cleanup
mj_delete(v0)
`)
	rep, err := scorer.Score(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"mj_create_object", "mj_delete", "mj_print"}, rep.LibraryCalls)
	assert.Equal(t, []string{"mj_delete", "mj_print"}, rep.CriticalCalls)
	assert.Equal(t, []string{"entry", "null"}, rep.UniqueBranches["mj_print"])
	assert.Equal(t, 4, rep.NumBranches())
	assert.InDelta(t, 4/float64(cat.TotalBranches()), rep.Density, 1e-9)
	sig := rep.Signal()
	assert.Equal(t, 4, sig.Len())
	assert.Equal(t, signal.Critical, sig[signal.Elem("mj_print", "null")])
	assert.Equal(t, signal.Regular, sig[signal.Elem("mj_create_object", "entry")])

	_, err = NewScorer(cat, oracle.Model{}, Options{Critical: []string{"no_such_fn"}})
	assert.Error(t, err)
}

type stubOracle struct {
	err   error
	delay time.Duration
}

func (o stubOracle) Run(ctx context.Context, seq *prog.Sequence) (*oracle.Info, error) {
	if o.delay != 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if o.err != nil {
		return nil, o.err
	}
	return &oracle.Info{Calls: make([]oracle.CallInfo, len(seq.Calls))}, nil
}

func TestScoreTimeout(t *testing.T) {
	t.Parallel()
	cat := prog.MustLoad(t, prog.AllocFreeDescriptor())
	scorer, err := NewScorer(cat, stubOracle{delay: time.Minute}, Options{Timeout: 10 * time.Millisecond})
	require.NoError(t, err)
	seq := parse(t, cat, "v0 = alloc()\n# Cleanup\nfree(v0)\n")
	rep, err := scorer.Score(context.Background(), seq)
	assert.True(t, errors.Is(err, ErrScoringTimeout), "got %v", err)
	assert.Equal(t, 0, rep.Visited)
	assert.Empty(t, rep.UniqueBranches)
	assert.NotNil(t, rep.LibraryCalls)
	assert.Equal(t, 0, scorer.Visited(seq))
}

func TestScoreOracleFailure(t *testing.T) {
	t.Parallel()
	cat := prog.MustLoad(t, prog.AllocFreeDescriptor())
	scorer, err := NewScorer(cat, stubOracle{err: oracle.ErrCrashed}, Options{})
	require.NoError(t, err)
	seq := parse(t, cat, "v0 = alloc()\n# Cleanup\nfree(v0)\n")
	_, err = scorer.Score(context.Background(), seq)
	assert.True(t, errors.Is(err, ErrOracleFailure))
	assert.True(t, errors.Is(err, oracle.ErrCrashed))
	assert.Equal(t, 0, scorer.Visited(seq))
}

func TestRestore(t *testing.T) {
	t.Parallel()
	cat := prog.MustLoad(t, prog.AllocFreeDescriptor())
	scorer, err := NewScorer(cat, oracle.Model{}, Options{})
	require.NoError(t, err)
	seq := parse(t, cat, "v0 = alloc()\n# Cleanup\nfree(v0)\n")
	scorer.Restore(Canonical(seq), 5)
	rep, err := scorer.Score(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Visited)
	assert.Equal(t, 6, scorer.VisitedCounts()[Canonical(seq)])
}
