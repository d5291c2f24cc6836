// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeAllocFree(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, AllocFreeDescriptor())
	budget := &Budget{}
	budget.Phases[PhaseInitialize] = Range{1, 1}
	for seed := int64(0); seed < 10; seed++ {
		seq, err := Synthesize(cat, budget, rand.NewSource(seed), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"alloc", "free"}, seq.Names())
		assert.Equal(t, PhaseInitialize, seq.Calls[0].Phase)
		assert.Equal(t, PhaseCleanup, seq.Calls[1].Phase)
		assert.NoError(t, Validate(seq))
	}
}

func TestGeneration(t *testing.T) {
	cat, rs, iters := initTest(t)
	budget := DefaultBudget()
	budget.FaultPercent = 20
	ct := cat.BuildChoiceTable(nil, nil)
	for i := 0; i < iters; i++ {
		seq := cat.Generate(rs, budget, ct)
		if err := Validate(seq); err != nil {
			t.Fatalf("generated sequence is invalid: %v\n%s", err, seq.Serialize())
		}
		for phase := PhaseInitialize; phase < PhaseCleanup; phase++ {
			if n := len(seq.PhaseCalls(phase)); n > budget.Phases[phase].Max {
				t.Fatalf("phase %v has %v calls, budget %v\n%s",
					phase, n, budget.Phases[phase].Max, seq.Serialize())
			}
		}
	}
}

func TestGenerationNoDanglingRoots(t *testing.T) {
	cat, rs, iters := initTest(t)
	novelty := NewNovelty()
	r := rand.New(rs)
	for i := 0; i < iters; i++ {
		seq, err := Synthesize(cat, DefaultBudget(), rand.NewSource(r.Int63()), novelty)
		require.NoError(t, err)
		m := NewMachine()
		for idx, c := range seq.Calls {
			require.NoError(t, m.Apply(idx, c))
		}
		for _, h := range m.Handles() {
			if h.Borrowed {
				continue
			}
			released := false
			for cur := h; cur != nil; cur = cur.Owner {
				if cur.State == Released || cur.Library {
					released = true
					break
				}
			}
			if !released {
				t.Fatalf("handle %v is not released\n%s", h, seq.Serialize())
			}
		}
		novelty.Add(seq.Names()...)
	}
}

func TestGenerationDeterminism(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, TestDescriptor())
	for seed := int64(0); seed < 20; seed++ {
		seq0, err := Synthesize(cat, nil, rand.NewSource(seed), nil)
		require.NoError(t, err)
		seq1, err := Synthesize(cat, nil, rand.NewSource(seed), nil)
		require.NoError(t, err)
		assert.Equal(t, string(seq0.Serialize()), string(seq1.Serialize()))
	}
}

func TestGenerationEmptyPhases(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, TestDescriptor())
	budget := &Budget{}
	budget.Phases[PhaseOperate] = Range{6, 6}
	for seed := int64(0); seed < 20; seed++ {
		seq, err := Synthesize(cat, budget, rand.NewSource(seed), nil)
		require.NoError(t, err)
		require.NoError(t, Validate(seq))
		// Nothing is created in Initialize, so calls that need handles are skipped.
		for _, c := range seq.Calls {
			assert.Equal(t, PhaseOperate, c.Phase)
			for _, arg := range c.Args {
				assert.NotEqual(t, ArgResource, arg.Kind, "%s", seq.Serialize())
			}
		}
	}
}

func TestGenerationPriority(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, TestDescriptor())
	budget := &Budget{}
	budget.Phases[PhaseInitialize] = Range{1, 1}
	novelty := NewNovelty()
	// Critical functions go first, then declaration order.
	want := []string{"mj_parse", "mj_create_object", "mj_create_array", "mj_parser_init"}
	for _, name := range want {
		seq, err := Synthesize(cat, budget, rand.NewSource(0), novelty)
		require.NoError(t, err)
		require.NotEmpty(t, seq.Calls)
		assert.Equal(t, name, seq.Calls[0].Func.Name)
		assert.Equal(t, 1, novelty.Add(seq.Calls[0].Func.Name))
	}
}

func TestBudgetValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, DefaultBudget().Validate())
	budget := DefaultBudget()
	budget.Phases[PhaseConfigure] = Range{3, 2}
	assert.Error(t, budget.Validate())
	budget = DefaultBudget()
	budget.FaultPercent = 101
	assert.Error(t, budget.Validate())
	cat := MustLoad(t, AllocFreeDescriptor())
	_, err := Synthesize(cat, budget, rand.NewSource(0), nil)
	assert.Error(t, err)
}

func TestSerialize(t *testing.T) {
	cat, rs, iters := initTest(t)
	budget := DefaultBudget()
	budget.FaultPercent = 30
	ct := cat.BuildChoiceTable(nil, nil)
	for i := 0; i < iters; i++ {
		seq := cat.Generate(rs, budget, ct)
		data := seq.Serialize()
		seq1, err := Deserialize(cat, data)
		if err != nil {
			t.Fatalf("failed to deserialize sequence: %v\n%s", err, data)
		}
		data1 := seq1.Serialize()
		if len(seq.Calls) != len(seq1.Calls) {
			t.Fatalf("different number of calls")
		}
		if !bytes.Equal(data, data1) {
			t.Fatalf("sequence changed after serialize/deserialize\noriginal:\n%s\n\nnew:\n%s\n", data, data1)
		}
		if seq.Canonical() != seq1.Canonical() {
			t.Fatalf("canonical form changed: %v vs %v", seq.Canonical(), seq1.Canonical())
		}
		clone := seq.Clone()
		if !bytes.Equal(data, clone.Serialize()) {
			t.Fatalf("clone differs:\n%s\n\n%s", data, clone.Serialize())
		}
	}
}

func TestRotate(t *testing.T) {
	cat, rs, iters := initTest(t)
	calls := cat.Enabled()
	rotator := MakeRotator(cat, calls, rand.New(rs))
	for iter := 0; iter < iters/10+1; iter++ {
		selected := rotator.Select()
		require.NotEmpty(t, selected)
		for fn := range selected {
			for _, res := range fn.Produces() {
				found := false
				for _, dtor := range cat.Dtors(res) {
					found = found || selected[dtor]
				}
				assert.True(t, found, "%v produces %v but no destructor selected", fn.Name, res.Name)
			}
		}
		ct := cat.BuildChoiceTable(nil, selected)
		for _, fn := range ct.Calls() {
			assert.True(t, selected[fn])
		}
		seq := cat.Generate(rs, DefaultBudget(), ct)
		for _, c := range seq.Calls {
			if c.Phase != PhaseCleanup {
				assert.True(t, selected[c.Func], "%v is not selected", c.Func.Name)
			}
		}
		assert.NoError(t, Validate(seq))
	}
}

func TestLiterals(t *testing.T) {
	t.Parallel()
	r := newRand(MustLoad(t, AllocFreeDescriptor()), rand.NewSource(0))
	for i := 0; i < 100; i++ {
		assert.Equal(t, "NULL", r.literalFor("void*"))
		assert.Contains(t, []string{"0", "1"}, r.literalFor("cJSON_bool"))
		assert.NotContains(t, r.literalFor("size_t"), "-")
		lit := r.literalFor("const  char*")
		assert.Equal(t, byte('"'), lit[0], lit)
		assert.Contains(t, []string{"A", "B"}, r.literal(&Param{Values: []string{"A", "B"}}))
	}
	assert.Equal(t, "const char *", normalizeCType("const  char*"))
	assert.Equal(t, "z_stream *", normalizeCType("z_stream*"))
}
