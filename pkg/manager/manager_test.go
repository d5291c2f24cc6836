// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/seedforge/seedforge/pkg/csource"
	"github.com/seedforge/seedforge/pkg/mgrconfig"
	"github.com/seedforge/seedforge/pkg/osutil"
	"github.com/seedforge/seedforge/prog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const allocFree = `
library: allocfree
resources:
  - {name: handle, ctype: void *}
functions:
  alloc:
    returns: {kind: new_resource, resource: handle}
    effect: allocates
  use:
    params:
      - {kind: borrows_resource, resource: handle}
      - {kind: plain_value, type: int, values: ["0", "1"]}
    effect: mutates
    branches:
      - {id: one, when: {arg: 1, equals: "1"}}
  free:
    params: [{kind: owns_resource, resource: handle}]
    effect: frees
    critical: true
`

func testConfig(t *testing.T, workdir string, catalogs ...string) *mgrconfig.Config {
	cfg := mgrconfig.Default()
	cfg.Workdir = workdir
	cfg.Catalogs = catalogs
	cfg.Seed = 1
	cfg.TargetCount = 5
	cfg.ConvergeRounds = 5
	cfg.MaxAttempts = 2000
	return cfg
}

func checkArtifacts(t *testing.T, arts []Artifact) {
	for _, art := range arts {
		require.NoError(t, prog.Validate(art.Seq))
		hdr, err := csource.ParseHeader(art.Data)
		require.NoError(t, err)
		assert.Equal(t, art.ID, hdr.ID)
		assert.Equal(t, art.Seq.Names(), hdr.Combination)
		assert.Equal(t, hdr.Quality.NumBranches(), hdr.NrUniqueBranch)
		assert.Equal(t, hdr.Quality.Score(), hdr.Score)
	}
}

func TestGenerate(t *testing.T) {
	for _, name := range []string{"zlib", "cjson", "sqlite3"} {
		t.Run(name, func(t *testing.T) {
			arts, err := Generate(context.Background(), name, 3)
			require.NoError(t, err)
			require.NotEmpty(t, arts)
			assert.LessOrEqual(t, len(arts), 3)
			for _, art := range arts {
				assert.Equal(t, name, art.Library)
				assert.Empty(t, art.Path)
			}
			checkArtifacts(t, arts)
		})
	}
}

func TestGenerateFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "allocfree.yaml")
	require.NoError(t, osutil.WriteFile(file, []byte(allocFree)))
	arts, err := Generate(context.Background(), file, 10)
	require.NoError(t, err)
	require.NotEmpty(t, arts)
	checkArtifacts(t, arts)
	for _, art := range arts {
		hdr, err := csource.ParseHeader(art.Data)
		require.NoError(t, err)
		// free is critical and every valid sequence releases the handle.
		assert.Contains(t, hdr.Quality.CriticalCalls, "free")
	}

	_, err = Generate(context.Background(), file, 0)
	assert.Error(t, err)
}

func TestRunRotates(t *testing.T) {
	file := filepath.Join(t.TempDir(), "allocfree.yaml")
	require.NoError(t, osutil.WriteFile(file, []byte(allocFree)))
	cfg := testConfig(t, "", file)
	cfg.TargetCount = 1000
	cfg.MaxAttempts = 300
	rotations := StatsFor("allocfree").Rotations.Val()
	mgr, err := New(cfg)
	require.NoError(t, err)
	arts, err := mgr.Run(context.Background())
	require.NoError(t, err)
	checkArtifacts(t, arts)
	// All three functions get covered early, the rest of the run uses rotated subsets.
	assert.Greater(t, StatsFor("allocfree").Rotations.Val(), rotations)
}

func TestRunDeterministic(t *testing.T) {
	var results [][]Artifact
	for i := 0; i < 2; i++ {
		mgr, err := New(testConfig(t, "", "zlib", "libpng"))
		require.NoError(t, err)
		arts, err := mgr.Run(context.Background())
		require.NoError(t, err)
		results = append(results, arts)
	}
	require.Equal(t, len(results[0]), len(results[1]))
	for i := range results[0] {
		assert.Equal(t, string(results[0][i].Data), string(results[1][i].Data))
	}
}

func TestRunBrokenCatalog(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, osutil.WriteFile(broken, []byte(`
library: broken
resources:
  - {name: handle, ctype: void *}
functions:
  alloc:
    returns: {kind: new_resource, resource: handle}
    effect: allocates
`)))
	mgr, err := New(testConfig(t, "", "re2", broken))
	require.NoError(t, err)
	arts, err := mgr.Run(context.Background())
	require.ErrorIs(t, err, prog.ErrCatalogInconsistency)
	// The other library is not affected.
	require.NotEmpty(t, arts)
	for _, art := range arts {
		assert.Equal(t, "re2", art.Library)
	}
	results := mgr.Results()
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].Stop)
	assert.Error(t, results[1].Err)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mgr, err := New(testConfig(t, "", "zlib"))
	require.NoError(t, err)
	_, err = mgr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStop(t *testing.T) {
	cfg := testConfig(t, "", "cjson")
	cfg.TargetCount = 1000
	cfg.MaxAttempts = 30
	mgr, err := New(cfg)
	require.NoError(t, err)
	_, err = mgr.Run(context.Background())
	require.NoError(t, err)
	res := mgr.Results()[0]
	assert.Equal(t, StopAttempts, res.Stop)
	assert.Equal(t, 30, res.Attempts)
	assert.Equal(t, 3, res.Rounds)
}

func TestRunResume(t *testing.T) {
	workdir := t.TempDir()
	cfg := testConfig(t, workdir, "cjson")
	cfg.Minimize = "signal"
	mgr, err := New(cfg)
	require.NoError(t, err)
	arts, err := mgr.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, arts)
	for _, art := range arts {
		assert.Equal(t, filepath.Join(workdir, "cjson", "seeds", fmt.Sprintf("%v.c", art.ID)), art.Path)
		data, err := os.ReadFile(art.Path)
		require.NoError(t, err)
		assert.Equal(t, art.Data, data)
	}

	used, err := mgrconfig.LoadFile(filepath.Join(workdir, "manager.yaml"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), used.Seed)
	assert.Equal(t, cfg.Catalogs, used.Catalogs)

	// The second run starts from the persisted corpus.
	cfg.Seed = 2
	mgr, err = New(cfg)
	require.NoError(t, err)
	arts2, err := mgr.Run(context.Background())
	require.NoError(t, err)
	second := mgr.Results()[0]
	if len(arts) == cfg.TargetCount {
		assert.Equal(t, 0, second.Rounds)
		require.Equal(t, len(arts), len(arts2))
		for i := range arts {
			assert.Equal(t, string(arts[i].Data), string(arts2[i].Data))
		}
	}
	assert.GreaterOrEqual(t, mgr.Corpus("cjson").Stats().Seqs, len(arts))

	store, err := OpenStore(workdir)
	require.NoError(t, err)
	assert.Len(t, store.Records()["cjson"], mgr.Corpus("cjson").Stats().Seqs)
}
