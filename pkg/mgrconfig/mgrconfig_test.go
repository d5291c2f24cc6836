// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mgrconfig

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/seedforge/seedforge/prog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanned(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*"))
	if err != nil || len(files) == 0 {
		t.Fatalf("failed to read input files: %v", err)
	}
	for _, file := range files {
		t.Run(file, func(t *testing.T) {
			_, err := LoadFile(file)
			require.NoError(t, err)
		})
	}
}

func TestLoadModel(t *testing.T) {
	cfg, err := LoadFile(filepath.Join("testdata", "model.cfg"))
	require.NoError(t, err)
	assert.Equal(t, []string{"cjson", "zlib", "sqlite3"}, cfg.Catalogs)
	assert.Equal(t, OracleModel, cfg.Oracle)
	assert.Equal(t, 10*time.Second, cfg.ScoreTimeoutDur)
	assert.Equal(t, prog.Range{Min: 2, Max: 8}, cfg.PhaseBudget.Phases[prog.PhaseOperate])
	assert.Equal(t, prog.DefaultBudget().Phases[prog.PhaseInitialize], cfg.PhaseBudget.Phases[prog.PhaseInitialize])
	assert.Equal(t, 0, cfg.PhaseBudget.FaultPercent)
	assert.Equal(t, 10000, cfg.MaxAttempts)
}

func TestLoadExec(t *testing.T) {
	cfg, err := LoadFile(filepath.Join("testdata", "exec.yaml"))
	require.NoError(t, err)
	assert.Equal(t, OracleExec, cfg.Oracle)
	assert.Equal(t, "/bin/sh", cfg.Runner.Bin)
	assert.Equal(t, 4, cfg.Runner.Procs)
	assert.Equal(t, 30*time.Second, cfg.ScoreTimeoutDur)
	assert.True(t, cfg.Recheck)
	assert.Equal(t, 5, cfg.PhaseBudget.FaultPercent)
}

func TestComplete(t *testing.T) {
	tests := []struct {
		cfg string
		err string
	}{
		{
			cfg: `{"catalogs": ["zlib"]}`,
			err: "config param workdir is empty",
		},
		{
			cfg: `{"workdir": "w", "name": "Local Seeds", "catalogs": ["zlib"]}`,
			err: `bad config param: name: not an instance name "Local Seeds"`,
		},
		{
			cfg: `{"workdir": "w"}`,
			err: "config param catalogs is empty",
		},
		{
			cfg: `{"workdir": "w", "catalogs": ["zlib", "zlib"]}`,
			err: "catalog zlib is listed twice",
		},
		{
			cfg: `{"workdir": "w", "catalogs": ["zlib"], "procs": 0}`,
			err: "bad config param procs: '0', want [1, 32]",
		},
		{
			cfg: `{"workdir": "w", "catalogs": ["zlib"], "budget": {"cleanup": {"min": 1, "max": 1}}}`,
			err: "bad config param budget: cleanup size is not configurable",
		},
		{
			cfg: `{"workdir": "w", "catalogs": ["zlib"], "budget": {"operate": {"min": 3, "max": 1}}}`,
			err: "bad config param budget: bad Operate budget [3, 1]",
		},
		{
			cfg: `{"workdir": "w", "catalogs": ["zlib"], "budget": {"teardown": {"min": 1, "max": 1}}}`,
			err: `bad config param budget: unknown phase "teardown"`,
		},
		{
			cfg: `{"workdir": "w", "catalogs": ["zlib"], "oracle": "exec"}`,
			err: "oracle is exec, but runner bin is empty",
		},
		{
			cfg: `{"workdir": "w", "catalogs": ["zlib"], "oracle": "kcov"}`,
			err: "config param oracle must be one of model/exec",
		},
		{
			cfg: `{"workdir": "w", "catalogs": ["zlib"], "minimize": "calls"}`,
			err: `bad config param minimize: unknown minimization mode "calls" (want "signal" or "triples")`,
		},
		{
			cfg: `{"workdir": "w", "catalogs": ["zlib"], "cflags": ["-I/usr/include/foo"]}`,
			err: "cflags are set, but compiler is empty",
		},
	}
	for _, test := range tests {
		t.Run(test.err, func(t *testing.T) {
			_, err := LoadData([]byte(test.cfg))
			assert.EqualError(t, err, test.err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Workdir)
	assert.Equal(t, prog.DefaultBudget(), cfg.PhaseBudget)
	assert.Equal(t, 10*time.Second, cfg.ScoreTimeoutDur)
	assert.Equal(t, 50, cfg.TargetCount)
}
