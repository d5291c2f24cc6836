// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mgrconfig

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/seedforge/seedforge/pkg/config"
	"github.com/seedforge/seedforge/pkg/corpus"
	"github.com/seedforge/seedforge/pkg/osutil"
	"github.com/seedforge/seedforge/pkg/validator"
	"github.com/seedforge/seedforge/prog"
)

func LoadData(data []byte) (*Config, error) {
	cfg, err := LoadPartialData(data)
	if err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(filename string) (*Config, error) {
	cfg, err := LoadPartialFile(filename)
	if err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadPartialData(data []byte) (*Config, error) {
	cfg := defaultValues()
	if err := config.LoadData(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadPartialFile(filename string) (*Config, error) {
	cfg := defaultValues()
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a complete config for in-memory runs without a workdir.
func Default() *Config {
	cfg := defaultValues()
	cfg.PhaseBudget = prog.DefaultBudget()
	cfg.ScoreTimeoutDur = time.Duration(cfg.ScoreTimeout) * time.Second
	return cfg
}

func defaultValues() *Config {
	return &Config{
		TargetCount:    50,
		Procs:          1,
		Oracle:         OracleModel,
		Runner:         Runner{Procs: 1},
		ScoreTimeout:   10,
		RoundSize:      10,
		ConvergeRounds: 20,
		MaxAttempts:    10000,
	}
}

func Complete(cfg *Config) error {
	if cfg.Workdir == "" {
		return fmt.Errorf("config param workdir is empty")
	}
	cfg.Workdir = osutil.Abs(cfg.Workdir)
	if cfg.Name != "" {
		if err := validator.AnyError("bad config param", validator.InstanceName(cfg.Name, "name")); err != nil {
			return err
		}
	}
	if len(cfg.Catalogs) == 0 {
		return fmt.Errorf("config param catalogs is empty")
	}
	seen := make(map[string]bool)
	for _, cat := range cfg.Catalogs {
		if seen[cat] {
			return fmt.Errorf("catalog %v is listed twice", cat)
		}
		seen[cat] = true
	}
	if cfg.TargetCount < 1 {
		return fmt.Errorf("bad config param target_count: '%v', want >= 1", cfg.TargetCount)
	}
	if cfg.Procs < 1 || cfg.Procs > 32 {
		return fmt.Errorf("bad config param procs: '%v', want [1, 32]", cfg.Procs)
	}
	if err := completeBudget(cfg); err != nil {
		return err
	}
	if err := completeOracle(cfg); err != nil {
		return err
	}
	if cfg.RoundSize < 1 {
		return fmt.Errorf("bad config param round_size: '%v', want >= 1", cfg.RoundSize)
	}
	if cfg.ConvergeRounds < 1 {
		return fmt.Errorf("bad config param converge_rounds: '%v', want >= 1", cfg.ConvergeRounds)
	}
	if cfg.MaxAttempts < 0 || cfg.GenTimeout < 0 {
		return fmt.Errorf("max_attempts and gen_timeout can't be negative")
	}
	cfg.GenTimeoutDur = time.Duration(cfg.GenTimeout) * time.Second
	if err := corpus.ValidMinimizeMode(cfg.Minimize); err != nil {
		return fmt.Errorf("bad config param minimize: %w", err)
	}
	if cfg.Compiler != "" {
		if _, err := exec.LookPath(cfg.Compiler); err != nil {
			return fmt.Errorf("bad config param compiler: %w", err)
		}
	} else if len(cfg.CFlags) != 0 {
		return fmt.Errorf("cflags are set, but compiler is empty")
	}
	return nil
}

func completeBudget(cfg *Config) error {
	cfg.PhaseBudget = prog.DefaultBudget()
	for name, r := range cfg.Budget {
		phase, err := prog.ParsePhase(name)
		if err != nil {
			return fmt.Errorf("bad config param budget: %w", err)
		}
		if phase == prog.PhaseCleanup {
			return fmt.Errorf("bad config param budget: cleanup size is not configurable")
		}
		cfg.PhaseBudget.Phases[phase] = r
	}
	if cfg.FaultPercent != nil {
		cfg.PhaseBudget.FaultPercent = *cfg.FaultPercent
	}
	if err := cfg.PhaseBudget.Validate(); err != nil {
		return fmt.Errorf("bad config param budget: %w", err)
	}
	return nil
}

func completeOracle(cfg *Config) error {
	if cfg.ScoreTimeout < 1 {
		return fmt.Errorf("bad config param score_timeout: '%v', want >= 1", cfg.ScoreTimeout)
	}
	cfg.ScoreTimeoutDur = time.Duration(cfg.ScoreTimeout) * time.Second
	switch cfg.Oracle {
	case OracleModel:
	case OracleExec:
		if cfg.Runner.Bin == "" {
			return fmt.Errorf("oracle is %v, but runner bin is empty", OracleExec)
		}
		if !strings.ContainsRune(cfg.Runner.Bin, '/') {
			bin, err := exec.LookPath(cfg.Runner.Bin)
			if err != nil {
				return fmt.Errorf("bad config param runner: %w", err)
			}
			cfg.Runner.Bin = bin
		}
		cfg.Runner.Bin = osutil.Abs(cfg.Runner.Bin)
		if !osutil.IsExist(cfg.Runner.Bin) {
			return fmt.Errorf("bad config param runner: can't find %v", cfg.Runner.Bin)
		}
		if cfg.Runner.Procs < 1 || cfg.Runner.Procs > 64 {
			return fmt.Errorf("bad config param runner procs: '%v', want [1, 64]", cfg.Runner.Procs)
		}
	default:
		return fmt.Errorf("config param oracle must be one of %v/%v", OracleModel, OracleExec)
	}
	return nil
}
