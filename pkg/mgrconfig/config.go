// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mgrconfig

import (
	"time"

	"github.com/seedforge/seedforge/prog"
)

type Config struct {
	// Instance name (used for identification in logs and metrics).
	Name string `json:"name"`
	// Address to serve metrics on, e.g. "localhost:56741" (optional).
	HTTP string `json:"http,omitempty"`
	// Location of a working directory for the seed-manager process. Outputs here include:
	// - <workdir>/corpus.db: accepted sequences and visited counters of all libraries
	// - <workdir>/<library>/seeds/*.c: emitted seeds
	Workdir string `json:"workdir"`
	// Libraries to generate seeds for: names of built-in catalogs (e.g. "zlib")
	// or paths to catalog descriptor files (.yaml or .json).
	Catalogs []string `json:"catalogs"`
	// Number of seeds to emit per library.
	TargetCount int `json:"target_count"`
	// Number of libraries processed in parallel.
	Procs int `json:"procs"`
	// Seed of the random generator, 0 means seeding from the current time.
	Seed int64 `json:"seed,omitempty"`

	// Per-phase bounds on the number of calls, keyed by lowercase phase name, e.g.
	//	"budget": {"operate": {"min": 2, "max": 8}}
	// Phases not mentioned keep default bounds.
	Budget map[string]prog.Range `json:"budget,omitempty"`
	// Chance in percents of passing NULL into a nullable handle param.
	FaultPercent *int `json:"fault_percent,omitempty"`
	// Additional critical functions per library.
	Critical map[string][]string `json:"critical,omitempty"`

	// Source of branch coverage: "model" (default) scores sequences with the catalog branch model,
	// "exec" renders each sequence and feeds it to an instrumented runner (see Runner).
	Oracle string `json:"oracle"`
	Runner Runner `json:"runner"`
	// Timeout for scoring one sequence, in seconds.
	ScoreTimeout int `json:"score_timeout"`

	// Number of candidate sequences synthesized per round.
	RoundSize int `json:"round_size"`
	// The run of a library stops after this many consecutive rounds without new
	// branches, calls or API triples.
	ConvergeRounds int `json:"converge_rounds"`
	// The run of a library stops after this many candidates (0 means no limit).
	MaxAttempts int `json:"max_attempts"`
	// The run of a library stops after this many seconds (0 means no limit).
	GenTimeout int `json:"gen_timeout"`
	// Re-score a random corpus sequence when half of the quiet rounds have passed.
	Recheck bool `json:"recheck"`
	// Corpus minimization before emission: "" (none), "signal" or "triples".
	Minimize string `json:"minimize"`

	// C compiler used to check that emitted seeds compile, e.g. "gcc" (optional).
	Compiler string `json:"compiler,omitempty"`
	// Additional flags for the compiler, e.g. include paths of the libraries.
	CFlags []string `json:"cflags,omitempty"`
	// Reformat emitted seeds with clang-format.
	Format bool `json:"format,omitempty"`

	// Implementation details beyond this point. Filled after parsing.
	PhaseBudget     *prog.Budget  `json:"-"`
	ScoreTimeoutDur time.Duration `json:"-"`
	GenTimeoutDur   time.Duration `json:"-"`
}

// Runner is the instrumented harness used by the exec oracle.
// It reads a rendered seed on stdin and prints the reached branches as JSON:
//
//	{"calls": [{"branches": ["entry", "null"]}, ...]}
type Runner struct {
	Bin  string   `json:"bin"`
	Args []string `json:"args,omitempty"`
	// Number of runner processes executing concurrently across all libraries.
	Procs int `json:"procs"`
}

const (
	OracleModel = "model"
	OracleExec  = "exec"
)
