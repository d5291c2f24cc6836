// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// seed-lint checks library catalogs: it loads them (including name checks), synthesizes a number
// of sequences and verifies that accepted ones pass the lifecycle validator and render.
// With -compiler it also compiles one rendered seed per catalog.
// Usage:
//
//	seed-lint [-catalogs zlib,path/to/lib.yaml] [-synth 100] [-compiler gcc]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"

	"github.com/seedforge/seedforge/pkg/csource"
	"github.com/seedforge/seedforge/pkg/log"
	"github.com/seedforge/seedforge/pkg/manager"
	"github.com/seedforge/seedforge/pkg/oracle"
	"github.com/seedforge/seedforge/pkg/quality"
	"github.com/seedforge/seedforge/pkg/tool"
	"github.com/seedforge/seedforge/prog"
	"github.com/seedforge/seedforge/sys"
)

var (
	flagCatalogs tool.ListFlag
	flagSynth    = flag.Int("synth", 100, "number of sequences to synthesize per catalog")
	flagSeed     = flag.Int64("seed", 0, "random seed")
	flagCompiler = flag.String("compiler", "", "compile one seed per catalog with this compiler")
	flagCFlags   = flag.String("cflags", "", "space-separated additional compiler flags")
	flagVerbose  = flag.Bool("v", false, "print catalog details")
)

func main() {
	flag.Var(&flagCatalogs, "catalogs", "comma-separated list of built-in catalog names or descriptor files")
	defer tool.Init()()
	failed := false
	for _, name := range flagCatalogs.Or(sys.List()) {
		if err := lint(name); err != nil {
			fmt.Fprintf(os.Stderr, "%v: %v\n", name, err)
			failed = true
			continue
		}
	}
	if failed {
		os.Exit(1)
	}
}

func lint(name string) error {
	cat, err := manager.LoadCatalog(name)
	if err != nil {
		return err
	}
	if *flagVerbose {
		printCatalog(cat)
	}
	rs := rand.NewSource(*flagSeed)
	scorer, err := quality.NewScorer(cat, oracle.Model{}, quality.Options{})
	if err != nil {
		return err
	}
	violations := make(map[string]int)
	accepted := 0
	var sample *prog.Sequence
	var sampleReport *quality.Report
	for i := 0; i < *flagSynth; i++ {
		seq, err := cat.Synthesize(nil, rs)
		if err != nil {
			if errors.Is(err, prog.ErrUnknownFunction) || errors.Is(err, prog.ErrMalformedSequence) {
				return fmt.Errorf("synthesized a broken sequence: %w", err)
			}
			log.Logf(1, "%v: synthesis failed: %v", cat.Library, err)
			continue
		}
		if err := prog.Validate(seq); err != nil {
			v, ok := prog.AsViolation(err)
			if !ok {
				return fmt.Errorf("synthesized a broken sequence: %w\n%s", err, seq.Serialize())
			}
			violations[v.Kind.String()]++
			continue
		}
		rep, err := scorer.Score(context.Background(), seq)
		if err != nil {
			return fmt.Errorf("failed to score %v: %w", seq, err)
		}
		if _, err := csource.Emit(seq, rep, i); err != nil {
			return fmt.Errorf("failed to emit %v: %w", seq, err)
		}
		accepted++
		if sample == nil || rep.Score() > sampleReport.Score() {
			sample, sampleReport = seq, rep
		}
	}
	fmt.Printf("%-10v functions: %v, disabled: %v, branches: %v, accepted %v/%v",
		cat.Library, len(cat.Functions), len(cat.Disabled), cat.TotalBranches(), accepted, *flagSynth)
	for _, kind := range sortedKeys(violations) {
		fmt.Printf(", %v: %v", kind, violations[kind])
	}
	fmt.Printf("\n")
	if *flagSynth != 0 && accepted == 0 {
		return fmt.Errorf("no valid sequences synthesized")
	}
	if *flagCompiler != "" && sample != nil {
		src, err := csource.Emit(sample, sampleReport, 0)
		if err != nil {
			return err
		}
		obj, err := csource.Build(*flagCompiler, src, strings.Fields(*flagCFlags)...)
		if err != nil {
			return fmt.Errorf("seed does not compile: %w\n%s", err, src)
		}
		os.Remove(obj)
	}
	return nil
}

func printCatalog(cat *prog.Catalog) {
	for _, fn := range cat.Functions {
		qualified := ""
		if fn.QualifiedName != fn.Name {
			qualified = fn.QualifiedName
		}
		critical := ""
		if fn.Critical {
			critical = " critical"
		}
		fmt.Printf("\t%v%v: %v, %v branches %v\n", fn.Name, critical, fn.Effect, len(fn.Branches)+1, qualified)
		if reason := cat.Disabled[fn]; reason != "" {
			fmt.Printf("\t\tdisabled: %v\n", reason)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
