// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// seed-db inspects the persisted corpus of seed-manager.
// Usage:
//
//	seed-db -workdir dir list
//	seed-db -workdir dir check
//	seed-db -workdir dir print library sig
//	seed-db -workdir dir unpack outdir
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/seedforge/seedforge/pkg/csource"
	"github.com/seedforge/seedforge/pkg/manager"
	"github.com/seedforge/seedforge/pkg/osutil"
	"github.com/seedforge/seedforge/pkg/tool"
	"github.com/seedforge/seedforge/prog"
)

var (
	flagWorkdir  = flag.String("workdir", "", "seed-manager workdir with corpus.db")
	flagCatalogs tool.ListFlag
)

func main() {
	flag.Var(&flagCatalogs, "catalogs", "descriptor files of non built-in libraries in the corpus")
	defer tool.Init()()
	args := flag.Args()
	if *flagWorkdir == "" || len(args) == 0 {
		usage()
	}
	if !osutil.IsExist(filepath.Join(*flagWorkdir, "corpus.db")) {
		tool.Failf("no corpus.db in %v", *flagWorkdir)
	}
	store, err := manager.OpenStore(*flagWorkdir)
	if err != nil {
		tool.Fail(err)
	}
	switch {
	case args[0] == "list" && len(args) == 1:
		list(store)
	case args[0] == "check" && len(args) == 1:
		check(store)
	case args[0] == "print" && len(args) == 3:
		printSeq(store, args[1], args[2])
	case args[0] == "unpack" && len(args) == 2:
		unpack(store, args[1])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  seed-db -workdir dir list\n")
	fmt.Fprintf(os.Stderr, "  seed-db -workdir dir check\n")
	fmt.Fprintf(os.Stderr, "  seed-db -workdir dir print library sig\n")
	fmt.Fprintf(os.Stderr, "  seed-db -workdir dir unpack outdir\n")
	os.Exit(1)
}

func list(store *manager.Store) {
	fmt.Printf("run %v\n", store.RunID())
	records := store.Records()
	for _, lib := range sortedLibraries(records) {
		fmt.Printf("%-10v %v sequences\n", lib, len(records[lib]))
		for _, sig := range records[lib] {
			fmt.Printf("\t%v\n", sig)
		}
	}
}

// check re-validates every persisted sequence against the current catalogs.
func check(store *manager.Store) {
	records := store.Records()
	broken := 0
	for _, lib := range sortedLibraries(records) {
		cat, err := catalog(lib)
		if err != nil {
			fmt.Printf("%v: %v\n", lib, err)
			broken += len(records[lib])
			continue
		}
		for _, sig := range records[lib] {
			seq, rep, err := store.Load(cat, sig)
			if err == nil {
				_, err = csource.Emit(seq, rep, 0)
			}
			if err != nil {
				fmt.Printf("%v/%v: %v\n", lib, sig, err)
				broken++
			}
		}
	}
	if broken != 0 {
		tool.Failf("%v broken sequences", broken)
	}
	fmt.Printf("all sequences are valid\n")
}

func printSeq(store *manager.Store, lib, sig string) {
	cat, err := catalog(lib)
	if err != nil {
		tool.Fail(err)
	}
	seq, rep, err := store.Load(cat, sig)
	if err != nil {
		tool.Fail(err)
	}
	src, err := csource.Emit(seq, rep, 0)
	if err != nil {
		tool.Fail(err)
	}
	fmt.Printf("%s\n%s", seq.Serialize(), src)
}

// unpack writes every persisted sequence as outdir/<library>/<sig>.
func unpack(store *manager.Store, dir string) {
	records := store.Records()
	for _, lib := range sortedLibraries(records) {
		cat, err := catalog(lib)
		if err != nil {
			tool.Fail(err)
		}
		if err := osutil.MkdirAll(filepath.Join(dir, lib)); err != nil {
			tool.Fail(err)
		}
		for _, sig := range records[lib] {
			seq, _, err := store.Load(cat, sig)
			if err != nil {
				tool.Failf("%v/%v: %v", lib, sig, err)
			}
			if err := osutil.WriteFile(filepath.Join(dir, lib, sig), seq.Serialize()); err != nil {
				tool.Failf("failed to output file: %v", err)
			}
		}
	}
}

func catalog(lib string) (*prog.Catalog, error) {
	for _, file := range flagCatalogs {
		cat, err := manager.LoadCatalog(file)
		if err != nil {
			return nil, err
		}
		if cat.Library == lib {
			return cat, nil
		}
	}
	return manager.LoadCatalog(lib)
}

func sortedLibraries(records map[string][]string) []string {
	var libs []string
	for lib := range records {
		libs = append(libs, lib)
	}
	sort.Strings(libs)
	return libs
}
