// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package manager drives seed generation: it runs the synthesize, validate, score
// and save loop for each configured library until the corpus converges, then emits seeds.
package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/seedforge/seedforge/pkg/catalog"
	"github.com/seedforge/seedforge/pkg/config"
	"github.com/seedforge/seedforge/pkg/corpus"
	"github.com/seedforge/seedforge/pkg/csource"
	"github.com/seedforge/seedforge/pkg/log"
	"github.com/seedforge/seedforge/pkg/mgrconfig"
	"github.com/seedforge/seedforge/pkg/oracle"
	"github.com/seedforge/seedforge/pkg/osutil"
	"github.com/seedforge/seedforge/pkg/validator"
	"github.com/seedforge/seedforge/prog"
	"github.com/seedforge/seedforge/sys"
	"golang.org/x/sync/errgroup"
)

// Artifact is one emitted seed.
type Artifact struct {
	Library string
	ID      int
	// Path is the seed file in the workdir, empty for in-memory runs.
	Path string
	Data []byte
	Seq  *prog.Sequence
}

type Manager struct {
	cfg    *mgrconfig.Config
	oracle oracle.Oracle
	store  *Store
	seed   int64

	mu      sync.Mutex
	results []*Result
	libs    map[string]*library
}

// Result is the outcome of one library run.
type Result struct {
	Library   string
	Artifacts []Artifact
	Attempts  int
	Rounds    int
	Stop      string
	Err       error
}

func New(cfg *mgrconfig.Config) (*Manager, error) {
	mgr := &Manager{
		cfg:     cfg,
		seed:    cfg.Seed,
		results: make([]*Result, len(cfg.Catalogs)),
		libs:    make(map[string]*library),
	}
	if mgr.seed == 0 {
		mgr.seed = time.Now().UnixNano()
	}
	switch cfg.Oracle {
	case "", mgrconfig.OracleModel:
		mgr.oracle = oracle.Model{}
	case mgrconfig.OracleExec:
		mgr.oracle = oracle.NewExec(cfg.Runner.Bin, cfg.Runner.Args, cfg.Runner.Procs,
			cfg.ScoreTimeoutDur, csource.Render)
	default:
		return nil, fmt.Errorf("unknown oracle %q", cfg.Oracle)
	}
	if cfg.Workdir != "" {
		if err := osutil.MkdirAll(cfg.Workdir); err != nil {
			return nil, fmt.Errorf("failed to create workdir: %w", err)
		}
		store, err := OpenStore(cfg.Workdir)
		if err != nil {
			return nil, err
		}
		mgr.store = store
		// The effective config with the actual seed, so that the run can be reproduced.
		used := *cfg
		used.Seed = mgr.seed
		if err := config.SaveFile(filepath.Join(cfg.Workdir, "manager.yaml"), &used); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
	}
	return mgr, nil
}

// Generate is the invocation contract for a single library: it synthesizes up to
// targetCount seeds for the catalog at catalogPath (or a built-in catalog name)
// with default settings and returns them without touching the file system.
func Generate(ctx context.Context, catalogPath string, targetCount int) ([]Artifact, error) {
	if targetCount < 1 {
		return nil, fmt.Errorf("bad target count %v", targetCount)
	}
	cfg := mgrconfig.Default()
	cfg.Catalogs = []string{catalogPath}
	cfg.TargetCount = targetCount
	mgr, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return mgr.Run(ctx)
}

// Run processes all configured libraries, at most cfg.Procs at a time.
// A library that fails (e.g. its catalog is inconsistent) is reported and skipped,
// other libraries continue. The returned error joins all library errors.
func (mgr *Manager) Run(ctx context.Context) ([]Artifact, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(mgr.cfg.Procs, 1))
	for i, name := range mgr.cfg.Catalogs {
		g.Go(func() error {
			res := mgr.runLibrary(gctx, name)
			mgr.mu.Lock()
			mgr.results[i] = res
			mgr.mu.Unlock()
			// Only cancellation stops the other libraries.
			return gctx.Err()
		})
	}
	groupErr := g.Wait()
	if mgr.store != nil {
		if err := mgr.store.Flush(); err != nil {
			return nil, fmt.Errorf("failed to save corpus database: %w", err)
		}
	}
	if groupErr != nil {
		return nil, groupErr
	}
	var arts []Artifact
	var errs []error
	for _, res := range mgr.Results() {
		arts = append(arts, res.Artifacts...)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return arts, errors.Join(errs...)
}

// Results returns finished library runs.
func (mgr *Manager) Results() []*Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	var res []*Result
	for _, r := range mgr.results {
		if r != nil {
			res = append(res, r)
		}
	}
	return res
}

// LoadCatalog loads a catalog descriptor file, or a built-in catalog if name is not a path.
func LoadCatalog(name string) (*prog.Catalog, error) {
	var cat *prog.Catalog
	var err error
	if isCatalogFile(name) {
		cat, err = catalog.LoadFile(name)
	} else {
		cat, err = sys.Get(name)
	}
	if err != nil {
		return nil, err
	}
	if err := validator.Catalog(cat); err != nil {
		return nil, fmt.Errorf("bad names in catalog %v: %w", name, err)
	}
	return cat, nil
}

func isCatalogFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return strings.ContainsRune(name, filepath.Separator) || osutil.IsExist(name)
}

func libraryName(name string) string {
	if isCatalogFile(name) {
		return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	return name
}

func (mgr *Manager) runLibrary(ctx context.Context, name string) *Result {
	res := &Result{Library: libraryName(name)}
	cat, err := LoadCatalog(name)
	if err != nil {
		res.Err = err
		log.Errorf("%v", err)
		return res
	}
	res.Library = cat.Library
	lib, err := mgr.newLibrary(cat)
	if err != nil {
		res.Err = fmt.Errorf("%v: %w", cat.Library, err)
		log.Errorf("%v", res.Err)
		return res
	}
	mgr.mu.Lock()
	mgr.libs[cat.Library] = lib
	mgr.mu.Unlock()
	res.Artifacts, res.Err = lib.run(ctx, res)
	return res
}

// Corpus returns the corpus of a started library run, or nil.
func (mgr *Manager) Corpus(lib string) *corpus.Corpus {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if l := mgr.libs[lib]; l != nil {
		return l.corpus
	}
	return nil
}

// Libraries returns names of started library runs.
func (mgr *Manager) Libraries() []string {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	var names []string
	for name := range mgr.libs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
