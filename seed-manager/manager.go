// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// seed-manager generates seeds for the configured libraries until their corpora converge.
// Usage:
//
//	seed-manager -config seedforge.cfg
package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/seedforge/seedforge/pkg/log"
	"github.com/seedforge/seedforge/pkg/manager"
	"github.com/seedforge/seedforge/pkg/mgrconfig"
	"github.com/seedforge/seedforge/pkg/osutil"
	"github.com/seedforge/seedforge/pkg/stat"
	"github.com/seedforge/seedforge/pkg/tool"
)

var (
	flagConfig = flag.String("config", "", "configuration file")
	flagDebug  = flag.Bool("debug", false, "dump all output to console (useful for debugging catalogs)")
)

func main() {
	defer tool.Init()()
	log.EnableLogCaching(1000, 1<<20)
	cfg, err := mgrconfig.LoadFile(*flagConfig)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *flagDebug {
		log.SetVerbosity(3)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	osutil.HandleInterrupts(cancel)

	mgr, err := manager.New(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if cfg.HTTP != "" {
		serv := &manager.HTTPServer{
			Cfg:       cfg,
			Manager:   mgr,
			StartTime: time.Now(),
		}
		go func() {
			if err := serv.Serve(ctx); err != nil {
				log.Errorf("failed to serve http: %v", err)
			}
		}()
	}
	go heartbeat(ctx)

	arts, err := mgr.Run(ctx)
	for _, res := range mgr.Results() {
		if res.Err != nil {
			log.Logf(0, "%-10v failed: %v", res.Library, res.Err)
			continue
		}
		log.Logf(0, "%-10v %v seeds, %v attempts, %v rounds: %v",
			res.Library, len(res.Artifacts), res.Attempts, res.Rounds, res.Stop)
	}
	if ctx.Err() != nil {
		log.Logf(0, "interrupted, corpus is saved in %v", cfg.Workdir)
		return
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Logf(0, "emitted %v seeds to %v", len(arts), cfg.Workdir)
}

func heartbeat(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var stats []string
		for _, st := range stat.Collect(stat.Console) {
			stats = append(stats, fmt.Sprintf("%v=%v", st.Name, st.Value))
		}
		log.Logf(0, "%v", strings.Join(stats, " "))
	}
}
