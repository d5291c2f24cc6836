// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tool contains helpers shared by the seedforge command line tools.
package tool

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

// Init parses the command line and starts profiling if -cpuprofile/-memprofile are given.
//
// Usage: defer tool.Init()()
func Init() func() {
	cpuprof := flag.String("cpuprofile", "", "write CPU profile to this file")
	memprof := flag.String("memprofile", "", "write heap profile to this file on exit")
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		Fail(err)
	}
	prof := &profiler{memFile: *memprof}
	if err := prof.start(*cpuprof); err != nil {
		Fail(err)
	}
	return func() {
		if err := prof.stop(); err != nil {
			Fail(err)
		}
	}
}

type profiler struct {
	cpu     *os.File
	memFile string
}

func (p *profiler) start(cpuFile string) error {
	if cpuFile == "" {
		return nil
	}
	f, err := os.Create(cpuFile)
	if err != nil {
		return fmt.Errorf("failed to create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to start cpu profile: %w", err)
	}
	p.cpu = f
	return nil
}

func (p *profiler) stop() error {
	if p.cpu != nil {
		pprof.StopCPUProfile()
		if err := p.cpu.Close(); err != nil {
			return err
		}
		p.cpu = nil
	}
	if p.memFile == "" {
		return nil
	}
	f, err := os.Create(p.memFile)
	if err != nil {
		return fmt.Errorf("failed to create heap profile: %w", err)
	}
	defer f.Close()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}

func Failf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

func Fail(err error) {
	Failf("%v", err)
}
