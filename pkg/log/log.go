// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log is a leveled logger shared by all packages.
// The verbosity is set with the -vv flag. Library runs use named loggers,
// so that output of parallel runs can be told apart. Recent output can be kept
// in memory and shown on the web UI.
package log

import (
	"flag"
	"fmt"
	golog "log"
	"strings"
	"sync"
	"time"
)

var (
	flagV       = flag.Int("vv", 0, "verbosity")
	mu          sync.Mutex
	cache       *ring
	prependTime = true // for testing
)

// ring keeps the most recent lines that fit into both limits.
// The newest line is always kept.
type ring struct {
	lines  []string
	next   int
	mem    int
	maxMem int
}

func (r *ring) push(line string) {
	r.drop(r.next)
	r.lines[r.next] = line
	r.mem += len(line)
	r.next = (r.next + 1) % len(r.lines)
	for i := 0; i < len(r.lines)-1 && r.mem > r.maxMem; i++ {
		r.drop((r.next + i) % len(r.lines))
	}
}

func (r *ring) drop(pos int) {
	r.mem -= len(r.lines[pos])
	r.lines[pos] = ""
}

func (r *ring) String() string {
	var sb strings.Builder
	for i := range r.lines {
		if line := r.lines[(r.next+i)%len(r.lines)]; line != "" {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// EnableLogCaching keeps up to maxLines (but no more than maxMem bytes)
// of level 0 and 1 output for CachedLogOutput.
func EnableLogCaching(maxLines, maxMem int) {
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	mu.Lock()
	defer mu.Unlock()
	if cache != nil {
		Fatalf("log caching is already enabled")
	}
	cache = &ring{lines: make([]string, maxLines), maxMem: maxMem}
}

func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	if cache == nil {
		return ""
	}
	return cache.String()
}

// V reports whether verbosity level v is enabled.
func V(v int) bool {
	return v <= *flagV
}

// SetVerbosity overrides the -vv flag, used by tools that have their own flags.
func SetVerbosity(v int) {
	*flagV = v
}

func Logf(v int, msg string, args ...any) {
	write(v, "", msg, args...)
}

func Errorf(msg string, args ...any) {
	write(0, "ERROR: ", msg, args...)
}

func Fatal(err error) {
	golog.Fatal("FATAL: ", err)
}

func Fatalf(msg string, args ...any) {
	golog.Fatalf("FATAL: "+msg, args...)
}

// Logger prefixes all messages with the name of a library run.
type Logger struct {
	prefix string
}

func Named(name string) *Logger {
	return &Logger{prefix: name + ": "}
}

func (l *Logger) Logf(v int, msg string, args ...any) {
	write(v, l.prefix, msg, args...)
}

func (l *Logger) Errorf(msg string, args ...any) {
	write(0, l.prefix+"ERROR: ", msg, args...)
}

func write(v int, prefix, msg string, args ...any) {
	text := prefix + fmt.Sprintf(msg, args...)
	if v <= 1 {
		mu.Lock()
		if cache != nil {
			line := text
			if prependTime {
				line = time.Now().Format("2006/01/02 15:04:05 ") + line
			}
			cache.push(line)
		}
		mu.Unlock()
	}
	if V(v) {
		golog.Print(text)
	}
}

// VerboseWriter logs everything written to it at the given level, e.g. HTTP access logs.
type VerboseWriter int

func (w VerboseWriter) Write(data []byte) (int, error) {
	Logf(int(w), "%s", strings.TrimSuffix(string(data), "\n"))
	return len(data), nil
}
