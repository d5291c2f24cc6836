// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stat provides named process metrics.
// Every metric is shown in the heartbeat log and on the web UI according to its Level,
// metrics created with the Prometheus option are also exported through Registry.
//
//	statFoo := stat.New("metric name", "metric description", stat.Rate{})
//	statFoo.Add(1)
package stat

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type UI struct {
	Name  string
	Desc  string
	Level Level
	Value string
	V     int
}

// Registry holds all exported Prometheus metrics of the process.
var Registry = prometheus.NewRegistry()

var global = newSet(Registry, time.Now)

func New(name, desc string, opts ...any) *Val {
	return global.New(name, desc, opts...)
}

func Collect(level Level) []UI {
	return global.Collect(level)
}

// Level controls where the metric is shown: Console metrics are printed in heartbeat logs,
// Simple ones are on the main web page, All are on the full list.
type Level int

const (
	All Level = iota
	Simple
	Console
)

// Prometheus exports the metric to Prometheus under the given name.
type Prometheus string

// Labels are constant Prometheus labels of the metric, e.g. the library name.
// Metrics of different libraries share the Prometheus name and differ in labels.
type Labels map[string]string

// Rate shows the metric as a total with its rate per unit of time, it's exported as a counter.
type Rate struct{}

// Distribution keeps a histogram of the added samples, the value is their mean.
// It's exported as a summary.
type Distribution struct{}

// FormatPercent formats values stored in basis points (1/100 of a percent).
func FormatPercent(v int, period time.Duration) string {
	return fmt.Sprintf("%v.%02d%%", v/100, v%100)
}

type set struct {
	mu    sync.Mutex
	vals  map[string]*Val
	reg   *prometheus.Registry
	now   func() time.Time
	start time.Time
}

func newSet(reg *prometheus.Registry, now func() time.Time) *set {
	return &set{
		vals:  make(map[string]*Val),
		reg:   reg,
		now:   now,
		start: now(),
	}
}

// New creates a metric. Besides the option types above, opts may contain
// a 'func() int' that reads the value on demand and
// a 'func(int, time.Duration) string' that formats the value.
func (s *set) New(name, desc string, opts ...any) *Val {
	v := &Val{
		name: name,
		desc: desc,
		fmt:  func(v int, _ time.Duration) string { return strconv.Itoa(v) },
	}
	var promName string
	var labels Labels
	for _, opt := range opts {
		switch opt := opt.(type) {
		case Level:
			v.level = opt
		case Rate:
			v.rate = true
			v.fmt = formatRate
		case Distribution:
			v.hist = new(histogram)
		case func() int:
			v.ext = opt
		case func(int, time.Duration) string:
			v.fmt = opt
		case Prometheus:
			promName = string(opt)
		case Labels:
			labels = opt
		default:
			panic(fmt.Sprintf("unknown stat option %#v", opt))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vals[name] != nil {
		panic(fmt.Sprintf("duplicate stat %v", name))
	}
	if promName != "" {
		desc := prometheus.NewDesc(promName, desc, nil, prometheus.Labels(labels))
		if err := s.reg.Register(&collector{v, desc}); err != nil {
			panic(fmt.Sprintf("failed to export %v: %v", name, err))
		}
	}
	s.vals[name] = v
	return v
}

// Collect returns metrics of at least the given level, most important first.
func (s *set) Collect(level Level) []UI {
	s.mu.Lock()
	defer s.mu.Unlock()
	period := max(s.now().Sub(s.start).Truncate(time.Second), time.Second)
	var res []UI
	for _, v := range s.vals {
		if v.level < level {
			continue
		}
		val := v.Val()
		res = append(res, UI{v.name, v.desc, v.level, v.fmt(val, period), val})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Level != res[j].Level {
			return res[i].Level > res[j].Level
		}
		return res[i].Name < res[j].Name
	})
	return res
}
