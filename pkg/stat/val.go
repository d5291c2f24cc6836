// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

type Val struct {
	name  string
	desc  string
	level Level
	val   atomic.Uint64
	ext   func() int
	fmt   func(int, time.Duration) string
	rate  bool
	hist  *histogram
}

func (v *Val) Add(val int) {
	switch {
	case v.ext != nil:
		panic(fmt.Sprintf("stat %v is in external mode", v.name))
	case v.hist != nil:
		v.hist.add(float64(val))
	default:
		v.val.Add(uint64(val))
	}
}

func (v *Val) Val() int {
	switch {
	case v.ext != nil:
		return v.ext()
	case v.hist != nil:
		return int(v.hist.snapshot(nil).mean)
	default:
		return int(v.val.Load())
	}
}

// Quantile returns the approximate q-quantile of a distribution metric.
func (v *Val) Quantile(q float64) float64 {
	if v.hist == nil {
		panic(fmt.Sprintf("stat %v is not a distribution", v.name))
	}
	return v.hist.snapshot([]float64{q}).quantiles[q]
}

const histogramBuckets = 255

type histogram struct {
	mu    sync.Mutex
	h     *gohistogram.NumericHistogram
	count uint64
	sum   float64
}

type histSnapshot struct {
	count     uint64
	sum       float64
	mean      float64
	quantiles map[float64]float64
}

func (h *histogram) add(val float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.h == nil {
		h.h = gohistogram.NewHistogram(histogramBuckets)
	}
	h.h.Add(val)
	h.count++
	h.sum += val
}

func (h *histogram) snapshot(qs []float64) histSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := histSnapshot{
		count:     h.count,
		sum:       h.sum,
		quantiles: make(map[float64]float64),
	}
	for _, q := range qs {
		res.quantiles[q] = 0
	}
	if h.h == nil {
		return res
	}
	res.mean = h.h.Mean()
	for _, q := range qs {
		res.quantiles[q] = h.h.Quantile(q)
	}
	return res
}

var summaryQuantiles = []float64{0.5, 0.9, 0.99}

// collector exports a single Val: distributions as summaries, rates as counters
// and everything else as gauges.
type collector struct {
	v    *Val
	desc *prometheus.Desc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	switch {
	case c.v.hist != nil:
		snap := c.v.hist.snapshot(summaryQuantiles)
		ch <- prometheus.MustNewConstSummary(c.desc, snap.count, snap.sum, snap.quantiles)
	case c.v.rate:
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.v.Val()))
	default:
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(c.v.Val()))
	}
}

func formatRate(v int, period time.Duration) string {
	secs := int(period.Seconds())
	switch {
	case v/secs >= 10:
		return fmt.Sprintf("%v (%v/sec)", v, v/secs)
	case v*60/secs >= 10:
		return fmt.Sprintf("%v (%v/min)", v, v*60/secs)
	}
	return fmt.Sprintf("%v (%v/hour)", v, v*3600/secs)
}
