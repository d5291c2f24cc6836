// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"sync"
	"time"
)

type AverageParameter interface {
	time.Duration | float64
}

// AverageValue keeps the running mean and the maximum of a series,
// e.g. of oracle latency or seed density.
type AverageValue[T AverageParameter] struct {
	mu   sync.Mutex
	n    int64
	mean T
	max  T
}

func (av *AverageValue[T]) Save(val T) {
	av.mu.Lock()
	defer av.mu.Unlock()
	av.n++
	av.mean += (val - av.mean) / T(av.n)
	if av.n == 1 || val > av.max {
		av.max = val
	}
}

func (av *AverageValue[T]) Value() T {
	av.mu.Lock()
	defer av.mu.Unlock()
	return av.mean
}

func (av *AverageValue[T]) Max() T {
	av.mu.Lock()
	defer av.mu.Unlock()
	return av.max
}

func (av *AverageValue[T]) Count() int64 {
	av.mu.Lock()
	defer av.mu.Unlock()
	return av.n
}
