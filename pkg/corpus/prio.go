// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"sort"
	"sync"
)

// ProgramsList picks items with probability proportional to their signal.
type ProgramsList struct {
	mu       sync.RWMutex
	items    []*Item
	sumPrios int64
	accPrios []int64
}

func (pl *ProgramsList) ChooseItem(r *rand.Rand) *Item {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	if len(pl.items) == 0 {
		return nil
	}
	randVal := r.Int63n(pl.sumPrios + 1)
	idx := sort.Search(len(pl.accPrios), func(i int) bool {
		return pl.accPrios[i] >= randVal
	})
	return pl.items[idx]
}

func (pl *ProgramsList) saveProgram(item *Item) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	prio := int64(item.Signal.Len())
	if prio == 0 {
		prio = 1
	}
	pl.sumPrios += prio
	pl.accPrios = append(pl.accPrios, pl.sumPrios)
	pl.items = append(pl.items, item)
}

func (pl *ProgramsList) replace(other *ProgramsList) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.sumPrios = other.sumPrios
	pl.accPrios = other.accPrios
	pl.items = other.items
}
