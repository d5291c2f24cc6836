// Copyright 2019 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"math/rand"
	"sort"
)

// Rotator selects a random subset of functions for a synthesis round.
// It is used once every function of the library is covered, so that
// priority ordering does not keep producing the same sequences.
// Selected subsets are closed: every handle type used by a selected function
// has a selected constructor, every produced handle type has a selected destructor.
type Rotator struct {
	cat          *Catalog
	calls        map[*Function]bool
	rnd          *rand.Rand
	resourceless []*Function
	resources    map[*ResourceDesc]rotatorResource
	goal         int
}

type rotatorResource struct {
	// 0 - ctors that don't require other handles as inputs (e.g. cJSON_CreateObject).
	// 1 - ctors that require other handles (e.g. cJSON_Duplicate).
	ctors [2][]*Function
	uses  []*Function
	dtors []*Function
}

func MakeRotator(cat *Catalog, calls map[*Function]bool, rnd *rand.Rand) *Rotator {
	r := &Rotator{
		cat:       cat,
		calls:     calls,
		rnd:       rnd,
		resources: make(map[*ResourceDesc]rotatorResource),
	}
	for _, fn := range cat.Functions {
		if !calls[fn] {
			continue
		}
		inputs := fn.inputResources()
		outputs := fn.outputResources()
		for _, p := range inputs {
			info := r.resources[p.Res]
			if fn.Effect == EffectFrees && p.Kind == ParamOwns {
				info.dtors = append(info.dtors, fn)
			} else {
				info.uses = append(info.uses, fn)
			}
			r.resources[p.Res] = info
		}
		for _, res := range outputs {
			info := r.resources[res]
			class := 0
			if fn.NeedsHandles() {
				class = 1
			}
			info.ctors[class] = append(info.ctors[class], fn)
			r.resources[res] = info
		}
		if len(inputs)+len(outputs) == 0 {
			r.resourceless = append(r.resourceless, fn)
		}
	}
	r.goal = len(calls) * 2 / 3
	if r.goal < 1 {
		r.goal = 1
	}
	return r
}

func (r *Rotator) Select() map[*Function]bool {
	rs := rotatorState{
		Rotator: r,
		calls:   make(map[*Function]bool),
	}
	return rs.Select()
}

type rotatorState struct {
	*Rotator
	calls    map[*Function]bool
	depQueue []*Function
}

func (rs *rotatorState) Select() map[*Function]bool {
	var top []*ResourceDesc
	for res := range rs.resources {
		top = append(top, res)
	}
	sort.Slice(top, func(i, j int) bool {
		return top[i].Name < top[j].Name
	})
	rs.rnd.Shuffle(len(top), func(i, j int) {
		top[i], top[j] = top[j], top[i]
	})
	rs.selectCalls(rs.resourceless, 2, false)
	for len(rs.calls) < rs.goal && len(top) != 0 {
		info := rs.resources[top[0]]
		top = top[1:]
		rs.selectCalls(info.ctors[0], 3, true)
		rs.selectCalls(info.ctors[1], 3, len(info.ctors[0]) == 0)
		rs.selectCalls(info.uses, 5, true)
		rs.closeDeps()
	}
	calls, _ := rs.cat.TransitivelyEnabledCalls(rs.calls)
	for fn := range rs.calls {
		if !calls[fn] {
			delete(rs.calls, fn)
		}
	}
	rs.closeDeps()
	return rs.calls
}

// closeDeps adds constructors for all handle inputs and destructors
// for all produced handles of the selected functions.
func (rs *rotatorState) closeDeps() {
	for len(rs.depQueue) != 0 {
		fn := rs.depQueue[0]
		rs.depQueue = rs.depQueue[1:]
		for _, p := range fn.inputResources() {
			info := rs.resources[p.Res]
			if !rs.haveAny(info.ctors[0]) && !rs.haveAny(info.ctors[1]) {
				if len(info.ctors[0]) != 0 {
					rs.selectCalls(info.ctors[0], 2, true)
				} else {
					rs.selectCalls(info.ctors[1], 2, true)
				}
			}
		}
		for _, res := range fn.outputResources() {
			dtors := rs.cat.Dtors(res)
			if !rs.haveAny(dtors) && len(dtors) != 0 {
				rs.addCall(dtors[rs.rnd.Intn(len(dtors))])
			}
		}
	}
}

func (rs *rotatorState) haveAny(set []*Function) bool {
	for _, fn := range set {
		if rs.calls[fn] {
			return true
		}
	}
	return false
}

func (rs *rotatorState) addCall(fn *Function) {
	if rs.calls[fn] || !rs.Rotator.calls[fn] {
		return
	}
	rs.calls[fn] = true
	rs.depQueue = append(rs.depQueue, fn)
}

func (rs *rotatorState) selectCalls(set []*Function, probability int, force bool) {
	if !force && probability < 2 {
		panic("will never select anything")
	}
	for ; len(set) != 0 && (force || rs.rnd.Intn(probability) != 0); force = false {
		rs.addCall(set[rs.rnd.Intn(len(set))])
	}
}
