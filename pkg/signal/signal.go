// Copyright 2018 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package signal provides sets of reached branches used as corpus feedback.
// An element is a "function:branch" pair, each element carries a priority:
// branches reached by critical calls outrank ordinary ones.
package signal

import (
	"maps"
	"sort"
)

type Prio uint8

const (
	Regular Prio = iota
	Critical
)

type Signal map[string]Prio

// Elem returns the signal element for a branch of a function.
// Function names may contain ':' (C++ qualified names), branch ids may not.
func Elem(fn, branch string) string {
	return fn + ":" + branch
}

// FromBranches returns the signal of the given branches of fn.
func FromBranches(fn string, branches []string, prio Prio) Signal {
	s := make(Signal, len(branches))
	for _, br := range branches {
		s[Elem(fn, br)] = prio
	}
	return s
}

// FromRaw returns a signal with the given elements, e.g. API triples.
func FromRaw(elems []string, prio Prio) Signal {
	if len(elems) == 0 {
		return nil
	}
	s := make(Signal, len(elems))
	for _, e := range elems {
		s[e] = prio
	}
	return s
}

func (s Signal) Len() int {
	return len(s)
}

func (s Signal) Empty() bool {
	return len(s) == 0
}

func (s Signal) Copy() Signal {
	return maps.Clone(s)
}

// Elems returns sorted signal elements.
func (s Signal) Elems() []string {
	res := make([]string, 0, len(s))
	for e := range s {
		res = append(res, e)
	}
	sort.Strings(res)
	return res
}

// Diff returns elements of s1 that are missing in s or have a higher priority in s1.
func (s Signal) Diff(s1 Signal) Signal {
	var res Signal
	for e, p1 := range s1 {
		if p, ok := s[e]; ok && p >= p1 {
			continue
		}
		if res == nil {
			res = make(Signal)
		}
		res[e] = p1
	}
	return res
}

// Merge adds s1 to s keeping the highest priority of every element.
func (s *Signal) Merge(s1 Signal) {
	if s1.Empty() {
		return
	}
	if *s == nil {
		*s = make(Signal, len(s1))
	}
	for e, p1 := range s1 {
		if p, ok := (*s)[e]; !ok || p < p1 {
			(*s)[e] = p1
		}
	}
}

type Input[T any] struct {
	Signal Signal
	Item   T
}

// Minimize returns the items needed to cover the union of all signals.
// Every element is attributed to the first input with the highest priority for it,
// so the result is deterministic and keeps the input order.
func Minimize[T any](inputs []Input[T]) []T {
	type owner struct {
		prio Prio
		idx  int
	}
	owners := make(map[string]owner)
	for i, inp := range inputs {
		for e, p := range inp.Signal {
			if prev, ok := owners[e]; !ok || p > prev.prio {
				owners[e] = owner{p, i}
			}
		}
	}
	keep := make([]bool, len(inputs))
	for _, o := range owners {
		keep[o.idx] = true
	}
	var res []T
	for i, inp := range inputs {
		if keep[i] {
			res = append(res, inp.Item)
		}
	}
	return res
}
