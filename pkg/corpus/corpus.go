// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/seedforge/seedforge/pkg/hash"
	"github.com/seedforge/seedforge/pkg/quality"
	"github.com/seedforge/seedforge/pkg/signal"
	"github.com/seedforge/seedforge/prog"
)

// Corpus is the set of accepted sequences of one library run
// that cover the library up to the currently reached frontiers.
type Corpus struct {
	ctx     context.Context
	cat     *prog.Catalog
	mu      sync.RWMutex
	seqs    map[string]*Item
	nextID  int
	signal  signal.Signal   // total signal of all items
	calls   map[string]bool // all called functions
	triples map[string]bool // all API 3-grams
	updates chan<- NewItemEvent
	ProgramsList
}

func NewCorpus(ctx context.Context, cat *prog.Catalog) *Corpus {
	return NewMonitoredCorpus(ctx, cat, nil)
}

func NewMonitoredCorpus(ctx context.Context, cat *prog.Catalog, updates chan<- NewItemEvent) *Corpus {
	return &Corpus{
		ctx:     ctx,
		cat:     cat,
		seqs:    make(map[string]*Item),
		calls:   make(map[string]bool),
		triples: make(map[string]bool),
		updates: updates,
	}
}

// Item objects are to be treated as immutable, otherwise it's just
// too hard to synchonize accesses to them across the whole project.
type Item struct {
	ID      int    // insertion order, also the emitted seed id
	Sig     string // hash of the serialized sequence
	Seq     *prog.Sequence
	SeqData []byte // to save some Serialize() calls
	Report  *quality.Report
	Signal  signal.Signal
	Triples []string
}

func (item *Item) String() string {
	return item.Seq.String()
}

// Novelty is what a sequence adds on top of the corpus.
type Novelty struct {
	Signal  int
	Calls   int
	Triples int
}

func (n Novelty) Empty() bool {
	return n.Signal == 0 && n.Calls == 0 && n.Triples == 0
}

type NewItemEvent struct {
	ID      int
	Sig     string
	SeqData []byte
	Report  *quality.Report
	Novelty Novelty
}

// Triples returns API 3-grams of the call name list.
func Triples(names []string) []string {
	var res []string
	for i := 0; i+3 <= len(names); i++ {
		res = append(res, strings.Join(names[i:i+3], ","))
	}
	return res
}

// Novelty returns what the scored sequence would add to the corpus.
func (corpus *Corpus) Novelty(seq *prog.Sequence, rep *quality.Report) Novelty {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return corpus.novelty(seq.Names(), rep)
}

func (corpus *Corpus) novelty(names []string, rep *quality.Report) Novelty {
	res := Novelty{
		Signal: corpus.signal.Diff(rep.Signal()).Len(),
	}
	seen := make(map[string]bool)
	for _, name := range rep.LibraryCalls {
		if !corpus.calls[name] && !seen[name] {
			seen[name] = true
			res.Calls++
		}
	}
	for _, tri := range Triples(names) {
		if !corpus.triples[tri] && !seen[tri] {
			seen[tri] = true
			res.Triples++
		}
	}
	return res
}

// Save adds the sequence if it brings anything new.
// Returns the new item and its novelty, or nil if the sequence is redundant.
func (corpus *Corpus) Save(seq *prog.Sequence, rep *quality.Report) (*Item, Novelty) {
	data := seq.Serialize()
	sig := hash.String(data)
	names := seq.Names()

	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	if corpus.seqs[sig] != nil {
		return nil, Novelty{}
	}
	novelty := corpus.novelty(names, rep)
	if novelty.Empty() {
		return nil, novelty
	}
	item := &Item{
		ID:      corpus.nextID,
		Sig:     sig,
		Seq:     seq,
		SeqData: data,
		Report:  rep,
		Signal:  rep.Signal(),
		Triples: Triples(names),
	}
	corpus.nextID++
	corpus.add(item)
	corpus.saveProgram(item)
	if corpus.updates != nil {
		select {
		case <-corpus.ctx.Done():
		case corpus.updates <- NewItemEvent{
			ID:      item.ID,
			Sig:     sig,
			SeqData: data,
			Report:  rep,
			Novelty: novelty,
		}:
		}
	}
	return item, novelty
}

// Restore adds a previously saved item with its old id unconditionally, used on resume.
// Items must be restored in the id order.
func (corpus *Corpus) Restore(id int, seq *prog.Sequence, rep *quality.Report) *Item {
	data := seq.Serialize()
	sig := hash.String(data)
	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	if old := corpus.seqs[sig]; old != nil {
		return old
	}
	if id < corpus.nextID {
		id = corpus.nextID
	}
	item := &Item{
		ID:      id,
		Sig:     sig,
		Seq:     seq,
		SeqData: data,
		Report:  rep,
		Signal:  rep.Signal(),
		Triples: Triples(seq.Names()),
	}
	corpus.nextID = id + 1
	corpus.add(item)
	corpus.saveProgram(item)
	return item
}

func (corpus *Corpus) add(item *Item) {
	corpus.seqs[item.Sig] = item
	corpus.signal.Merge(item.Signal)
	for _, name := range item.Report.LibraryCalls {
		corpus.calls[name] = true
	}
	for _, tri := range item.Triples {
		corpus.triples[tri] = true
	}
}

func (corpus *Corpus) Signal() signal.Signal {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return corpus.signal.Copy()
}

// Calls returns sorted names of all functions called by the corpus.
func (corpus *Corpus) Calls() []string {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	ret := make([]string, 0, len(corpus.calls))
	for name := range corpus.calls {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Items returns all items in insertion order.
func (corpus *Corpus) Items() []*Item {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	ret := make([]*Item, 0, len(corpus.seqs))
	for _, item := range corpus.seqs {
		ret = append(ret, item)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].ID < ret[j].ID
	})
	return ret
}

func (corpus *Corpus) Item(sig string) *Item {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return corpus.seqs[sig]
}

// Stats is a snapshot of the relevant current state figures.
type Stats struct {
	Seqs    int
	Signal  int
	Calls   int
	Triples int
	// Coverage is the fraction of catalog branches reached by the corpus.
	Coverage float64
}

func (corpus *Corpus) Stats() Stats {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	stats := Stats{
		Seqs:    len(corpus.seqs),
		Signal:  corpus.signal.Len(),
		Calls:   len(corpus.calls),
		Triples: len(corpus.triples),
	}
	if total := corpus.cat.TotalBranches(); total != 0 {
		stats.Coverage = float64(stats.Signal) / float64(total)
	}
	return stats
}
