// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package manager

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/seedforge/seedforge/pkg/corpus"
	"github.com/seedforge/seedforge/pkg/db"
	"github.com/seedforge/seedforge/pkg/hash"
	"github.com/seedforge/seedforge/pkg/log"
	"github.com/seedforge/seedforge/pkg/quality"
	"github.com/seedforge/seedforge/prog"
)

const CurrentDBVersion = 1

// Store keeps accepted sequences and visited counters of all libraries in workdir/corpus.db.
// Keys are "seq/<library>/<sig>" and "visited/<library>/<canonical sig>".
type Store struct {
	mu sync.Mutex
	db *db.DB
}

type seqRecord struct {
	Seq    string          `json:"seq"`
	Report *quality.Report `json:"report"`
}

func OpenStore(workdir string) (*Store, error) {
	corpusDB, err := db.Open(filepath.Join(workdir, "corpus.db"), true)
	if err != nil {
		if corpusDB == nil {
			return nil, fmt.Errorf("failed to open corpus database: %w", err)
		}
		log.Errorf("read %v records from corpus and got error: %v", corpusDB.Len(), err)
	}
	if err := corpusDB.BumpVersion(CurrentDBVersion); err != nil {
		return nil, fmt.Errorf("failed to save corpus database: %w", err)
	}
	log.Logf(0, "corpus database run %v: %v records", corpusDB.RunID, corpusDB.Len())
	return &Store{db: corpusDB}, nil
}

func (st *Store) RunID() string {
	return st.db.RunID.String()
}

func seqKey(lib, sig string) string {
	return "seq/" + lib + "/" + sig
}

func visitedKey(lib string, sig hash.Sig) string {
	return "visited/" + lib + "/" + sig.String()
}

// SaveItem persists an accepted sequence. Item ids are used as record seq numbers,
// so restoring keeps the insertion order.
func (st *Store) SaveItem(lib string, item *corpus.Item) error {
	data, err := json.Marshal(seqRecord{
		Seq:    string(item.SeqData),
		Report: item.Report,
	})
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.db.Save(seqKey(lib, item.Sig), data, uint64(item.ID))
	return nil
}

// SaveVisited persists the visited counters of the scorer.
func (st *Store) SaveVisited(lib string, counts map[hash.Sig]int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for sig, n := range counts {
		st.db.Save(visitedKey(lib, sig), []byte(strconv.Itoa(n)), 0)
	}
}

// Retain drops sequence records of the library that are not in keep.
func (st *Store) Retain(lib string, keep map[string]bool) {
	prefix := seqKey(lib, "")
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, key := range st.db.Keys(prefix) {
		if !keep[strings.TrimPrefix(key, prefix)] {
			st.db.Delete(key)
		}
	}
}

func (st *Store) Flush() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.db.Flush()
}

type restored struct {
	broken  int
	seqs    int
	visited int
}

// Restore loads the persisted state of the library into the corpus and the scorer.
// Records that don't match the current catalog are deleted.
func (st *Store) Restore(cat *prog.Catalog, c *corpus.Corpus, scorer *quality.Scorer) restored {
	lib := cat.Library
	seqPrefix, visitedPrefix := seqKey(lib, ""), "visited/"+lib+"/"
	type entry struct {
		key string
		rec db.Record
	}
	var entries []entry
	var res restored
	var broken []string
	st.mu.Lock()
	for _, key := range st.db.Keys(seqPrefix) {
		rec, _ := st.db.Get(key)
		entries = append(entries, entry{key, rec})
	}
	for _, key := range st.db.Keys(visitedPrefix) {
		rec, _ := st.db.Get(key)
		sig, err := hash.FromString(strings.TrimPrefix(key, visitedPrefix))
		n, err1 := strconv.Atoi(string(rec.Val))
		if err != nil || err1 != nil {
			broken = append(broken, key)
			continue
		}
		scorer.Restore(sig, n)
		res.visited++
	}
	st.mu.Unlock()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].rec.Seq < entries[j].rec.Seq
	})
	for _, ent := range entries {
		seq, rep, err := parseRecord(cat, ent.rec.Val)
		if err != nil {
			log.Logf(1, "%v: dropping corpus record %v: %v", lib, ent.key, err)
			broken = append(broken, ent.key)
			continue
		}
		c.Restore(int(ent.rec.Seq), seq, rep)
		res.seqs++
	}
	res.broken = len(broken)
	st.mu.Lock()
	for _, key := range broken {
		st.db.Delete(key)
	}
	st.mu.Unlock()
	return res
}

func parseRecord(cat *prog.Catalog, data []byte) (*prog.Sequence, *quality.Report, error) {
	rec := new(seqRecord)
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, nil, err
	}
	if rec.Report == nil {
		return nil, nil, fmt.Errorf("missing quality report")
	}
	seq, err := prog.Deserialize(cat, []byte(rec.Seq))
	if err != nil {
		return nil, nil, err
	}
	// The catalog may have changed since the record was saved.
	if err := prog.Validate(seq); err != nil {
		return nil, nil, err
	}
	return seq, rec.Report, nil
}

// Records lists persisted sequences grouped by library, used by tools.
func (st *Store) Records() map[string][]string {
	st.mu.Lock()
	defer st.mu.Unlock()
	res := make(map[string][]string)
	for _, key := range st.db.Keys("seq/") {
		lib, sig, ok := strings.Cut(strings.TrimPrefix(key, "seq/"), "/")
		if ok {
			res[lib] = append(res[lib], sig)
		}
	}
	return res
}

// Load returns the persisted sequence of the library with the given signature.
func (st *Store) Load(cat *prog.Catalog, sig string) (*prog.Sequence, *quality.Report, error) {
	st.mu.Lock()
	rec, ok := st.db.Get(seqKey(cat.Library, sig))
	st.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("no record %v for %v", sig, cat.Library)
	}
	return parseRecord(cat, rec.Val)
}
