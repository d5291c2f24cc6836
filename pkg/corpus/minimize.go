// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"fmt"

	"github.com/seedforge/seedforge/pkg/signal"
)

const (
	MinimizeNone    = ""
	MinimizeSignal  = "signal"
	MinimizeTriples = "triples"
)

func ValidMinimizeMode(mode string) error {
	switch mode {
	case MinimizeNone, MinimizeSignal, MinimizeTriples:
		return nil
	}
	return fmt.Errorf("unknown minimization mode %q (want %q or %q)", mode, MinimizeSignal, MinimizeTriples)
}

// Minimize drops items whose contribution is covered by other items.
// In signal mode branch coverage is preserved, in triples mode the set of API 3-grams.
// Earlier items win ties, surviving items keep their ids.
func (corpus *Corpus) Minimize(mode string) error {
	if err := ValidMinimizeMode(mode); err != nil {
		return err
	}
	if mode == MinimizeNone {
		return nil
	}
	items := corpus.Items()

	corpus.mu.Lock()
	defer corpus.mu.Unlock()

	inputs := make([]signal.Input[*Item], 0, len(items))
	for _, item := range items {
		sig := item.Signal
		if mode == MinimizeTriples {
			sig = signal.FromRaw(item.Triples, signal.Regular)
		}
		inputs = append(inputs, signal.Input[*Item]{Signal: sig, Item: item})
	}
	corpus.seqs = make(map[string]*Item)
	corpus.signal = nil
	corpus.calls = make(map[string]bool)
	corpus.triples = make(map[string]bool)
	programsList := &ProgramsList{}
	for _, item := range signal.Minimize(inputs) {
		corpus.add(item)
		programsList.saveProgram(item)
	}
	corpus.ProgramsList.replace(programsList)
	return nil
}
