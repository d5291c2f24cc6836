// Copyright 2022 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package testutil holds helpers for randomized synthesis tests.
package testutil

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// IterCount is the number of sequences randomized tests synthesize,
// reduced for -short and race builds.
func IterCount() int {
	iters := 1000
	if testing.Short() {
		iters /= 10
	}
	if RaceEnabled {
		iters /= 10
	}
	return iters
}

// RandSource returns a random source for the test.
// The seed is taken from SEEDFORGE_TEST_SEED if set, and is logged so that failures can be replayed.
func RandSource(t testing.TB) rand.Source {
	seed := time.Now().UnixNano()
	if env := os.Getenv("SEEDFORGE_TEST_SEED"); env != "" {
		v, err := strconv.ParseInt(env, 0, 64)
		if err != nil {
			t.Fatalf("bad SEEDFORGE_TEST_SEED %q: %v", env, err)
		}
		seed = v
	}
	t.Logf("SEEDFORGE_TEST_SEED=%v", seed)
	return rand.NewSource(seed)
}
