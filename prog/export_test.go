// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"math/rand"
	"testing"

	"github.com/seedforge/seedforge/pkg/testutil"
	"github.com/stretchr/testify/require"
)

func init() {
	// Synthesized sequences are checked for structural errors in tests.
	debug = true
}

// initTest returns the test catalog, a logged random source and the iteration count.
func initTest(t *testing.T) (*Catalog, rand.Source, int) {
	t.Parallel()
	return MustLoad(t, TestDescriptor()), testutil.RandSource(t), testutil.IterCount()
}

func parseSeq(t *testing.T, cat *Catalog, text string) *Sequence {
	seq, err := Deserialize(cat, []byte(text))
	require.NoError(t, err, "sequence:\n%s", text)
	return seq
}
