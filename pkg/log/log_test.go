// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package log

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func init() {
	EnableLogCaching(4, 20)
	prependTime = false
}

// The cache is shared, so the subtests below run sequentially.
func TestCaching(t *testing.T) {
	steps := []struct{ line, cached string }{
		{"a", "a\n"},
		{"bb", "a\nbb\n"},
		{"ccc", "a\nbb\nccc\n"},
		{"dddd", "a\nbb\nccc\ndddd\n"},
		// Four lines at most.
		{"eeeee", "bb\nccc\ndddd\neeeee\n"},
		// No more than 20 bytes.
		{"ffffff", "ccc\ndddd\neeeee\nffffff\n"},
		{"ggggggg", "eeeee\nffffff\nggggggg\n"},
		// The last line is kept even if it alone exceeds the limit.
		{"0123456789012345678901234", "0123456789012345678901234\n"},
	}
	for i, step := range steps {
		Logf(1, "%s", step.line)
		assert.Equal(t, step.cached, CachedLogOutput(), "step %v", i)
	}

	// Verbose messages are not cached.
	Logf(2, "verbose")
	assert.Equal(t, steps[len(steps)-1].cached, CachedLogOutput())

	// Named loggers share the cache and prefix their output.
	Named("zlib").Logf(0, "%v seeds", 3)
	assert.Equal(t, "zlib: 3 seeds\n", CachedLogOutput())
	Named("re2").Errorf("%v", fmt.Errorf("broken"))
	assert.Equal(t, "re2: ERROR: broken\n", CachedLogOutput())

	n, err := VerboseWriter(1).Write([]byte("GET /corpus"))
	assert.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "GET /corpus\n", CachedLogOutput())
}

func TestVerbosity(t *testing.T) {
	assert.False(t, V(100))
	SetVerbosity(2)
	defer SetVerbosity(0)
	assert.True(t, V(2))
	assert.False(t, V(3))
}
