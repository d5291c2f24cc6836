// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromBranches(t *testing.T) {
	s := FromBranches("re2::RE2::ok", []string{"entry", "null_pattern"}, Critical)
	assert.Equal(t, []string{"re2::RE2::ok:entry", "re2::RE2::ok:null_pattern"}, s.Elems())
	assert.Equal(t, Critical, s["re2::RE2::ok:entry"])
	assert.Nil(t, FromRaw(nil, Regular))
	assert.True(t, FromRaw(nil, Regular).Empty())
}

func TestDiffMerge(t *testing.T) {
	var total Signal
	s0 := FromRaw([]string{"a:entry", "b:entry"}, Regular)
	assert.Equal(t, s0, total.Diff(s0))
	total.Merge(s0)
	assert.Nil(t, total.Diff(s0))

	// a is known, but only with a lower priority.
	s1 := FromRaw([]string{"a:entry", "c:entry"}, Critical)
	assert.Equal(t, []string{"a:entry", "c:entry"}, total.Diff(s1).Elems())
	snapshot := total.Copy()
	total.Merge(s1)
	assert.Equal(t, []string{"a:entry", "b:entry", "c:entry"}, total.Elems())
	assert.Equal(t, Critical, total["a:entry"])
	assert.Equal(t, 2, snapshot.Len())

	// Merging lower priorities does not downgrade.
	total.Merge(FromRaw([]string{"a:entry"}, Regular))
	assert.Equal(t, Critical, total["a:entry"])
}

func TestMinimize(t *testing.T) {
	inputs := []Input[string]{
		{FromRaw([]string{"a:entry"}, Regular), "first"},
		{FromRaw([]string{"a:entry", "b:entry"}, Regular), "second"},
		{FromRaw([]string{"b:entry"}, Regular), "third"},
		{FromRaw([]string{"a:entry"}, Critical), "fourth"},
	}
	// "second" is the first to reach b, "fourth" has the higher priority for a.
	assert.Equal(t, []string{"second", "fourth"}, Minimize(inputs))
	assert.Equal(t, Minimize(inputs), Minimize(inputs))
	assert.Empty(t, Minimize[int](nil))
}
