// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, Names([]string{"a", "b"}), Names([]string{"a", "b"}))
	assert.NotEqual(t, Names([]string{"ab", "c"}), Names([]string{"a", "bc"}))
	assert.NotEqual(t, Names([]string{"a", "b"}), Names([]string{"b", "a"}))
	assert.NotEqual(t, Names(nil), Names([]string{""}))
}

func TestFromString(t *testing.T) {
	sig := Hash([]byte("cJSON_CreateObject"))
	sig1, err := FromString(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig, sig1)
	assert.Equal(t, sig.Seed(), sig1.Seed())
	_, err = FromString("abc")
	assert.Error(t, err)
	_, err = FromString(strings.Repeat("zz", 20))
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	var sig Sig
	sig[0] = 1
	sig[8] = 0xff
	assert.Equal(t, int64(1), sig.Seed())
	assert.NotEqual(t, Names([]string{"zlib"}).Seed(), Names([]string{"cjson"}).Seed())
}
