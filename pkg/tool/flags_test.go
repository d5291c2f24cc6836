// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tool

import (
	"flag"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFlag(t *testing.T) {
	tests := []struct {
		args []string
		want []string
		err  bool
	}{
		{nil, nil, false},
		{[]string{"-l", "zlib"}, []string{"zlib"}, false},
		{[]string{"-l", "zlib, cjson ,re2"}, []string{"zlib", "cjson", "re2"}, false},
		{[]string{"-l", "zlib", "-l", "lib.yaml,zlib"}, []string{"zlib", "lib.yaml"}, false},
		{[]string{"-l", "zlib,,cjson"}, nil, true},
		{[]string{"-l", ""}, nil, true},
	}
	for i, test := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			var list ListFlag
			flags := flag.NewFlagSet("", flag.ContinueOnError)
			flags.SetOutput(io.Discard)
			flags.Var(&list, "l", "")
			err := flags.Parse(append(test.args, "arg0"))
			if test.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, []string(list))
			assert.Equal(t, []string{"arg0"}, flags.Args())
		})
	}
}

func TestListFlagOr(t *testing.T) {
	var list ListFlag
	assert.Equal(t, []string{"a", "b"}, list.Or([]string{"a", "b"}))
	assert.Equal(t, "", list.String())
	require.NoError(t, list.Set("c,d"))
	assert.Equal(t, []string{"c", "d"}, list.Or([]string{"a", "b"}))
	assert.Equal(t, "c,d", list.String())
	assert.True(t, list.Contains("d"))
	assert.False(t, list.Contains("a"))
}
