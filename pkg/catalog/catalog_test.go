// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package catalog

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/seedforge/seedforge/pkg/osutil"
	"github.com/seedforge/seedforge/prog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zstream = `
library: zmini
headers: [zmini.h]
resources:
  - {name: stream, ctype: z_stream *}
functions:
  zm_init:
    params:
      - {name: strm, kind: out_param, resource: stream}
      - {name: level, kind: plain_value, type: int, values: ["0", "9"]}
    returns: status_code
    effect: allocates
    branches:
      - {id: fast, when: {arg: 1, equals: "0"}}
  zm_version:
    returns: {kind: plain_value, type: const char *}
    effect: pure
  zm_params:
    params:
      - {kind: borrows_resource, resource: stream, requires: allocated}
      - plain_value
    effect: mutates
  zm_end:
    params: [owns_resource]
    returns: status_code
    effect: frees
    critical: true
`

func TestParse(t *testing.T) {
	desc, err := Parse([]byte(zstream))
	require.NoError(t, err)
	assert.Equal(t, "zmini", desc.Library)
	var names []string
	for _, fn := range desc.Functions {
		names = append(names, fn.Name)
	}
	// Declaration order, not map order.
	assert.Equal(t, []string{"zm_init", "zm_version", "zm_params", "zm_end"}, names)
	assert.Equal(t, prog.ParamSpec{Kind: "plain_value"}, desc.Functions[2].Params[1])
	assert.Equal(t, prog.ReturnSpec{Kind: "status_code"}, desc.Functions[0].Returns)
	assert.Equal(t, prog.ReturnSpec{Kind: "plain_value", Type: "const char *"}, desc.Functions[1].Returns)
	assert.Equal(t, []string{"0", "9"}, desc.Functions[0].Params[1].Values)
	assert.Equal(t, "0", desc.Functions[0].Branches[0].When.Equals)

	cat, err := prog.Load(desc)
	require.NoError(t, err)
	assert.Equal(t, 5, cat.TotalBranches())
	assert.Equal(t, []string{"zm_end"}, cat.CriticalNames())
	assert.Equal(t, prog.Allocated, cat.FunctionMap["zm_params"].Params[0].Requires)
}

func TestParseJSON(t *testing.T) {
	cat, err := LoadData([]byte(`{
		"library": "allocfree",
		"functions": {
			"alloc": {"returns": "new_resource", "effect": "allocates"},
			"free": {"params": ["owns_resource"], "effect": "frees"}
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "alloc", cat.Functions[0].Name)
	assert.Equal(t, "free", cat.Functions[1].Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		err   string
	}{
		{
			input: "library: x\nfoo: 1\n",
			err:   "field foo not found",
		},
		{
			input: "library: x\n",
			err:   "x: no functions",
		},
		{
			input: "library: x\nfunctions: [a, b]\n",
			err:   "line 2: functions must be a mapping",
		},
		{
			input: "library: x\nfunctions:\n  f:\n    effect: pure\n    pure: true\n",
			err:   `line 4: f: unknown field "pure"`,
		},
		{
			input: "library: x\nfunctions:\n  f:\n    params:\n      - {kind: plain_value, size: 4}\n",
			err:   `f: param #0: unknown field "size"`,
		},
		{
			input: "library: x\nfunctions:\n  f:\n    returns: {kind: status_code, ctype: int}\n",
			err:   `f: returns: unknown field "ctype"`,
		},
	}
	for i, test := range tests {
		_, err := Parse([]byte(test.input))
		require.Error(t, err, "#%v", i)
		assert.Contains(t, err.Error(), test.err, "#%v", i)
	}
}

func TestLoadFileInconsistent(t *testing.T) {
	file := filepath.Join(t.TempDir(), "leak.yaml")
	require.NoError(t, osutil.WriteFile(file, []byte(`
library: leak
functions:
  leak_new: {returns: new_resource, effect: allocates}
`)))
	_, err := LoadFile(file)
	require.Error(t, err)
	assert.True(t, errors.Is(err, prog.ErrCatalogInconsistency), "%v", err)
	assert.Contains(t, err.Error(), "leak.yaml: ")
	assert.Contains(t, err.Error(), "leak_new: allocates leak_handle but no reachable function frees it")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
