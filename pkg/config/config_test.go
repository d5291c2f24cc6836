// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNested struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type testConfig struct {
	Name    string                `json:"name"`
	Procs   int                   `json:"procs"`
	Libs    []string              `json:"libs"`
	Budget  map[string]testNested `json:"budget"`
	Ignored string                `json:"-"`
}

func TestLoad(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input  string
		output testConfig
		err    string
	}{
		{
			input:  `{"name": "x", "procs": 2}`,
			output: testConfig{Name: "x", Procs: 2},
		},
		{
			input: `
# Comment lines are allowed.
{
	"libs": ["cjson", "zlib"],
	# Indented too.
	"budget": {"operate": {"min": 1, "max": 3}}
}`,
			output: testConfig{
				Libs:   []string{"cjson", "zlib"},
				Budget: map[string]testNested{"operate": {1, 3}},
			},
		},
		{
			input: `{"foobar": 42}`,
			err:   `json: unknown field "foobar"`,
		},
		{
			input: `{"ignored": "x"}`,
			err:   `json: unknown field "ignored"`,
		},
		{
			input: `{"procs": "2"}`,
			err:   "cannot unmarshal string",
		},
	}
	for i, test := range tests {
		var cfg testConfig
		err := LoadData([]byte(test.input), &cfg)
		if test.err != "" {
			require.Error(t, err, "#%v", i)
			assert.Contains(t, err.Error(), test.err, "#%v", i)
			continue
		}
		require.NoError(t, err, "#%v", i)
		assert.Equal(t, test.output, cfg, "#%v", i)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	var cfg testConfig
	require.NoError(t, LoadYAML([]byte(`
name: seeds
libs: [cjson]
budget:
  initialize: {min: 1, max: 2}
`), &cfg))
	assert.Equal(t, testConfig{
		Name:   "seeds",
		Libs:   []string{"cjson"},
		Budget: map[string]testNested{"initialize": {1, 2}},
	}, cfg)
	assert.Error(t, LoadYAML([]byte("unknown: 1\n"), &cfg))
}

func TestSaveLoadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := testConfig{Name: "x", Procs: 3, Libs: []string{"re2"}}
	for _, name := range []string{"cfg.json", "cfg.yaml"} {
		file := filepath.Join(dir, name)
		require.NoError(t, SaveFile(file, cfg))
		var cfg1 testConfig
		require.NoError(t, LoadFile(file, &cfg1))
		assert.Equal(t, cfg, cfg1)
	}
	data, err := os.ReadFile(filepath.Join(dir, "cfg.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: x\n")
	assert.Error(t, LoadFile("", &cfg))
	assert.Error(t, LoadFile(filepath.Join(dir, "missing.json"), &cfg))
}
