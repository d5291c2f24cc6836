// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocFreeScenarios(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, AllocFreeDescriptor())
	tests := []struct {
		name  string
		text  string
		kind  ViolationKind
		index int
		ok    bool
	}{
		{
			name: "alloc-free",
			text: "v0 = alloc()\n# Cleanup\nfree(v0)\n",
			ok:   true,
		},
		{
			name:  "double-free",
			text:  "v0 = alloc()\nfree(v0)\nfree(v0)\n",
			kind:  DoubleFree,
			index: 2,
		},
		{
			name:  "dangling",
			text:  "v0 = alloc()\n",
			kind:  DanglingRoot,
			index: 1,
		},
		{
			name:  "second handle leaked",
			text:  "v0 = alloc()\nv1 = alloc()\nfree(v1)\n",
			kind:  DanglingRoot,
			index: 3,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Validate(parseSeq(t, cat, test.text))
			if test.ok {
				assert.NoError(t, err)
				return
			}
			v, ok := AsViolation(err)
			require.True(t, ok, "want a violation, got %v", err)
			assert.Equal(t, test.kind, v.Kind)
			assert.Equal(t, test.index, v.CallIndex)
		})
	}
}

func TestValidateOwnership(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, TestDescriptor())
	tests := []struct {
		name  string
		text  string
		kind  ViolationKind
		index int
		ok    bool
	}{
		{
			name: "transfer released with container",
			text: `
v0 = mj_create_object()
v1 = mj_create_object()
# Configure
mj_add_item(v0, "\"a\"", v1)
# Cleanup
mj_delete(v0)
`,
			ok: true,
		},
		{
			name: "use after transfer",
			text: `
v0 = mj_create_object()
v1 = mj_create_object()
mj_add_item(v0, "\"a\"", v1)
mj_set_number(v1, "1.0")
mj_delete(v0)
`,
			kind:  DoubleOwnership,
			index: 3,
		},
		{
			name: "free after transfer",
			text: `
v0 = mj_create_object()
v1 = mj_create_object()
mj_add_item(v0, "\"a\"", v1)
mj_delete(v1)
mj_delete(v0)
`,
			kind:  DoubleOwnership,
			index: 3,
		},
		{
			name: "shared transfer stays borrowable",
			text: `
v0 = mj_create_array()
v1 = mj_create_object()
mj_array_append(v0, v1)
mj_print(v1)
mj_array_size(v0)
mj_delete(v0)
`,
			ok: true,
		},
		{
			name: "use after free",
			text: `
v0 = mj_create_object()
mj_delete(v0)
mj_print(v0)
`,
			kind:  UseAfterFree,
			index: 2,
		},
		{
			name: "owned handle invalid after container free",
			text: `
v0 = mj_create_object()
v1 = mj_create_array()
mj_array_append(v1, v0)
mj_delete(v1)
mj_print(v0)
`,
			kind:  UseAfterFree,
			index: 4,
		},
		{
			name: "borrowed reference is not freed",
			text: `
v0 = mj_create_object()
v1 = mj_get_item(v0, "\"a\"")
mj_print(v1)
mj_delete(v0)
`,
			ok: true,
		},
		{
			name: "free of borrowed reference",
			text: `
v0 = mj_create_object()
v1 = mj_get_item(v0, "\"a\"")
mj_delete(v1)
`,
			kind:  DoubleOwnership,
			index: 2,
		},
		{
			name: "borrowed reference dies with source",
			text: `
v0 = mj_create_object()
v1 = mj_get_item(v0, "\"a\"")
mj_delete(v0)
mj_print(v1)
`,
			kind:  UseAfterFree,
			index: 3,
		},
		{
			name: "transfer into itself",
			text: `
v0 = mj_create_object()
mj_add_item(v0, "\"a\"", v0)
`,
			kind:  DoubleOwnership,
			index: 1,
		},
		{
			name: "transfer into owned child",
			text: `
v0 = mj_create_array()
v1 = mj_create_array()
mj_array_append(v0, v1)
mj_array_append(v1, v0)
mj_delete(v0)
`,
			kind:  DoubleOwnership,
			index: 3,
		},
		{
			name: "out param lifecycle",
			text: `
mj_parser_init(&v0)
# Configure
mj_parser_feed(v0, "\"{}\"")
# Cleanup
mj_parser_end(v0)
`,
			ok: true,
		},
		{
			name: "deliberate null",
			text: `
# Validate
mj_print(nil)
`,
			ok: true,
		},
		{
			name: "null into free",
			text: `
# Cleanup
mj_delete(nil)
`,
			ok: true,
		},
		{
			name: "leaked out param",
			text: `
mj_parser_init(&v0)
mj_parser_feed(v0, "\"{}\"")
`,
			kind:  DanglingRoot,
			index: 2,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Validate(parseSeq(t, cat, test.text))
			if test.ok {
				assert.NoError(t, err)
				return
			}
			v, ok := AsViolation(err)
			require.True(t, ok, "want a violation, got %v", err)
			assert.Equal(t, test.kind, v.Kind, "%v", v)
			assert.Equal(t, test.index, v.CallIndex, "%v", v)
		})
	}
}

func TestValidateStructure(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, TestDescriptor())
	tests := []struct {
		text string
		err  error
	}{
		{"mj_invented()\n", ErrUnknownFunction},
		{"v0 = mj_create_object()\nmj_print(\"\\\"x\\\"\")\nmj_delete(v0)\n", ErrMalformedSequence},
		{"mj_print(v3)\n", ErrMalformedSequence},
		{"v0 = mj_create_object()\nmj_array_size(v0)\nmj_delete(v0)\n", ErrMalformedSequence},
		{"mj_set_number(nil, \"1\")\n", ErrMalformedSequence},
		{"# Cleanup\nv0 = mj_create_object()\n# Initialize\nmj_delete(v0)\n", ErrMalformedSequence},
		{"mj_create_object()\n", ErrMalformedSequence},
	}
	for i, test := range tests {
		_, err := Deserialize(cat, []byte(test.text))
		assert.True(t, errors.Is(err, test.err), "#%v: %v", i, err)
	}
}

func TestValidateRejectsForeignCatalog(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, TestDescriptor())
	other := MustLoad(t, TestDescriptor())
	seq := parseSeq(t, cat, "v0 = mj_create_object()\nmj_delete(v0)\n")
	seq.Catalog = other
	assert.True(t, errors.Is(Validate(seq), ErrUnknownFunction))
}
