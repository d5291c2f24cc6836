// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, TestDescriptor())
	assert.Equal(t, "minijson", cat.Library)
	assert.Len(t, cat.Functions, 15)
	// 15 entry branches plus 4 conditional ones.
	assert.Equal(t, 19, cat.TotalBranches())
	assert.Empty(t, cat.Disabled)
	assert.Equal(t, []string{"node", "array"}, cat.Resource("array").Kind)
	assert.Equal(t, []string{"mj_parse", "mj_print"}, cat.CriticalNames())
	for i, fn := range cat.Functions {
		assert.Equal(t, i, fn.ID)
	}

	fn, err := cat.Lookup("mj_create_array")
	require.NoError(t, err)
	assert.Equal(t, []*ResourceDesc{cat.Resource("array")}, fn.Produces())
	assert.Equal(t, -1, fn.Consumes())

	fn, err = cat.Lookup("mj_add_item")
	require.NoError(t, err)
	assert.Empty(t, fn.Produces())
	assert.Equal(t, 2, fn.Consumes())
	assert.Equal(t, 0, fn.Container())

	fn, err = cat.Lookup("mj_parser_init")
	require.NoError(t, err)
	assert.Equal(t, []*ResourceDesc{cat.Resource("parser")}, fn.Produces())

	var names []string
	for _, fn := range cat.Dtors(cat.Resource("array")) {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"mj_delete"}, names)
	assert.Len(t, cat.Dtors(cat.Resource("parser")), 1)
}

func TestLookupUnknown(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, TestDescriptor())
	_, err := cat.Lookup("mj_invented")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFunction))
	var unknown *UnknownFunctionError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "mj_invented", unknown.Name)
}

func TestMinimalDescriptor(t *testing.T) {
	t.Parallel()
	cat := MustLoad(t, AllocFreeDescriptor())
	require.Len(t, cat.Resources, 1)
	res := cat.Resources[0]
	assert.Equal(t, "allocfree_handle", res.Name)
	assert.Equal(t, res, cat.FunctionMap["alloc"].Ret.Res)
	assert.Equal(t, res, cat.FunctionMap["free"].Params[0].Res)
	assert.Equal(t, 0, cat.FunctionMap["free"].Consumes())
}

func TestQualifiedNames(t *testing.T) {
	t.Parallel()
	desc := &Descriptor{
		Library: "re2",
		Resources: []ResourceSpec{
			{Name: "regex", CType: "RE2 *"},
		},
		Functions: []FunctionSpec{
			{
				Name:    "re2_new",
				Symbol:  "_ZN3re23RE2C1EPKc",
				Params:  []ParamSpec{{Name: "pattern", Kind: "plain_value", Type: "const char *"}},
				Returns: ReturnSpec{Kind: "new_resource", Resource: "regex"},
				Effect:  "allocates",
			},
			{
				Name:    "re2_ok",
				Symbol:  "_ZNK3re23RE22okEv",
				Params:  []ParamSpec{{Name: "re", Kind: "borrows_resource", Resource: "regex"}},
				Returns: ReturnSpec{Kind: "plain_value", Type: "bool"},
				Effect:  "pure",
			},
			{
				Name:   "re2_delete",
				Params: []ParamSpec{{Name: "re", Kind: "owns_resource", Resource: "regex"}},
				Effect: "frees",
			},
		},
	}
	cat := MustLoad(t, desc)
	assert.Equal(t, "re2::RE2::RE2", cat.FunctionMap["re2_new"].QualifiedName)
	assert.Equal(t, "re2::RE2::ok", cat.FunctionMap["re2_ok"].QualifiedName)
	assert.Equal(t, "re2_delete", cat.FunctionMap["re2_delete"].QualifiedName)
}

func TestReleasableThroughTransfer(t *testing.T) {
	t.Parallel()
	// Items have no destructor of their own, they are released with the list.
	desc := &Descriptor{
		Library: "list",
		Resources: []ResourceSpec{
			{Name: "list"},
			{Name: "item"},
		},
		Functions: []FunctionSpec{
			{Name: "list_new", Returns: ReturnSpec{Kind: "new_resource", Resource: "list"}, Effect: "allocates"},
			{Name: "item_new", Returns: ReturnSpec{Kind: "new_resource", Resource: "item"}, Effect: "allocates"},
			{
				Name: "list_push",
				Params: []ParamSpec{
					{Kind: "borrows_resource", Resource: "list"},
					{Kind: "owns_resource", Resource: "item"},
				},
				Effect: "transfers",
			},
			{Name: "list_free", Params: []ParamSpec{{Kind: "owns_resource", Resource: "list"}}, Effect: "frees"},
		},
	}
	MustLoad(t, desc)
}

func TestCatalogInconsistency(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(desc *Descriptor)
		errors []string
	}{
		{
			name: "unknown resource",
			modify: func(desc *Descriptor) {
				desc.Functions[0].Returns.Resource = "tree"
			},
			errors: []string{"mj_create_object: return: unknown resource tree"},
		},
		{
			name: "frees without owned param",
			modify: func(desc *Descriptor) {
				desc.Functions[13].Params[0].Kind = "borrows_resource"
			},
			errors: []string{"mj_delete: frees function must take exactly one owned handle, has 0"},
		},
		{
			name: "allocates nothing",
			modify: func(desc *Descriptor) {
				desc.Functions[0].Returns = ReturnSpec{Kind: "status_code"}
			},
			errors: []string{"mj_create_object: allocates function produces no resource"},
		},
		{
			name: "pure produces",
			modify: func(desc *Descriptor) {
				desc.Functions[12].Returns = ReturnSpec{Kind: "new_resource", Resource: "node"}
			},
			errors: []string{"mj_version: pure function produces a new resource"},
		},
		{
			name: "no reachable free",
			modify: func(desc *Descriptor) {
				desc.Functions = desc.Functions[:len(desc.Functions)-1]
			},
			errors: []string{"mj_parser_init: allocates parser but no reachable function frees it"},
		},
		{
			name: "duplicate function",
			modify: func(desc *Descriptor) {
				desc.Functions = append(desc.Functions, desc.Functions[0])
			},
			errors: []string{"duplicate function mj_create_object"},
		},
		{
			name: "bad effect",
			modify: func(desc *Descriptor) {
				desc.Functions[5].Effect = "destroys"
			},
			errors: []string{`mj_set_number: unknown effect "destroys" (want one of pure/allocates/frees/mutates/transfers)`},
		},
		{
			name: "cyclic parent",
			modify: func(desc *Descriptor) {
				desc.Resources[0].Parent = "array"
			},
			errors: []string{
				"resource node has a cyclic parent chain",
				"resource array has a cyclic parent chain",
			},
		},
		{
			name: "bad branch",
			modify: func(desc *Descriptor) {
				desc.Functions[10].Branches[0].When.Arg = 3
				desc.Functions[10].Branches[1].ID = "entry"
			},
			errors: []string{
				"mj_print: branch null refers to missing arg 3",
				`mj_print: bad or duplicate branch id "entry"`,
			},
		},
		{
			name: "unknown critical",
			modify: func(desc *Descriptor) {
				desc.Critical = []string{"mj_invented"}
			},
			errors: []string{"critical list names unknown function mj_invented"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			desc := TestDescriptor()
			test.modify(desc)
			_, err := Load(desc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCatalogInconsistency))
			var inconsistency *InconsistencyError
			require.True(t, errors.As(err, &inconsistency))
			assert.ElementsMatch(t, test.errors, inconsistency.Problems)
		})
	}
}
