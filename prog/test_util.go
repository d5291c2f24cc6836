// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"testing"
)

// TestDescriptor describes a small JSON tree library that exercises
// every ownership effect. It is used by tests across packages.
func TestDescriptor() *Descriptor {
	node := func(name string) ParamSpec {
		return ParamSpec{Name: name, Kind: "borrows_resource", Resource: "node"}
	}
	return &Descriptor{
		Library: "minijson",
		Headers: []string{"minijson.h"},
		Resources: []ResourceSpec{
			{Name: "node", CType: "mj_node *"},
			{Name: "array", CType: "mj_node *", Parent: "node"},
			{Name: "parser", CType: "mj_parser"},
		},
		Functions: []FunctionSpec{
			{
				Name:    "mj_create_object",
				Returns: ReturnSpec{Kind: "new_resource", Resource: "node"},
				Effect:  "allocates",
			},
			{
				Name:    "mj_create_array",
				Returns: ReturnSpec{Kind: "new_resource", Resource: "array"},
				Effect:  "allocates",
			},
			{
				Name: "mj_parse",
				Params: []ParamSpec{
					{Name: "text", Kind: "plain_value", Type: "const char *"},
				},
				Returns:  ReturnSpec{Kind: "new_resource", Resource: "node"},
				Effect:   "allocates",
				Critical: true,
				Branches: []BranchSpec{
					{ID: "empty", When: &CondSpec{Arg: 0, Equals: `""`}},
				},
			},
			{
				Name: "mj_parser_init",
				Params: []ParamSpec{
					{Name: "p", Kind: "out_param", Resource: "parser"},
				},
				Returns: ReturnSpec{Kind: "status_code"},
				Effect:  "allocates",
			},
			{
				Name: "mj_duplicate",
				Params: []ParamSpec{
					node("item"),
					{Name: "recurse", Kind: "plain_value", Type: "int", Values: []string{"0", "1"}},
				},
				Returns: ReturnSpec{Kind: "new_resource", Resource: "node"},
				Effect:  "allocates",
				Branches: []BranchSpec{
					{ID: "deep", When: &CondSpec{Arg: 1, Equals: "1"}},
				},
			},
			{
				Name: "mj_set_number",
				Params: []ParamSpec{
					node("item"),
					{Name: "value", Kind: "plain_value", Type: "double"},
				},
				Effect: "mutates",
			},
			{
				Name: "mj_parser_feed",
				Params: []ParamSpec{
					{Name: "p", Kind: "borrows_resource", Resource: "parser"},
					{Name: "chunk", Kind: "plain_value", Type: "const char *"},
				},
				Returns: ReturnSpec{Kind: "status_code"},
				Effect:  "mutates",
			},
			{
				Name: "mj_add_item",
				Params: []ParamSpec{
					node("object"),
					{Name: "name", Kind: "plain_value", Type: "const char *", Values: []string{`"a"`, `"b"`}},
					{Name: "item", Kind: "owns_resource", Resource: "node"},
				},
				Returns: ReturnSpec{Kind: "status_code"},
				Effect:  "transfers",
			},
			{
				Name: "mj_array_append",
				Params: []ParamSpec{
					{Name: "array", Kind: "borrows_resource", Resource: "array"},
					{Name: "item", Kind: "owns_resource", Resource: "node", Shared: true},
				},
				Returns: ReturnSpec{Kind: "status_code"},
				Effect:  "transfers",
			},
			{
				Name: "mj_get_item",
				Params: []ParamSpec{
					node("object"),
					{Name: "name", Kind: "plain_value", Type: "const char *", Values: []string{`"a"`, `"b"`}},
				},
				Returns: ReturnSpec{Kind: "borrowed_reference", Resource: "node"},
				Effect:  "pure",
			},
			{
				Name: "mj_print",
				Params: []ParamSpec{
					{Name: "item", Kind: "borrows_resource", Resource: "node", Nullable: true},
				},
				Returns:  ReturnSpec{Kind: "plain_value", Type: "char *"},
				Effect:   "pure",
				Critical: true,
				Branches: []BranchSpec{
					{ID: "null", When: &CondSpec{Arg: 0, Is: "null"}},
					{ID: "configured", When: &CondSpec{Arg: 0, State: "configured"}},
				},
			},
			{
				Name: "mj_array_size",
				Params: []ParamSpec{
					{Name: "array", Kind: "borrows_resource", Resource: "array"},
				},
				Returns: ReturnSpec{Kind: "plain_value", Type: "int"},
				Effect:  "pure",
			},
			{
				Name:    "mj_version",
				Returns: ReturnSpec{Kind: "plain_value", Type: "const char *"},
				Effect:  "pure",
			},
			{
				Name: "mj_delete",
				Params: []ParamSpec{
					{Name: "item", Kind: "owns_resource", Resource: "node", Nullable: true},
				},
				Effect: "frees",
			},
			{
				Name: "mj_parser_end",
				Params: []ParamSpec{
					{Name: "p", Kind: "owns_resource", Resource: "parser"},
				},
				Returns: ReturnSpec{Kind: "status_code"},
				Effect:  "frees",
			},
		},
	}
}

// AllocFreeDescriptor is the smallest consistent library: alloc() -> R, free(R).
func AllocFreeDescriptor() *Descriptor {
	return &Descriptor{
		Library: "allocfree",
		Functions: []FunctionSpec{
			{
				Name:    "alloc",
				Returns: ReturnSpec{Kind: "new_resource"},
				Effect:  "allocates",
			},
			{
				Name:   "free",
				Params: []ParamSpec{{Kind: "owns_resource"}},
				Effect: "frees",
			},
		},
	}
}

func MustLoad(t testing.TB, desc *Descriptor) *Catalog {
	cat, err := Load(desc)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}
