// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

// Descriptor is the declarative description of a library as it is written
// in catalog files. It is turned into a Catalog by Load.
type Descriptor struct {
	Library   string         `json:"library" yaml:"library"`
	Headers   []string       `json:"headers,omitempty" yaml:"headers,omitempty"`
	Critical  []string       `json:"critical,omitempty" yaml:"critical,omitempty"`
	Resources []ResourceSpec `json:"resources,omitempty" yaml:"resources,omitempty"`
	// Functions are kept in declaration order.
	Functions []FunctionSpec `json:"-" yaml:"-"`
}

type ResourceSpec struct {
	Name   string `json:"name" yaml:"name"`
	CType  string `json:"ctype,omitempty" yaml:"ctype,omitempty"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
	// ByValue marks struct handles (e.g. z_stream) that live in a local variable.
	ByValue bool `json:"by_value,omitempty" yaml:"by_value,omitempty"`
}

type FunctionSpec struct {
	Name     string       `json:"-" yaml:"-"`
	Symbol   string       `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Params   []ParamSpec  `json:"params,omitempty" yaml:"params,omitempty"`
	Returns  ReturnSpec   `json:"returns" yaml:"returns"`
	Effect   string       `json:"effect" yaml:"effect"`
	Critical bool         `json:"critical,omitempty" yaml:"critical,omitempty"`
	Phases   []string     `json:"phases,omitempty" yaml:"phases,omitempty"`
	Branches []BranchSpec `json:"branches,omitempty" yaml:"branches,omitempty"`
}

type ParamSpec struct {
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Kind     string   `json:"kind" yaml:"kind"`
	Resource string   `json:"resource,omitempty" yaml:"resource,omitempty"`
	Type     string   `json:"type,omitempty" yaml:"type,omitempty"`
	Values   []string `json:"values,omitempty" yaml:"values,omitempty"`
	Nullable bool     `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Shared   bool     `json:"shared,omitempty" yaml:"shared,omitempty"`
	Requires string   `json:"requires,omitempty" yaml:"requires,omitempty"`
}

type ReturnSpec struct {
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Resource string `json:"resource,omitempty" yaml:"resource,omitempty"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
}

type BranchSpec struct {
	ID   string    `json:"id" yaml:"id"`
	When *CondSpec `json:"when,omitempty" yaml:"when,omitempty"`
}

// CondSpec says when a branch is reached: at most one of Is, Equals and
// State is set, none means the branch is reached on every call.
type CondSpec struct {
	Arg    int    `json:"arg" yaml:"arg"`
	Is     string `json:"is,omitempty" yaml:"is,omitempty"` // null or nonnull
	Equals string `json:"equals,omitempty" yaml:"equals,omitempty"`
	State  string `json:"state,omitempty" yaml:"state,omitempty"`
}
