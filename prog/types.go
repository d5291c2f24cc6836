// Copyright 2015/2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
	"strings"
)

// Effect is the ownership effect a call has on the handles bound to it.
type Effect int

const (
	EffectPure Effect = iota
	EffectAllocates
	EffectFrees
	EffectMutates
	EffectTransfers
)

var effectNames = [...]string{
	EffectPure:      "pure",
	EffectAllocates: "allocates",
	EffectFrees:     "frees",
	EffectMutates:   "mutates",
	EffectTransfers: "transfers",
}

func (e Effect) String() string {
	if int(e) < len(effectNames) {
		return effectNames[e]
	}
	return fmt.Sprintf("effect(%d)", int(e))
}

type ParamKind int

const (
	ParamPlain   ParamKind = iota // plain_value
	ParamBorrows                  // borrows_resource
	ParamOwns                     // owns_resource
	ParamOut                      // out_param
)

var paramKindNames = [...]string{
	ParamPlain:   "plain_value",
	ParamBorrows: "borrows_resource",
	ParamOwns:    "owns_resource",
	ParamOut:     "out_param",
}

func (k ParamKind) String() string {
	if int(k) < len(paramKindNames) {
		return paramKindNames[k]
	}
	return fmt.Sprintf("param(%d)", int(k))
}

type RetKind int

const (
	RetPlain       RetKind = iota // plain_value
	RetStatus                     // status_code
	RetNewResource                // new_resource
	RetBorrowed                   // borrowed_reference
)

var retKindNames = [...]string{
	RetPlain:       "plain_value",
	RetStatus:      "status_code",
	RetNewResource: "new_resource",
	RetBorrowed:    "borrowed_reference",
}

func (k RetKind) String() string {
	if int(k) < len(retKindNames) {
		return retKindNames[k]
	}
	return fmt.Sprintf("ret(%d)", int(k))
}

func parseEnum(what, s string, names []string) (int, error) {
	for i, name := range names {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %v %q (want one of %v)", what, s, strings.Join(names, "/"))
}

func ParseEffect(s string) (Effect, error) {
	v, err := parseEnum("effect", s, effectNames[:])
	return Effect(v), err
}

func ParseParamKind(s string) (ParamKind, error) {
	v, err := parseEnum("param kind", s, paramKindNames[:])
	return ParamKind(v), err
}

func ParseRetKind(s string) (RetKind, error) {
	if s == "" || s == "void" {
		return RetPlain, nil
	}
	v, err := parseEnum("return kind", s, retKindNames[:])
	return RetKind(v), err
}

// ResourceDesc describes a handle type exposed by a library.
// Kind is the chain of resource names from the most generic one to this one,
// e.g. [cjson_node, cjson_array].
type ResourceDesc struct {
	Name    string
	CType   string
	Kind    []string
	ByValue bool
}

// IsPointer says if handles of this type are held as pointers
// (e.g. "cJSON *", "png_structp") rather than as a struct value (e.g. "z_stream").
func (res *ResourceDesc) IsPointer() bool {
	return !res.ByValue
}

type Param struct {
	Name     string
	Kind     ParamKind
	Res      *ResourceDesc // for resource params and resource out params
	CType    string
	Values   []string // candidate literals for plain params
	Nullable bool     // NULL may be passed deliberately (fault injection)
	Shared   bool     // owns params: the transferred handle stays borrowable
	Requires State    // borrows params: minimal state of the bound handle
}

func (p *Param) IsResource() bool {
	return p.Res != nil
}

type Ret struct {
	Kind  RetKind
	Res   *ResourceDesc
	CType string
}

func (r *Ret) IsVoid() bool {
	return r.Res == nil && (r.CType == "" || r.CType == "void")
}

type CondKind int

const (
	CondAlways CondKind = iota
	CondNull
	CondNonNull
	CondValue
	CondState
)

var condKindNames = [...]string{
	CondAlways:  "always",
	CondNull:    "null",
	CondNonNull: "nonnull",
	CondValue:   "value",
	CondState:   "state",
}

func (k CondKind) String() string {
	return condKindNames[k]
}

// Cond is the argument condition under which a branch is reached.
type Cond struct {
	Kind  CondKind
	Arg   int
	Value string // for CondValue
	State State  // for CondState
}

type Branch struct {
	ID   string
	Cond Cond
}

const EntryBranch = "entry"

type Function struct {
	ID            int // declaration order
	Name          string
	Symbol        string // mangled symbol, if any
	QualifiedName string
	Params        []*Param
	Ret           Ret
	Effect        Effect
	Critical      bool
	Phases        []Phase // explicit phase placement, nil means derived from Effect
	Branches      []*Branch
}

func (fn *Function) String() string {
	return fn.Name
}

// Produces returns resource types created by the call that need releasing.
func (fn *Function) Produces() []*ResourceDesc {
	if fn.Effect != EffectAllocates {
		return nil
	}
	var res []*ResourceDesc
	if fn.Ret.Kind == RetNewResource && fn.Ret.Res != nil {
		res = append(res, fn.Ret.Res)
	}
	for _, p := range fn.Params {
		if p.Kind == ParamOut && p.Res != nil {
			res = append(res, p.Res)
		}
	}
	return res
}

// Consumes returns index of the parameter whose ownership the call takes
// (released for frees, handed over for transfers), or -1.
func (fn *Function) Consumes() int {
	if fn.Effect != EffectFrees && fn.Effect != EffectTransfers {
		return -1
	}
	for i, p := range fn.Params {
		if p.Kind == ParamOwns {
			return i
		}
	}
	return -1
}

// Container returns index of the parameter that becomes the new owner
// in a transfers call, or -1 if ownership goes to the returned handle
// or to the library itself.
func (fn *Function) Container() int {
	if fn.Effect != EffectTransfers && fn.Effect != EffectMutates {
		return -1
	}
	for i, p := range fn.Params {
		if p.Kind == ParamBorrows {
			return i
		}
	}
	return -1
}

func (fn *Function) inputResources() []*Param {
	var params []*Param
	for _, p := range fn.Params {
		if (p.Kind == ParamBorrows || p.Kind == ParamOwns) && p.Res != nil {
			params = append(params, p)
		}
	}
	return params
}

// NeedsHandles says if the call can't be made without previously created handles.
func (fn *Function) NeedsHandles() bool {
	for _, p := range fn.inputResources() {
		if !p.Nullable {
			return true
		}
	}
	return false
}

// BranchCount is the number of abstract branches the function exposes,
// including the implicit entry branch.
func (fn *Function) BranchCount() int {
	return 1 + len(fn.Branches)
}

// HasBranch says if id names one of the function's branches.
func (fn *Function) HasBranch(id string) bool {
	if id == EntryBranch {
		return true
	}
	for _, br := range fn.Branches {
		if br.ID == id {
			return true
		}
	}
	return false
}
