// Copyright 2015/2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// Catalog describes the API of one target library.
// A catalog is immutable after Load and may be shared by concurrent readers.
type Catalog struct {
	Library     string
	Headers     []string
	Functions   []*Function
	Resources   []*ResourceDesc
	FunctionMap map[string]*Function
	// Disabled are functions that can never be called
	// because some of their input handles can't be created.
	Disabled map[*Function]string

	resourceMap   map[string]*ResourceDesc
	ctors         map[string][]*Function
	dtors         map[string][]*Function
	totalBranches int
}

// Load checks the descriptor and builds the catalog from it.
// All problems found are returned in a single *InconsistencyError.
func Load(desc *Descriptor) (*Catalog, error) {
	l := &loader{
		desc: desc,
		cat: &Catalog{
			Library:     desc.Library,
			Headers:     desc.Headers,
			FunctionMap: make(map[string]*Function),
			resourceMap: make(map[string]*ResourceDesc),
		},
	}
	if desc.Library == "" {
		l.errorf("library name is not specified")
	}
	l.loadResources()
	l.loadFunctions()
	if len(l.problems) == 0 {
		l.cat.initResources()
		l.checkReleasable()
	}
	if len(l.problems) != 0 {
		return nil, &InconsistencyError{Library: desc.Library, Problems: l.problems}
	}
	return l.cat, nil
}

type loader struct {
	desc     *Descriptor
	cat      *Catalog
	problems []string
}

func (l *loader) errorf(msg string, args ...any) {
	l.problems = append(l.problems, fmt.Sprintf(msg, args...))
}

func (l *loader) loadResources() {
	parents := make(map[string]string)
	for _, spec := range l.desc.Resources {
		if spec.Name == "" {
			l.errorf("resource without a name")
			continue
		}
		if l.cat.resourceMap[spec.Name] != nil {
			l.errorf("duplicate resource %v", spec.Name)
			continue
		}
		res := &ResourceDesc{
			Name:    spec.Name,
			CType:   spec.CType,
			ByValue: spec.ByValue,
		}
		if res.CType == "" {
			res.CType = "void *"
		}
		l.cat.Resources = append(l.cat.Resources, res)
		l.cat.resourceMap[res.Name] = res
		parents[res.Name] = spec.Parent
	}
	if len(l.desc.Resources) == 0 {
		// Minimal descriptors name no resources, they get a single opaque handle type.
		res := &ResourceDesc{Name: l.desc.Library + "_handle", CType: "void *"}
		l.cat.Resources = append(l.cat.Resources, res)
		l.cat.resourceMap[res.Name] = res
	}
	for _, res := range l.cat.Resources {
		var kind []string
		seen := make(map[string]bool)
		for name := res.Name; name != ""; name = parents[name] {
			if seen[name] {
				l.errorf("resource %v has a cyclic parent chain", res.Name)
				break
			}
			seen[name] = true
			if l.cat.resourceMap[name] == nil {
				l.errorf("resource %v has unknown parent %v", res.Name, name)
				break
			}
			kind = append([]string{name}, kind...)
		}
		res.Kind = kind
	}
}

func (l *loader) resource(what, name string) *ResourceDesc {
	if name == "" {
		if len(l.cat.Resources) == 1 {
			return l.cat.Resources[0]
		}
		l.errorf("%v: resource is not specified", what)
		return nil
	}
	res := l.cat.resourceMap[name]
	if res == nil {
		l.errorf("%v: unknown resource %v", what, name)
	}
	return res
}

func (l *loader) loadFunctions() {
	critical := make(map[string]bool)
	for _, name := range l.desc.Critical {
		critical[name] = true
	}
	for i := range l.desc.Functions {
		spec := &l.desc.Functions[i]
		if spec.Name == "" {
			l.errorf("function #%v has no name", i)
			continue
		}
		if l.cat.FunctionMap[spec.Name] != nil {
			l.errorf("duplicate function %v", spec.Name)
			continue
		}
		fn := l.loadFunction(spec)
		fn.ID = len(l.cat.Functions)
		fn.Critical = fn.Critical || critical[fn.Name]
		delete(critical, fn.Name)
		l.cat.Functions = append(l.cat.Functions, fn)
		l.cat.FunctionMap[fn.Name] = fn
		l.cat.totalBranches += fn.BranchCount()
	}
	var unknown []string
	for name := range critical {
		unknown = append(unknown, name)
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		l.errorf("critical list names unknown function %v", name)
	}
	if len(l.cat.Functions) == 0 {
		l.errorf("no functions")
	}
}

func (l *loader) loadFunction(spec *FunctionSpec) *Function {
	fn := &Function{
		Name:          spec.Name,
		Symbol:        spec.Symbol,
		QualifiedName: spec.Name,
		Critical:      spec.Critical,
	}
	if spec.Symbol != "" {
		fn.QualifiedName = demangle.Filter(spec.Symbol, demangle.NoParams)
	}
	var err error
	if fn.Effect, err = ParseEffect(spec.Effect); err != nil {
		l.errorf("%v: %v", fn.Name, err)
	}
	for i, pspec := range spec.Params {
		p := &Param{
			Name:     pspec.Name,
			CType:    pspec.Type,
			Values:   pspec.Values,
			Nullable: pspec.Nullable,
			Shared:   pspec.Shared,
			Requires: Allocated,
		}
		if p.Name == "" {
			p.Name = fmt.Sprintf("arg%v", i)
		}
		what := fmt.Sprintf("%v: param %v", fn.Name, p.Name)
		if p.Kind, err = ParseParamKind(pspec.Kind); err != nil {
			l.errorf("%v: %v", what, err)
		}
		switch p.Kind {
		case ParamBorrows, ParamOwns:
			p.Res = l.resource(what, pspec.Resource)
		case ParamOut:
			if pspec.Resource != "" || pspec.Type == "" {
				p.Res = l.resource(what, pspec.Resource)
			}
		case ParamPlain:
			if pspec.Resource != "" {
				l.errorf("%v: plain value refers to resource %v", what, pspec.Resource)
			}
			if p.CType == "" {
				p.CType = "int"
			}
		}
		if p.Res != nil && p.CType == "" {
			p.CType = p.Res.CType
		}
		if pspec.Requires != "" {
			if p.Kind != ParamBorrows {
				l.errorf("%v: requires is only allowed for borrowed handles", what)
			}
			if p.Requires, err = ParseState(pspec.Requires); err != nil {
				l.errorf("%v: %v", what, err)
			} else if !p.Requires.Live() {
				l.errorf("%v: required state %v is not a live state", what, p.Requires)
			}
		}
		if pspec.Shared && p.Kind != ParamOwns {
			l.errorf("%v: shared is only allowed for owned handles", what)
		}
		fn.Params = append(fn.Params, p)
	}
	fn.Ret = Ret{CType: spec.Returns.Type}
	if fn.Ret.Kind, err = ParseRetKind(spec.Returns.Kind); err != nil {
		l.errorf("%v: %v", fn.Name, err)
	}
	switch fn.Ret.Kind {
	case RetNewResource, RetBorrowed:
		fn.Ret.Res = l.resource(fn.Name+": return", spec.Returns.Resource)
		if fn.Ret.Res != nil && fn.Ret.CType == "" {
			fn.Ret.CType = fn.Ret.Res.CType
		}
	case RetStatus:
		if fn.Ret.CType == "" {
			fn.Ret.CType = "int"
		}
	default:
		if spec.Returns.Resource != "" {
			l.errorf("%v: plain return refers to resource %v", fn.Name, spec.Returns.Resource)
		}
	}
	for _, name := range spec.Phases {
		phase, err := ParsePhase(name)
		if err != nil {
			l.errorf("%v: %v", fn.Name, err)
			continue
		}
		fn.Phases = append(fn.Phases, phase)
	}
	l.loadBranches(fn, spec.Branches)
	l.checkEffect(fn)
	return fn
}

func (l *loader) loadBranches(fn *Function, specs []BranchSpec) {
	ids := map[string]bool{EntryBranch: true}
	for _, spec := range specs {
		if ids[spec.ID] || spec.ID == "" {
			l.errorf("%v: bad or duplicate branch id %q", fn.Name, spec.ID)
			continue
		}
		ids[spec.ID] = true
		br := &Branch{ID: spec.ID}
		fn.Branches = append(fn.Branches, br)
		when := spec.When
		if when == nil {
			continue
		}
		if when.Arg < 0 || when.Arg >= len(fn.Params) {
			l.errorf("%v: branch %v refers to missing arg %v", fn.Name, spec.ID, when.Arg)
			continue
		}
		br.Cond.Arg = when.Arg
		p := fn.Params[when.Arg]
		set := 0
		if when.Is != "" {
			set++
			switch when.Is {
			case "null":
				br.Cond.Kind = CondNull
			case "nonnull":
				br.Cond.Kind = CondNonNull
			default:
				l.errorf("%v: branch %v: bad condition is=%q", fn.Name, spec.ID, when.Is)
			}
		}
		if when.Equals != "" {
			set++
			br.Cond.Kind = CondValue
			br.Cond.Value = when.Equals
			if p.Kind != ParamPlain {
				l.errorf("%v: branch %v compares non-plain arg %v", fn.Name, spec.ID, p.Name)
			}
		}
		if when.State != "" {
			set++
			br.Cond.Kind = CondState
			state, err := ParseState(when.State)
			if err != nil {
				l.errorf("%v: branch %v: %v", fn.Name, spec.ID, err)
			}
			br.Cond.State = state
			if p.Res == nil || p.Kind == ParamOut {
				l.errorf("%v: branch %v checks state of non-handle arg %v", fn.Name, spec.ID, p.Name)
			}
		}
		if set > 1 {
			l.errorf("%v: branch %v has several conditions", fn.Name, spec.ID)
		}
	}
}

// checkEffect verifies that the effect tag agrees with params and return.
func (l *loader) checkEffect(fn *Function) {
	owns, produces := 0, 0
	for _, p := range fn.Params {
		if p.Kind == ParamOwns {
			owns++
		}
		if p.Kind == ParamOut && p.Res != nil {
			produces++
		}
	}
	if fn.Ret.Kind == RetNewResource {
		produces++
	}
	switch fn.Effect {
	case EffectFrees, EffectTransfers:
		if owns != 1 {
			l.errorf("%v: %v function must take exactly one owned handle, has %v",
				fn.Name, fn.Effect, owns)
		}
	default:
		if owns != 0 {
			l.errorf("%v: %v function takes ownership of a handle", fn.Name, fn.Effect)
		}
	}
	switch fn.Effect {
	case EffectAllocates:
		if produces == 0 {
			l.errorf("%v: allocates function produces no resource", fn.Name)
		}
	case EffectTransfers:
	default:
		if produces != 0 {
			l.errorf("%v: %v function produces a new resource", fn.Name, fn.Effect)
		}
	}
}

// checkReleasable verifies that every produced resource can be released
// by some callable function, directly or through a chain of transfers.
func (l *loader) checkReleasable() {
	releasable := l.cat.releasableResources()
	for _, fn := range l.cat.Functions {
		if l.cat.Disabled[fn] != "" {
			continue
		}
		for _, res := range fn.Produces() {
			if !releasable[res] {
				l.errorf("%v: allocates %v but no reachable function frees it", fn.Name, res.Name)
			}
		}
	}
}

func (cat *Catalog) Lookup(name string) (*Function, error) {
	fn := cat.FunctionMap[name]
	if fn == nil {
		return nil, &UnknownFunctionError{Library: cat.Library, Name: name}
	}
	return fn, nil
}

func (cat *Catalog) Resource(name string) *ResourceDesc {
	return cat.resourceMap[name]
}

// TotalBranches is the number of abstract branches in the whole library.
func (cat *Catalog) TotalBranches() int {
	return cat.totalBranches
}

// Ctors returns enabled functions producing handles usable as res.
func (cat *Catalog) Ctors(res *ResourceDesc) []*Function {
	return cat.ctors[res.Name]
}

// Dtors returns enabled frees functions that accept handles of type res.
func (cat *Catalog) Dtors(res *ResourceDesc) []*Function {
	return cat.dtors[res.Name]
}

// Enabled returns the set of functions that can be called.
func (cat *Catalog) Enabled() map[*Function]bool {
	enabled := make(map[*Function]bool)
	for _, fn := range cat.Functions {
		if cat.Disabled[fn] == "" {
			enabled[fn] = true
		}
	}
	return enabled
}

// CriticalNames returns the sorted critical allowlist.
func (cat *Catalog) CriticalNames() []string {
	var names []string
	for _, fn := range cat.Functions {
		if fn.Critical {
			names = append(names, fn.QualifiedName)
		}
	}
	sort.Strings(names)
	return names
}

// Synthesize generates a sequence with an empty novelty table.
func (cat *Catalog) Synthesize(budget *Budget, rs rand.Source) (*Sequence, error) {
	return Synthesize(cat, budget, rs, nil)
}

func (cat *Catalog) String() string {
	var names []string
	for _, fn := range cat.Functions {
		names = append(names, fn.Name)
	}
	return fmt.Sprintf("%v[%v]", cat.Library, strings.Join(names, " "))
}
