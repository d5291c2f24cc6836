// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
)

func (cat *Catalog) initResources() {
	all := make(map[*Function]bool)
	for _, fn := range cat.Functions {
		all[fn] = true
	}
	enabled, disabled := cat.TransitivelyEnabledCalls(all)
	cat.Disabled = disabled
	cat.ctors = make(map[string][]*Function)
	cat.dtors = make(map[string][]*Function)
	for _, res := range cat.Resources {
		for _, fn := range cat.calcResourceCtors(res.Kind, true) {
			if enabled[fn] {
				cat.ctors[res.Name] = append(cat.ctors[res.Name], fn)
			}
		}
		for _, fn := range cat.calcResourceDtors(res.Kind) {
			if enabled[fn] {
				cat.dtors[res.Name] = append(cat.dtors[res.Name], fn)
			}
		}
	}
}

func (cat *Catalog) calcResourceCtors(kind []string, precise bool) []*Function {
	// Find calls that produce the necessary resources.
	var fns []*Function
	for _, fn := range cat.Functions {
		for _, res := range fn.outputResources() {
			if isCompatibleResourceImpl(kind, res.Kind, precise) {
				fns = append(fns, fn)
				break
			}
		}
	}
	return fns
}

// calcResourceDtors finds frees functions that can release a handle of the given kind.
// Generic destructors (e.g. one for any node) release specialized handles too.
func (cat *Catalog) calcResourceDtors(kind []string) []*Function {
	var fns []*Function
	for _, fn := range cat.Functions {
		if fn.Effect != EffectFrees {
			continue
		}
		p := fn.Params[fn.Consumes()]
		if p.Res != nil && isCompatibleResourceImpl(p.Res.Kind, kind, true) {
			fns = append(fns, fn)
		}
	}
	return fns
}

// isCompatibleResource returns true if resource of kind src can be passed as an argument of kind dst.
func (cat *Catalog) isCompatibleResource(dst, src string) bool {
	dstRes := cat.resourceMap[dst]
	if dstRes == nil {
		panic(fmt.Sprintf("unknown resource '%v'", dst))
	}
	srcRes := cat.resourceMap[src]
	if srcRes == nil {
		panic(fmt.Sprintf("unknown resource '%v'", src))
	}
	return isCompatibleResourceImpl(dstRes.Kind, srcRes.Kind, true)
}

// isCompatibleResourceImpl returns true if resource of kind src can be passed as an argument of kind dst.
// If precise is true, then it does not allow passing a less specialized resource (e.g. cjson_node)
// as a more specialized resource (e.g. cjson_array). Otherwise it does.
func isCompatibleResourceImpl(dst, src []string, precise bool) bool {
	if len(dst) > len(src) {
		// dst is more specialized, e.g dst=cjson_array, src=cjson_node.
		if precise {
			return false
		}
		dst = dst[:len(src)]
	}
	if len(src) > len(dst) {
		// src is more specialized, e.g dst=cjson_node, src=cjson_array.
		src = src[:len(dst)]
	}
	for i, k := range dst {
		if k != src[i] {
			return false
		}
	}
	return true
}

func (fn *Function) outputResources() []*ResourceDesc {
	var resources []*ResourceDesc
	if fn.Ret.Res != nil {
		resources = append(resources, fn.Ret.Res)
	}
	for _, p := range fn.Params {
		if p.Kind == ParamOut && p.Res != nil {
			resources = append(resources, p.Res)
		}
	}
	return resources
}

// TransitivelyEnabledCalls removes functions whose input handles can't be created
// by other enabled functions. Nullable inputs don't count, NULL can always be passed.
func (cat *Catalog) TransitivelyEnabledCalls(enabled map[*Function]bool) (map[*Function]bool, map[*Function]string) {
	supported := make(map[*Function]bool)
	disabled := make(map[*Function]string)
	for fn := range enabled {
		supported[fn] = true
	}
	ctors := make(map[string][]*Function)
	for fn := range supported {
		for _, p := range fn.inputResources() {
			if _, ok := ctors[p.Res.Name]; ok {
				continue
			}
			ctors[p.Res.Name] = cat.calcResourceCtors(p.Res.Kind, true)
		}
	}
	for {
		n := len(supported)
		for fn := range supported {
			cantCreate := ""
			var resourceCtors []*Function
			for _, p := range fn.inputResources() {
				if p.Nullable {
					continue
				}
				noctors := true
				for _, ctor := range ctors[p.Res.Name] {
					if supported[ctor] && ctor != fn {
						noctors = false
						break
					}
				}
				if noctors {
					cantCreate = p.Res.Name
					resourceCtors = ctors[p.Res.Name]
					break
				}
			}
			if cantCreate != "" {
				delete(supported, fn)
				var ctorNames []string
				for _, ctor := range resourceCtors {
					ctorNames = append(ctorNames, ctor.Name)
				}
				disabled[fn] = fmt.Sprintf("no functions can create resource %v,"+
					" enable some functions that can create it %v",
					cantCreate, ctorNames)
			}
		}
		if n == len(supported) {
			break
		}
	}
	return supported, disabled
}

// releasableResources computes resources whose handles can be disposed of:
// either freed directly, or transferred into a container that is itself
// releasable, or handed over to the library.
func (cat *Catalog) releasableResources() map[*ResourceDesc]bool {
	releasable := make(map[*ResourceDesc]bool)
	for _, res := range cat.Resources {
		if len(cat.dtors[res.Name]) != 0 {
			releasable[res] = true
		}
	}
	for {
		changed := false
		for _, fn := range cat.Functions {
			if fn.Effect != EffectTransfers || cat.Disabled[fn] != "" {
				continue
			}
			consumed := fn.Params[fn.Consumes()].Res
			ok := true
			if idx := fn.Container(); idx >= 0 {
				ok = releasable[fn.Params[idx].Res]
			} else if fn.Ret.Kind == RetNewResource {
				ok = releasable[fn.Ret.Res]
			}
			if !ok {
				continue
			}
			for _, res := range cat.Resources {
				if !releasable[res] && isCompatibleResourceImpl(consumed.Kind, res.Kind, true) {
					releasable[res] = true
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return releasable
}
