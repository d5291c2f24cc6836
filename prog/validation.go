// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
)

var debug = false // enabled in tests

// Validate replays the sequence through a fresh state machine.
// It returns nil, a structural error wrapping ErrMalformedSequence or
// ErrUnknownFunction, or the first *LifecycleViolation.
// Deliberate NULL arguments are not bound to any handle and never violate.
func Validate(seq *Sequence) error {
	if err := seq.validateStructure(); err != nil {
		return err
	}
	m := NewMachine()
	for i, c := range seq.Calls {
		if err := m.Apply(i, c); err != nil {
			return err
		}
	}
	return m.Finish(len(seq.Calls))
}

type validCtx struct {
	defined map[*Var]bool
	ids     map[int]bool
}

func (seq *Sequence) validateStructure() error {
	if seq.Catalog == nil {
		return fmt.Errorf("%w: sequence has no catalog", ErrMalformedSequence)
	}
	ctx := &validCtx{
		defined: make(map[*Var]bool),
		ids:     make(map[int]bool),
	}
	prev := PhaseInitialize
	for i, c := range seq.Calls {
		if c.Func == nil {
			return fmt.Errorf("%w: call %v does not have a function", ErrMalformedSequence, i)
		}
		if fn := seq.Catalog.FunctionMap[c.Func.Name]; fn != c.Func {
			return &UnknownFunctionError{Library: seq.Catalog.Library, Name: c.Func.Name}
		}
		if c.Phase < prev || c.Phase >= NumPhases {
			return fmt.Errorf("%w: call %v (%v) is in phase %v after phase %v",
				ErrMalformedSequence, i, c.Func.Name, c.Phase, prev)
		}
		prev = c.Phase
		if err := c.validate(ctx); err != nil {
			return fmt.Errorf("%w: call %v: %w", ErrMalformedSequence, i, err)
		}
	}
	return nil
}

func (c *Call) validate(ctx *validCtx) error {
	fn := c.Func
	if len(c.Args) != len(fn.Params) {
		return fmt.Errorf("function %v: wrong number of arguments, want %v, got %v",
			fn.Name, len(fn.Params), len(c.Args))
	}
	var defs []*Var
	for i, arg := range c.Args {
		p := fn.Params[i]
		switch arg.Kind {
		case ArgLiteral:
			if p.Kind != ParamPlain {
				return fmt.Errorf("function %v: literal passed as %v param %v", fn.Name, p.Kind, p.Name)
			}
			if arg.Value == "" {
				return fmt.Errorf("function %v: empty literal for param %v", fn.Name, p.Name)
			}
		case ArgNull:
			if !p.Nullable || (p.Kind != ParamBorrows && p.Kind != ParamOwns) {
				return fmt.Errorf("function %v: NULL passed to non-nullable param %v", fn.Name, p.Name)
			}
		case ArgResource:
			if p.Kind != ParamBorrows && p.Kind != ParamOwns {
				return fmt.Errorf("function %v: handle passed as %v param %v", fn.Name, p.Kind, p.Name)
			}
			if arg.Var == nil || !ctx.defined[arg.Var] {
				return fmt.Errorf("function %v: param %v references undefined %v", fn.Name, p.Name, arg.Var)
			}
			if arg.Var.Res == nil || !isCompatibleResourceImpl(p.Res.Kind, arg.Var.Res.Kind, true) {
				return fmt.Errorf("function %v: param %v wants %v, got %v",
					fn.Name, p.Name, p.Res.Name, arg.Var.Res)
			}
		case ArgOut:
			if p.Kind != ParamOut {
				return fmt.Errorf("function %v: out slot passed as %v param %v", fn.Name, p.Kind, p.Name)
			}
			if arg.Var == nil || arg.Var.Res != p.Res {
				return fmt.Errorf("function %v: bad out slot for param %v", fn.Name, p.Name)
			}
			defs = append(defs, arg.Var)
		default:
			return fmt.Errorf("function %v: unknown arg kind %v", fn.Name, arg.Kind)
		}
	}
	if (c.Ret != nil) != (fn.Ret.Res != nil) {
		return fmt.Errorf("function %v: return value mismatch", fn.Name)
	}
	if c.Ret != nil {
		if c.Ret.Res != fn.Ret.Res {
			return fmt.Errorf("function %v: returns %v, got %v", fn.Name, fn.Ret.Res.Name, c.Ret.Res)
		}
		defs = append(defs, c.Ret)
	}
	for _, v := range defs {
		if ctx.defined[v] || ctx.ids[v.ID] {
			return fmt.Errorf("function %v: %v is defined twice", fn.Name, v)
		}
		ctx.defined[v] = true
		ctx.ids[v.ID] = true
	}
	return nil
}
