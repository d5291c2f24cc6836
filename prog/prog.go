// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
	"strings"
)

type Phase int

const (
	PhaseInitialize Phase = iota
	PhaseConfigure
	PhaseOperate
	PhaseValidate
	PhaseCleanup
	NumPhases
)

var phaseNames = [...]string{
	PhaseInitialize: "Initialize",
	PhaseConfigure:  "Configure",
	PhaseOperate:    "Operate",
	PhaseValidate:   "Validate",
	PhaseCleanup:    "Cleanup",
}

func (p Phase) String() string {
	if p >= 0 && p < NumPhases {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ParsePhase accepts both "Operate" and "operate".
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if strings.EqualFold(name, s) {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

type Sequence struct {
	Catalog *Catalog
	Calls   []*Call
}

type Call struct {
	Func  *Function
	Phase Phase
	Args  []Arg
	Ret   *Var // set iff the function returns a resource
}

type ArgKind int

const (
	ArgLiteral  ArgKind = iota
	ArgResource         // reference to a previously created handle
	ArgNull             // deliberate NULL, fault injection
	ArgOut              // out slot filled by the call
)

type Arg struct {
	Kind  ArgKind
	Value string // C expression for ArgLiteral
	Var   *Var   // for ArgResource and ArgOut
}

// Var is a variable holding a value produced by a call.
type Var struct {
	ID    int
	Res   *ResourceDesc // nil for plain out values
	CType string
}

func (v *Var) String() string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("v%v", v.ID)
}

func literalArg(val string) Arg {
	return Arg{Kind: ArgLiteral, Value: val}
}

func resourceArg(v *Var) Arg {
	return Arg{Kind: ArgResource, Var: v}
}

func nullArg() Arg {
	return Arg{Kind: ArgNull}
}

func outArg(v *Var) Arg {
	return Arg{Kind: ArgOut, Var: v}
}

// Names returns the ordered list of called function names.
func (seq *Sequence) Names() []string {
	names := make([]string, len(seq.Calls))
	for i, c := range seq.Calls {
		names[i] = c.Func.Name
	}
	return names
}

// Canonical returns identity of the sequence that ignores argument values.
func (seq *Sequence) Canonical() string {
	return strings.Join(seq.Names(), ",")
}

// String returns a very compact representation of the sequence
// that includes only call names.
func (seq *Sequence) String() string {
	return strings.Join(seq.Names(), "-")
}

// Vars returns all variables defined by the sequence in definition order.
func (seq *Sequence) Vars() []*Var {
	var vars []*Var
	for _, c := range seq.Calls {
		for _, arg := range c.Args {
			if arg.Kind == ArgOut && arg.Var != nil {
				vars = append(vars, arg.Var)
			}
		}
		if c.Ret != nil {
			vars = append(vars, c.Ret)
		}
	}
	return vars
}

// PhaseCalls returns calls of the given phase.
func (seq *Sequence) PhaseCalls(phase Phase) []*Call {
	var calls []*Call
	for _, c := range seq.Calls {
		if c.Phase == phase {
			calls = append(calls, c)
		}
	}
	return calls
}

// Clone returns a deep copy of the sequence sharing only catalog objects.
func (seq *Sequence) Clone() *Sequence {
	vars := make(map[*Var]*Var)
	clone := func(v *Var) *Var {
		if v == nil {
			return nil
		}
		if nv := vars[v]; nv != nil {
			return nv
		}
		nv := *v
		vars[v] = &nv
		return &nv
	}
	seq1 := &Sequence{
		Catalog: seq.Catalog,
		Calls:   make([]*Call, len(seq.Calls)),
	}
	for i, c := range seq.Calls {
		c1 := &Call{
			Func:  c.Func,
			Phase: c.Phase,
			Args:  make([]Arg, len(c.Args)),
		}
		for j, arg := range c.Args {
			c1.Args[j] = Arg{Kind: arg.Kind, Value: arg.Value, Var: clone(arg.Var)}
		}
		c1.Ret = clone(c.Ret)
		seq1.Calls[i] = c1
	}
	return seq1
}
