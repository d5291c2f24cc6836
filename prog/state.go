// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
)

// State is the lifecycle state of a resource handle.
type State int

const (
	Uninitialized State = iota
	Allocated
	Configured
	InUse
	Released
	Invalid
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Allocated:     "allocated",
	Configured:    "configured",
	InUse:         "in_use",
	Released:      "released",
	Invalid:       "invalid",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func ParseState(s string) (State, error) {
	v, err := parseEnum("state", s, stateNames[:])
	return State(v), err
}

// Live says if a handle in this state may still be referenced.
func (s State) Live() bool {
	return s >= Allocated && s <= InUse
}

// Handle is the model of one object created during a sequence.
type Handle struct {
	Var     *Var
	Res     *ResourceDesc
	State   State
	Created int // index of the creating call
	// Owner is the handle that became responsible for releasing this one
	// after a transfer. Nil for roots and for handles given to the library.
	Owner    *Handle
	Library  bool // ownership was transferred into the library itself
	Shared   bool // transferred with shared ownership, still borrowable
	Borrowed bool // borrowed reference, nobody releases it
	Source   *Handle
	children []*Handle
}

// IsRoot says if releasing the handle is the sequence's own responsibility.
func (h *Handle) IsRoot() bool {
	return h.Owner == nil && !h.Library && !h.Borrowed
}

func (h *Handle) transferred() bool {
	return h.Owner != nil || h.Library
}

// Borrowable says if the handle can be bound to a borrows param.
func (h *Handle) Borrowable() bool {
	return h.State.Live() && (!h.transferred() || h.Shared)
}

// Releasable says if the handle can be consumed by a frees/transfers call.
func (h *Handle) Releasable() bool {
	return h.State.Live() && h.IsRoot()
}

func (h *Handle) ownedBy(other *Handle) bool {
	for cur := h; cur != nil; {
		if cur == other {
			return true
		}
		if cur.Owner != nil {
			cur = cur.Owner
		} else {
			cur = cur.Source
		}
	}
	return false
}

func (h *Handle) String() string {
	return fmt.Sprintf("%v(%v, %v)", h.Var, h.Res.Name, h.State)
}

// Machine replays the ownership effects of calls on the handles they bind.
// A machine is private to one sequence.
type Machine struct {
	handles map[*Var]*Handle
	order   []*Handle
}

func NewMachine() *Machine {
	return &Machine{
		handles: make(map[*Var]*Handle),
	}
}

// Handles returns all handles in creation order.
func (m *Machine) Handles() []*Handle {
	return m.order
}

func (m *Machine) Handle(v *Var) *Handle {
	return m.handles[v]
}

// Check reports the violation the call would cause without changing state.
func (m *Machine) Check(idx int, c *Call) error {
	_, err := m.check(idx, c)
	return err
}

// Apply runs the call's effect through the machine.
// On error the machine state is left unchanged.
func (m *Machine) Apply(idx int, c *Call) error {
	consumed, err := m.check(idx, c)
	if err != nil {
		return err
	}
	fn := c.Func
	var created []*Handle
	var ret *Handle
	if c.Ret != nil {
		ret = m.create(c.Ret, idx)
		if fn.Ret.Kind == RetBorrowed {
			ret.Borrowed = true
			ret.Source = m.firstBorrowed(c)
			if ret.Source != nil {
				ret.Source.children = append(ret.Source.children, ret)
			}
		}
		created = append(created, ret)
	}
	for i, arg := range c.Args {
		if arg.Kind == ArgOut && arg.Var != nil && fn.Params[i].Res != nil {
			created = append(created, m.create(arg.Var, idx))
		}
	}
	for _, h := range created {
		if !h.Borrowed {
			// Out slots pass through Uninitialized until the call fills them.
			h.State = Allocated
		} else if h.Source != nil {
			h.State = h.Source.State
		} else {
			h.State = Allocated
		}
	}
	switch fn.Effect {
	case EffectFrees:
		if consumed != nil {
			m.release(consumed)
		}
	case EffectTransfers:
		if consumed != nil {
			container := m.firstBorrowed(c)
			if container == nil && ret != nil && !ret.Borrowed {
				container = ret
			}
			if container != nil {
				consumed.Owner = container
				container.children = append(container.children, consumed)
				m.advance(container, c.Phase)
			} else {
				consumed.Library = true
			}
			consumed.Shared = fn.Params[fn.Consumes()].Shared
		}
	case EffectMutates:
		if h := m.firstBorrowed(c); h != nil {
			m.advance(h, c.Phase)
		}
	}
	return nil
}

// Finish checks the accepting end state: every root is released.
// Transferred handles are the responsibility of their owners.
func (m *Machine) Finish(ncalls int) error {
	for _, h := range m.order {
		if h.IsRoot() && h.State != Released {
			return &LifecycleViolation{
				Kind:      DanglingRoot,
				CallIndex: ncalls,
				Handle:    h.String(),
			}
		}
	}
	return nil
}

// Roots returns live root handles in creation order.
func (m *Machine) Roots() []*Handle {
	var roots []*Handle
	for _, h := range m.order {
		if h.IsRoot() && h.State.Live() {
			roots = append(roots, h)
		}
	}
	return roots
}

func (m *Machine) create(v *Var, idx int) *Handle {
	h := &Handle{
		Var:     v,
		Res:     v.Res,
		State:   Uninitialized,
		Created: idx,
	}
	m.handles[v] = h
	m.order = append(m.order, h)
	return h
}

func (m *Machine) check(idx int, c *Call) (*Handle, error) {
	fn := c.Func
	violation := func(kind ViolationKind, h *Handle) error {
		return &LifecycleViolation{
			Kind:      kind,
			CallIndex: idx,
			Call:      fn.Name,
			Handle:    h.String(),
		}
	}
	consumeIdx := fn.Consumes()
	var consumed *Handle
	for i, arg := range c.Args {
		if arg.Kind != ArgResource {
			continue
		}
		h := m.handles[arg.Var]
		if h == nil {
			return nil, fmt.Errorf("%w: call %v (%v) references undefined %v",
				ErrMalformedSequence, idx, fn.Name, arg.Var)
		}
		p := fn.Params[i]
		if i == consumeIdx {
			switch {
			case h.Borrowed || h.transferred():
				return nil, violation(DoubleOwnership, h)
			case h.State == Released && fn.Effect == EffectFrees:
				return nil, violation(DoubleFree, h)
			case !h.State.Live():
				return nil, violation(UseAfterFree, h)
			}
			consumed = h
			continue
		}
		if !h.State.Live() {
			return nil, violation(UseAfterFree, h)
		}
		if p.Kind == ParamBorrows && h.transferred() && !h.Shared {
			return nil, violation(DoubleOwnership, h)
		}
	}
	if consumed != nil && fn.Effect == EffectTransfers {
		if container := m.firstBorrowed(c); container != nil && container.ownedBy(consumed) {
			return nil, violation(DoubleOwnership, consumed)
		}
	}
	return consumed, nil
}

func (m *Machine) firstBorrowed(c *Call) *Handle {
	for i, arg := range c.Args {
		if arg.Kind == ArgResource && c.Func.Params[i].Kind == ParamBorrows {
			return m.handles[arg.Var]
		}
	}
	return nil
}

func (m *Machine) advance(h *Handle, phase Phase) {
	if !h.State.Live() {
		return
	}
	if phase <= PhaseConfigure {
		if h.State < Configured {
			h.State = Configured
		}
		return
	}
	h.State = InUse
}

func (m *Machine) release(h *Handle) {
	h.State = Released
	for _, child := range h.children {
		m.invalidate(child)
	}
}

func (m *Machine) invalidate(h *Handle) {
	if h.State == Released || h.State == Invalid {
		return
	}
	h.State = Invalid
	for _, child := range h.children {
		m.invalidate(child)
	}
}
