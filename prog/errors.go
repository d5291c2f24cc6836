// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownFunction      = errors.New("unknown function")
	ErrCatalogInconsistency = errors.New("catalog inconsistency")
	ErrMalformedSequence    = errors.New("malformed sequence")
)

type UnknownFunctionError struct {
	Library string
	Name    string
}

func (err *UnknownFunctionError) Error() string {
	return fmt.Sprintf("%v: unknown function %q", err.Library, err.Name)
}

func (err *UnknownFunctionError) Unwrap() error {
	return ErrUnknownFunction
}

// InconsistencyError lists all problems found while loading a catalog.
type InconsistencyError struct {
	Library  string
	Problems []string
}

func (err *InconsistencyError) Error() string {
	return fmt.Sprintf("catalog %v is inconsistent:\n\t%v", err.Library, strings.Join(err.Problems, "\n\t"))
}

func (err *InconsistencyError) Unwrap() error {
	return ErrCatalogInconsistency
}

type ViolationKind int

const (
	UseAfterFree ViolationKind = iota
	DoubleFree
	DoubleOwnership
	DanglingRoot
)

func (kind ViolationKind) String() string {
	switch kind {
	case UseAfterFree:
		return "UseAfterFree"
	case DoubleFree:
		return "DoubleFree"
	case DoubleOwnership:
		return "DoubleOwnership"
	case DanglingRoot:
		return "DanglingRoot"
	}
	return fmt.Sprintf("ViolationKind(%d)", int(kind))
}

// LifecycleViolation is the first ownership rule broken by a sequence.
// CallIndex is len(Calls) for handles leaked at the end of the sequence.
type LifecycleViolation struct {
	Kind      ViolationKind
	CallIndex int
	Call      string
	Handle    string
}

func (v *LifecycleViolation) Error() string {
	if v.Call == "" {
		return fmt.Sprintf("%v at end of sequence (call %v): handle %v", v.Kind, v.CallIndex, v.Handle)
	}
	return fmt.Sprintf("%v in call %v (%v): handle %v", v.Kind, v.CallIndex, v.Call, v.Handle)
}

// AsViolation extracts the lifecycle violation from err, if any.
func AsViolation(err error) (*LifecycleViolation, bool) {
	var v *LifecycleViolation
	ok := errors.As(err, &v)
	return v, ok
}
