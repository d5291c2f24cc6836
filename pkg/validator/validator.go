// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package validator checks names that end up in generated C code, file paths and metric labels.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/seedforge/seedforge/prog"
)

type Result struct {
	Ok  bool
	Err error
}

var ResultOk = Result{true, nil}

// AnyError returns the first failed result prefixed with errPrefix.
func AnyError(errPrefix string, results ...Result) error {
	for _, res := range results {
		if !res.Ok {
			return wrapError(res.Err.Error(), errPrefix)
		}
	}
	return nil
}

// AllErrors joins all failed results.
func AllErrors(errPrefix string, results ...Result) error {
	var errs []error
	for _, res := range results {
		if !res.Ok {
			errs = append(errs, wrapError(res.Err.Error(), errPrefix))
		}
	}
	return errors.Join(errs...)
}

var (
	LibraryName  = makeStrReFunc("not a library name", "^[a-z0-9_]{1,32}$")
	InstanceName = makeStrReFunc("not an instance name", "^[a-z0-9-]*$")
	Identifier   = makeStrReFunc("not a C identifier", "^[a-zA-Z_][a-zA-Z0-9_]*$")
	HeaderPath   = makeStrReFunc("not a header path", `^[a-zA-Z0-9_][./_a-zA-Z0-9-]*\.(h|hh|hpp)$`)
	MangledName  = makeCombinedStrFunc("not a mangled name",
		makeStrReFunc("no _Z prefix", "^_Z"), makeStrReFunc("not an identifier", "^[a-zA-Z0-9_.$]*$"))
)

// Catalog checks every name of the catalog that is emitted into seeds.
// All bad names are reported, not just the first one.
func Catalog(cat *prog.Catalog) error {
	results := []Result{LibraryName(cat.Library, "library")}
	for _, hdr := range cat.Headers {
		results = append(results, HeaderPath(hdr, "header"))
	}
	for _, res := range cat.Resources {
		results = append(results, Identifier(res.Name, "resource"))
	}
	for _, fn := range cat.Functions {
		results = append(results, Identifier(fn.Name, "function"))
		if fn.Symbol != "" {
			results = append(results, MangledName(fn.Symbol, fn.Name))
		}
	}
	return AllErrors(cat.Library, results...)
}

type strValidationFunc func(string, ...string) Result

func makeStrReFunc(errStr, reStr string) strValidationFunc {
	matchRe := regexp.MustCompile(reStr)
	return func(s string, objName ...string) Result {
		if s == "" {
			return Result{false, wrapError(errStr+": can't be empty", objName...)}
		}
		if strings.Contains(s, "--") || !matchRe.MatchString(s) {
			return Result{false, wrapError(fmt.Sprintf("%v %q", errStr, s), objName...)}
		}
		return ResultOk
	}
}

func makeCombinedStrFunc(errStr string, funcs ...strValidationFunc) strValidationFunc {
	return func(s string, objName ...string) Result {
		for _, f := range funcs {
			if res := f(s); !res.Ok {
				return Result{false, wrapError(errStr+": "+res.Err.Error(), objName...)}
			}
		}
		return ResultOk
	}
}

func wrapError(errStr string, prefix ...string) error {
	if len(prefix) > 0 && prefix[0] != "" {
		return fmt.Errorf("%s: %s", prefix[0], errStr)
	}
	return errors.New(errStr)
}
