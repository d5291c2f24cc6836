// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package csource renders sequences as standalone C seeds.
//
// A seed looks as follows:
//
//	#include <cJSON.h>
//	#include <stddef.h>
//	#include <string.h>
//	//<ID> 3
//	/*<Combination>: [cJSON_CreateObject, cJSON_Delete]*/
//	//<score> 0.25, nr_unique_branch: 2
//	//<Quality> {"density":0.125,...,"visited":1}
//	int test_cjson_api_sequence() {
//	    // step 1: Initialize
//	    cJSON *v0 = cJSON_CreateObject();
//	    ...
//	    // step 5: Cleanup
//	    cJSON_Delete(v0);
//	    return 66;
//	    // API sequence test completed successfully
//	}
package csource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/seedforge/seedforge/pkg/quality"
	"github.com/seedforge/seedforge/prog"
)

const (
	idPrefix          = "//<ID> "
	combinationPrefix = "/*<Combination>: ["
	combinationSuffix = "]*/"
	scorePrefix       = "//<score> "
	branchesSep       = ", nr_unique_branch: "
	qualityPrefix     = "//<Quality> "

	successCode    = 66
	successComment = "// API sequence test completed successfully"
)

// Emit renders the seed with its metadata header.
// The output depends only on the arguments.
func Emit(seq *prog.Sequence, rep *quality.Report, id int) ([]byte, error) {
	if seq == nil || rep == nil {
		return nil, fmt.Errorf("nothing to emit")
	}
	quality, err := json.Marshal(rep)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	writeIncludes(buf, seq.Catalog)
	fmt.Fprintf(buf, "%v%v\n", idPrefix, id)
	fmt.Fprintf(buf, "%v%v%v\n", combinationPrefix, strings.Join(seq.Names(), ", "), combinationSuffix)
	fmt.Fprintf(buf, "%v%v%v%v\n", scorePrefix, strconv.FormatFloat(rep.Score(), 'f', -1, 64),
		branchesSep, rep.NumBranches())
	fmt.Fprintf(buf, "%v%s\n", qualityPrefix, quality)
	if err := writeFunction(buf, seq); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render renders the seed without the metadata header.
// It is the form fed to external runners.
func Render(seq *prog.Sequence) ([]byte, error) {
	buf := new(bytes.Buffer)
	writeIncludes(buf, seq.Catalog)
	if err := writeFunction(buf, seq); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FuncName returns name of the C function holding the sequence.
func FuncName(cat *prog.Catalog) string {
	name := []byte(strings.ToLower(cat.Library))
	for i, c := range name {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			name[i] = '_'
		}
	}
	return fmt.Sprintf("test_%s_api_sequence", name)
}

func writeIncludes(buf *bytes.Buffer, cat *prog.Catalog) {
	seen := make(map[string]bool)
	for _, hdr := range append(append([]string{}, cat.Headers...), "stddef.h", "string.h") {
		if seen[hdr] {
			continue
		}
		seen[hdr] = true
		fmt.Fprintf(buf, "#include <%v>\n", hdr)
	}
}

func writeFunction(buf *bytes.Buffer, seq *prog.Sequence) error {
	fmt.Fprintf(buf, "int %v() {\n", FuncName(seq.Catalog))
	for phase := prog.PhaseInitialize; phase < prog.NumPhases; phase++ {
		fmt.Fprintf(buf, "    // step %v: %v\n", int(phase)+1, phase)
		for _, c := range seq.PhaseCalls(phase) {
			if err := writeCall(buf, c); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(buf, "    return %v;\n", successCode)
	fmt.Fprintf(buf, "    %v\n", successComment)
	fmt.Fprintf(buf, "}\n")
	return nil
}

func writeCall(buf *bytes.Buffer, c *prog.Call) error {
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		if i >= len(c.Func.Params) {
			return fmt.Errorf("%v: too many arguments", c.Func.Name)
		}
		param := c.Func.Params[i]
		switch arg.Kind {
		case prog.ArgLiteral:
			args[i] = arg.Value
		case prog.ArgNull:
			args[i] = "NULL"
		case prog.ArgOut:
			if arg.Var == nil {
				return fmt.Errorf("%v: out argument without a variable", c.Func.Name)
			}
			declare(buf, arg.Var)
			args[i] = "&" + arg.Var.String()
		case prog.ArgResource:
			if arg.Var == nil {
				return fmt.Errorf("%v: resource argument without a variable", c.Func.Name)
			}
			args[i] = arg.Var.String()
			if byAddress(param, arg.Var) {
				args[i] = "&" + args[i]
			}
		default:
			return fmt.Errorf("%v: unknown argument kind %v", c.Func.Name, arg.Kind)
		}
	}
	call := fmt.Sprintf("%v(%v);", c.Func.Name, strings.Join(args, ", "))
	if c.Ret != nil {
		fmt.Fprintf(buf, "    %v = %v\n", declaration(c.Func.Ret.CType, c.Ret), call)
	} else {
		fmt.Fprintf(buf, "    %v\n", call)
	}
	return nil
}

// byAddress says if the handle is passed by address: struct handles
// and params declared as pointers to the handle type (e.g. png_infopp).
func byAddress(param *prog.Param, v *prog.Var) bool {
	if v.Res != nil && v.Res.ByValue {
		return true
	}
	return param.Res != nil && param.CType != param.Res.CType
}

// declare emits a zeroed variable for an out slot.
func declare(buf *bytes.Buffer, v *prog.Var) {
	ctype := v.CType
	if v.Res != nil {
		ctype = v.Res.CType
	}
	decl := declaration(ctype, v)
	if strings.HasSuffix(strings.TrimSpace(ctype), "*") || v.Res != nil && v.Res.IsPointer() {
		fmt.Fprintf(buf, "    %v = NULL;\n", decl)
		return
	}
	fmt.Fprintf(buf, "    %v;\n", decl)
	fmt.Fprintf(buf, "    memset(&%v, 0, sizeof(%v));\n", v, v)
}

func declaration(ctype string, v *prog.Var) string {
	ctype = strings.TrimSpace(ctype)
	if strings.HasSuffix(ctype, "*") {
		return ctype + v.String()
	}
	return ctype + " " + v.String()
}
