// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
)

// Serialize returns the textual form of the sequence:
//
//	# Initialize
//	v0 = cJSON_CreateObject()
//	# Configure
//	cJSON_AddNumberToObject(v0, "\"n\"", "1")
//	# Cleanup
//	cJSON_Delete(v0)
//
// Handles are referenced as vN, out slots as &vN, deliberate NULLs as nil,
// literals are quoted C expressions.
func (seq *Sequence) Serialize() []byte {
	buf := new(bytes.Buffer)
	phase := Phase(-1)
	for _, c := range seq.Calls {
		if c.Phase != phase {
			phase = c.Phase
			fmt.Fprintf(buf, "# %v\n", phase)
		}
		if c.Ret != nil {
			fmt.Fprintf(buf, "%v = ", c.Ret)
		}
		fmt.Fprintf(buf, "%v(", c.Func.Name)
		for i, arg := range c.Args {
			if i != 0 {
				fmt.Fprintf(buf, ", ")
			}
			switch arg.Kind {
			case ArgLiteral:
				buf.WriteString(strconv.Quote(arg.Value))
			case ArgResource:
				fmt.Fprintf(buf, "%v", arg.Var)
			case ArgOut:
				fmt.Fprintf(buf, "&%v", arg.Var)
			case ArgNull:
				buf.WriteString("nil")
			}
		}
		fmt.Fprintf(buf, ")\n")
	}
	return buf.Bytes()
}

// Deserialize parses the textual form back against the catalog.
// Unknown function names fail with ErrUnknownFunction.
func Deserialize(cat *Catalog, data []byte) (*Sequence, error) {
	seq := &Sequence{Catalog: cat}
	p := &parser{r: bufio.NewScanner(bytes.NewReader(data))}
	vars := make(map[string]*Var)
	phase := PhaseInitialize
	fail := func(msg string, args ...any) error {
		return fmt.Errorf("%w: line #%v: %v", ErrMalformedSequence, p.l, fmt.Sprintf(msg, args...))
	}
	for p.Scan() {
		p.SkipWs()
		if p.EOF() {
			continue
		}
		if p.Char() == '#' {
			p.Parse('#')
			ph, err := ParsePhase(p.s[p.i:])
			if err != nil {
				return nil, fail("%v", err)
			}
			phase = ph
			continue
		}
		name := p.Ident()
		ret := ""
		if !p.EOF() && p.Char() == '=' {
			ret = name
			p.Parse('=')
			name = p.Ident()
		}
		if p.Err() != nil {
			return nil, p.Err()
		}
		fn, err := cat.Lookup(name)
		if err != nil {
			return nil, err
		}
		c := &Call{Func: fn, Phase: phase}
		p.Parse('(')
		for i := 0; p.Err() == nil && p.Char() != ')'; i++ {
			if i >= len(fn.Params) {
				return nil, fail("too many arguments for %v", fn.Name)
			}
			arg, err := p.parseArg(fn.Params[i], vars)
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, arg)
			if p.Char() != ')' {
				p.Parse(',')
			}
		}
		p.Parse(')')
		if p.Err() != nil {
			return nil, p.Err()
		}
		if !p.EOF() {
			return nil, fail("tailing data")
		}
		if len(c.Args) != len(fn.Params) {
			return nil, fail("wrong call arg count: %v, want %v", len(c.Args), len(fn.Params))
		}
		if ret != "" {
			if fn.Ret.Res == nil {
				return nil, fail("%v does not return a handle", fn.Name)
			}
			v, err := defineVar(vars, ret, fn.Ret.Res, fn.Ret.CType)
			if err != nil {
				return nil, fail("%v", err)
			}
			c.Ret = v
		} else if fn.Ret.Res != nil {
			return nil, fail("result of %v is not stored", fn.Name)
		}
		seq.Calls = append(seq.Calls, c)
	}
	if p.Err() != nil {
		return nil, p.Err()
	}
	if err := seq.validateStructure(); err != nil {
		return nil, err
	}
	return seq, nil
}

func defineVar(vars map[string]*Var, name string, res *ResourceDesc, ctype string) (*Var, error) {
	if vars[name] != nil {
		return nil, fmt.Errorf("%v is defined twice", name)
	}
	if len(name) < 2 || name[0] != 'v' {
		return nil, fmt.Errorf("bad variable name %v", name)
	}
	id, err := strconv.Atoi(name[1:])
	if err != nil {
		return nil, fmt.Errorf("bad variable name %v", name)
	}
	v := &Var{ID: id, Res: res, CType: ctype}
	vars[name] = v
	return v, nil
}

func (p *parser) parseArg(param *Param, vars map[string]*Var) (Arg, error) {
	switch ch := p.Char(); {
	case ch == '"':
		lit, err := strconv.QuotedPrefix(p.s[p.i:])
		if err != nil {
			p.failf("bad literal: %v", err)
			return Arg{}, p.Err()
		}
		p.i += len(lit)
		p.SkipWs()
		val, err := strconv.Unquote(lit)
		if err != nil {
			p.failf("bad literal: %v", err)
			return Arg{}, p.Err()
		}
		return literalArg(val), nil
	case ch == '&':
		p.Parse('&')
		name := p.Ident()
		if p.Err() != nil {
			return Arg{}, p.Err()
		}
		v, err := defineVar(vars, name, param.Res, param.CType)
		if err != nil {
			p.failf("%v", err)
			return Arg{}, p.Err()
		}
		return outArg(v), nil
	default:
		name := p.Ident()
		if p.Err() != nil {
			return Arg{}, p.Err()
		}
		if name == "nil" {
			return nullArg(), nil
		}
		v := vars[name]
		if v == nil {
			p.failf("undefined variable %v", name)
			return Arg{}, p.Err()
		}
		return resourceArg(v), nil
	}
}

type parser struct {
	r *bufio.Scanner
	s string
	i int
	l int
	e error
}

func (p *parser) Scan() bool {
	if p.e != nil {
		return false
	}
	if !p.r.Scan() {
		p.e = p.r.Err()
		return false
	}
	p.s = p.r.Text()
	p.i = 0
	p.l++
	return true
}

func (p *parser) Err() error {
	return p.e
}

func (p *parser) EOF() bool {
	return p.i == len(p.s)
}

func (p *parser) Char() byte {
	if p.e != nil {
		return 0
	}
	if p.EOF() {
		p.failf("unexpected eof")
		return 0
	}
	return p.s[p.i]
}

func (p *parser) Parse(ch byte) {
	if p.e != nil {
		return
	}
	if p.EOF() {
		p.failf("want %s, got EOF", string(ch))
		return
	}
	if p.s[p.i] != ch {
		p.failf("want '%v', got '%v'", string(ch), string(p.s[p.i]))
		return
	}
	p.i++
	p.SkipWs()
}

func (p *parser) SkipWs() {
	for p.i < len(p.s) && (p.s[p.i] == ' ' || p.s[p.i] == '\t') {
		p.i++
	}
}

// Ident parses C identifiers, C++ qualified names included.
func (p *parser) Ident() string {
	i := p.i
	for p.i < len(p.s) &&
		(p.s[p.i] >= 'a' && p.s[p.i] <= 'z' ||
			p.s[p.i] >= 'A' && p.s[p.i] <= 'Z' ||
			p.s[p.i] >= '0' && p.s[p.i] <= '9' ||
			p.s[p.i] == '_' || p.s[p.i] == ':') {
		p.i++
	}
	if i == p.i {
		p.failf("failed to parse identifier at pos %v", i)
		return ""
	}
	s := p.s[i:p.i]
	p.SkipWs()
	return s
}

func (p *parser) failf(msg string, args ...any) {
	p.e = fmt.Errorf("%w: %v\nline #%v: %v", ErrMalformedSequence, fmt.Sprintf(msg, args...), p.l, p.s)
}
