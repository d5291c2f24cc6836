// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package catalog parses declarative library descriptors (YAML or JSON).
//
// A descriptor looks like:
//
//	library: zlib
//	headers: [zlib.h]
//	resources:
//	  - {name: stream, ctype: z_stream *}
//	functions:
//	  deflateInit_:
//	    params:
//	      - {name: strm, kind: borrows_resource, resource: stream}
//	      - {name: level, kind: plain_value, type: int, values: ["0", "9"]}
//	    returns: status_code
//	    effect: mutates
//
// Functions keep their declaration order, it is the final tie-break of the synthesizer.
// Params and returns can be given as a bare kind.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/seedforge/seedforge/prog"
	"gopkg.in/yaml.v3"
)

type rawDescriptor struct {
	Library   string              `yaml:"library"`
	Headers   []string            `yaml:"headers"`
	Critical  []string            `yaml:"critical"`
	Resources []prog.ResourceSpec `yaml:"resources"`
	Functions yaml.Node           `yaml:"functions"`
}

type rawFunction struct {
	Symbol   string            `yaml:"symbol"`
	Params   []yaml.Node       `yaml:"params"`
	Returns  yaml.Node         `yaml:"returns"`
	Effect   string            `yaml:"effect"`
	Critical bool              `yaml:"critical"`
	Phases   []string          `yaml:"phases"`
	Branches []prog.BranchSpec `yaml:"branches"`
}

var (
	functionKeys = []string{"symbol", "params", "returns", "effect", "critical", "phases", "branches"}
	paramKeys    = []string{"name", "kind", "resource", "type", "values", "nullable", "shared", "requires"}
	returnKeys   = []string{"kind", "resource", "type"}
)

// LoadFile parses and loads the descriptor in file.
func LoadFile(file string) (*prog.Catalog, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	cat, err := LoadData(data)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", filepath.Base(file), err)
	}
	return cat, nil
}

// LoadData parses the descriptor and checks it with prog.Load.
func LoadData(data []byte) (*prog.Catalog, error) {
	desc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return prog.Load(desc)
}

// Parse parses the descriptor without checking its consistency.
func Parse(data []byte) (*prog.Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	raw := new(rawDescriptor)
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}
	desc := &prog.Descriptor{
		Library:   raw.Library,
		Headers:   raw.Headers,
		Critical:  raw.Critical,
		Resources: raw.Resources,
	}
	errs := new(Errors)
	switch raw.Functions.Kind {
	case 0:
		errs.push("%v: no functions", raw.Library)
	case yaml.MappingNode:
		for i := 0; i+1 < len(raw.Functions.Content); i += 2 {
			key, val := raw.Functions.Content[i], raw.Functions.Content[i+1]
			fn, err := parseFunction(key.Value, val)
			if err != nil {
				errs.push("line %v: %v: %v", val.Line, key.Value, err)
				continue
			}
			desc.Functions = append(desc.Functions, *fn)
		}
	default:
		errs.push("line %v: functions must be a mapping from name to description", raw.Functions.Line)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return desc, nil
}

func parseFunction(name string, node *yaml.Node) (*prog.FunctionSpec, error) {
	if err := checkKeys(node, functionKeys); err != nil {
		return nil, err
	}
	raw := new(rawFunction)
	if err := node.Decode(raw); err != nil {
		return nil, err
	}
	fn := &prog.FunctionSpec{
		Name:     name,
		Symbol:   raw.Symbol,
		Effect:   raw.Effect,
		Critical: raw.Critical,
		Phases:   raw.Phases,
		Branches: raw.Branches,
	}
	for i := range raw.Params {
		param, err := parseParam(&raw.Params[i])
		if err != nil {
			return nil, fmt.Errorf("param #%v: %w", i, err)
		}
		fn.Params = append(fn.Params, param)
	}
	switch raw.Returns.Kind {
	case 0:
	case yaml.ScalarNode:
		fn.Returns.Kind = raw.Returns.Value
	default:
		if err := checkKeys(&raw.Returns, returnKeys); err != nil {
			return nil, fmt.Errorf("returns: %w", err)
		}
		if err := raw.Returns.Decode(&fn.Returns); err != nil {
			return nil, fmt.Errorf("returns: %w", err)
		}
	}
	return fn, nil
}

func parseParam(node *yaml.Node) (prog.ParamSpec, error) {
	// Simplest case: - plain_value.
	if node.Kind == yaml.ScalarNode {
		return prog.ParamSpec{Kind: node.Value}, nil
	}
	var param prog.ParamSpec
	if err := checkKeys(node, paramKeys); err != nil {
		return param, err
	}
	err := node.Decode(&param)
	return param, err
}

// checkKeys rejects unknown keys in a mapping node.
// Node.Decode does not honor KnownFields, so it's done by hand.
func checkKeys(node *yaml.Node, known []string) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("want a mapping, got %v", node.ShortTag())
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		found := false
		for _, k := range known {
			found = found || k == key
		}
		if !found {
			return fmt.Errorf("unknown field %q", key)
		}
	}
	return nil
}

type Errors []byte

func (errs *Errors) push(msg string, args ...any) {
	*errs = append(*errs, fmt.Sprintf(msg+"\n", args...)...)
}

func (errs *Errors) err() error {
	if len(*errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", *errs)
}
