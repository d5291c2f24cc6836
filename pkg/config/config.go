// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config loads and saves strict JSON or YAML configs.
// The format is chosen by file extension: .yaml/.yml is YAML, everything else is JSON
// that may contain # comment lines.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/seedforge/seedforge/pkg/osutil"
	"sigs.k8s.io/yaml"
)

func isYAML(filename string) bool {
	ext := filepath.Ext(filename)
	return ext == ".yaml" || ext == ".yml"
}

func LoadFile(filename string, cfg any) error {
	if filename == "" {
		return fmt.Errorf("no config file specified")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if isYAML(filename) {
		err = LoadYAML(data, cfg)
	} else {
		err = LoadData(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("%v: %w", filename, err)
	}
	return nil
}

var commentRe = regexp.MustCompile(`(?m)^[ \t]*#.*$`)

// LoadData parses JSON, unknown fields are an error.
func LoadData(data []byte, cfg any) error {
	dec := json.NewDecoder(bytes.NewReader(commentRe.ReplaceAll(data, nil)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// LoadYAML parses YAML via the json tags of cfg, unknown fields are an error.
func LoadYAML(data []byte, cfg any) error {
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// SaveFile writes cfg in the format implied by the extension of filename.
func SaveFile(filename string, cfg any) error {
	var data []byte
	var err error
	if isYAML(filename) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = SaveData(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return osutil.WriteFile(filename, data)
}

func SaveData(cfg any) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "\t")
}
