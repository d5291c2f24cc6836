// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package sys holds the built-in library catalogs.
package sys

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/seedforge/seedforge/pkg/catalog"
	"github.com/seedforge/seedforge/prog"
)

//go:embed catalogs/*.yaml
var files embed.FS

var (
	mu       sync.Mutex
	catalogs = make(map[string]*prog.Catalog)
)

// List returns names of all built-in catalogs.
func List() []string {
	entries, err := files.ReadDir("catalogs")
	if err != nil {
		panic(err)
	}
	var names []string
	for _, ent := range entries {
		names = append(names, strings.TrimSuffix(ent.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Descriptor returns the raw descriptor of a built-in catalog.
func Descriptor(name string) ([]byte, error) {
	data, err := files.ReadFile(path.Join("catalogs", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown built-in catalog %q (have %v)", name, strings.Join(List(), ", "))
	}
	return data, nil
}

// Get returns the built-in catalog for the library.
// Catalogs are loaded once and shared, they are immutable.
func Get(name string) (*prog.Catalog, error) {
	mu.Lock()
	defer mu.Unlock()
	if cat := catalogs[name]; cat != nil {
		return cat, nil
	}
	data, err := Descriptor(name)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.LoadData(data)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", name, err)
	}
	catalogs[name] = cat
	return cat, nil
}
