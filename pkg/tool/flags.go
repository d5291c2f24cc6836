// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tool

import (
	"fmt"
	"strings"
)

// ListFlag collects catalog names or descriptor files.
// It accepts comma-separated lists and may be repeated: -catalogs zlib,cjson -catalogs lib.yaml.
// Duplicates are dropped, the first occurrence wins.
type ListFlag []string

func (l *ListFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *ListFlag) Set(value string) error {
	for _, elem := range strings.Split(value, ",") {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			return fmt.Errorf("empty element in list %q", value)
		}
		if !l.Contains(elem) {
			*l = append(*l, elem)
		}
	}
	return nil
}

func (l *ListFlag) Contains(elem string) bool {
	for _, have := range *l {
		if have == elem {
			return true
		}
	}
	return false
}

// Or returns the list, or def if the flag was not given.
func (l *ListFlag) Or(def []string) []string {
	if len(*l) == 0 {
		return def
	}
	return *l
}
