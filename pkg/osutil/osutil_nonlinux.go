// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package osutil

import (
	"os"
	"syscall"
)

func procAttr() *syscall.SysProcAttr {
	return nil
}

func killGroup(p *os.Process) {}
