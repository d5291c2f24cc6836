// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Pdeathsig: unix.SIGKILL,
		Setpgid:   true,
	}
}

// killGroup kills the runner together with everything it spawned.
func killGroup(p *os.Process) {
	if p != nil {
		unix.Kill(-p.Pid, unix.SIGKILL)
	}
}
