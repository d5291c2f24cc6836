// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package csource

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/seedforge/seedforge/pkg/osutil"
)

var ErrNoCompiler = errors.New("no C compiler")

// Build compiles the seed src into an object file and returns its name.
// Seeds have no main and are linked by the harness, so only an object is produced.
// The caller removes the file.
func Build(compiler string, src []byte, cflags ...string) (string, error) {
	if compiler == "" {
		compiler = "cc"
	}
	if _, err := exec.LookPath(compiler); err != nil {
		return "", ErrNoCompiler
	}
	obj, err := os.CreateTemp("", "seed-*.o")
	if err != nil {
		return "", err
	}
	obj.Close()
	flags := append([]string{"-x", "c", "-std=gnu99", "-Wall", "-O1", "-c", "-o", obj.Name()}, cflags...)
	flags = append(flags, "-")
	cmd := osutil.Command(compiler, flags...)
	cmd.Stdin = bytes.NewReader(src)
	if _, err := osutil.Run(time.Minute, cmd); err != nil {
		os.Remove(obj.Name())
		return "", fmt.Errorf("failed to build seed: %w\n%s", err, src)
	}
	return obj.Name(), nil
}

// Format reformats C source using clang-format.
func Format(src []byte) ([]byte, error) {
	cmd := osutil.Command("clang-format", "-assume-filename=/src.c", "-style", style)
	cmd.Stdin = bytes.NewReader(src)
	cmd.Stderr = new(bytes.Buffer)
	out, err := osutil.Run(30*time.Second, cmd)
	if err != nil {
		return src, fmt.Errorf("failed to format source: %w\n%s", err, cmd.Stderr)
	}
	return out, nil
}

// The header comments must stay on their own lines for ParseHeader.
var style = `{
BasedOnStyle: LLVM,
IndentWidth: 4,
UseTab: Never,
DerivePointerAlignment: false,
PointerAlignment: Right,
AllowShortFunctionsOnASingleLine: false,
ReflowComments: false,
ColumnLimit: 0,
}`
