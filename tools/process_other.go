//go:build !unix

package tools

import "os/exec"

// configureProcessGroup relies on the default CommandContext behaviour of
// killing the shell process.
func configureProcessGroup(*exec.Cmd) {}
