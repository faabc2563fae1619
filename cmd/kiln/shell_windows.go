// SPDX-License-Identifier: MPL-2.0

//go:build windows

package cmd

import (
	"os"
	"os/exec"
)

// attachPTY degrades to direct stdio wiring on Windows, where the engine
// CLI manages the console itself.
func attachPTY(cmd *exec.Cmd) error {
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
