//go:build windows

package cli

import "os/exec"

// detach is a no-op on Windows; the process handle is simply released.
func detach(cmd *exec.Cmd) {}
