//go:build !unix

package runner

import "os/exec"

// killProcessGroupOnCancel keeps the os/exec default of killing only the direct child.
func killProcessGroupOnCancel(cmd *exec.Cmd) {}
