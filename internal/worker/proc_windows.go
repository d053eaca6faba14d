//go:build windows

package worker

import "os/exec"

func detach(cmd *exec.Cmd) {}
