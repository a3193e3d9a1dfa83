// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/metrics"
)

// ErrWaitTimeout is returned when a process group survives SIGKILL for the
// whole kill timeout.
var ErrWaitTimeout = errors.New("process did not exit after SIGKILL")

// Terminate stops a process group: SIGTERM, then SIGKILL once grace elapses.
// waitCh must deliver the result of cmd.Wait; Terminate consumes it and
// returns that result.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	return terminate(cmd, waitCh, grace, 0)
}

// TerminateWithin behaves like Terminate but gives up after killTimeout
// once SIGKILL was sent, returning ErrWaitTimeout.
func TerminateWithin(cmd *exec.Cmd, waitCh <-chan error, grace, killTimeout time.Duration) error {
	return terminate(cmd, waitCh, grace, killTimeout)
}

func terminate(cmd *exec.Cmd, waitCh <-chan error, grace, killTimeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := log.WithComponent("procgroup").With().Int(log.FieldPID, cmd.Process.Pid).Logger()

	signalGroup(cmd, syscall.SIGTERM)

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-graceTimer.C:
	}

	logger.Warn().Dur("grace", grace).Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	signalGroup(cmd, syscall.SIGKILL)

	var deadline <-chan time.Time
	if killTimeout > 0 {
		t := time.NewTimer(killTimeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return err
	case <-deadline:
		metrics.IncProcWait("timeout")
		logger.Error().Msg("process group still alive after SIGKILL")
		return ErrWaitTimeout
	}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	err := Kill(cmd, sig)
	switch {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		metrics.IncProcTerminate(name, "esrch")
	default:
		metrics.IncProcTerminate(name, "error")
	}
}
