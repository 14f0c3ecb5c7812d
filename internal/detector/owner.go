//go:build !windows

package detector

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// pidAlive returns true if a process with given pid exists (or EPERM).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// OwnerDetector checks a PID together with the start time recorded when the
// PID was captured, so a recycled PID is not mistaken for the original owner.
type OwnerDetector struct {
	PID       int
	StartUnix int64 // 0 skips the reuse check
}

func (d OwnerDetector) Alive() (bool, error) {
	if d.PID <= 0 {
		return false, fmt.Errorf("invalid pid %d", d.PID)
	}
	if !pidAlive(d.PID) {
		return false, nil
	}
	if d.StartUnix > 0 {
		cur := getProcStartUnix(d.PID)
		// start times derived from clock ticks can be off by one second
		if cur > 0 && (cur < d.StartUnix-1 || cur > d.StartUnix+1) {
			return false, nil // PID reused; not our process
		}
	}
	return true, nil
}

func (d OwnerDetector) Describe() string { return fmt.Sprintf("owner:%d@%d", d.PID, d.StartUnix) }

// Self returns the calling process's PID and start time.
func Self() (int, int64) {
	pid := os.Getpid()
	return pid, getProcStartUnix(pid)
}
