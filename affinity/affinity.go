// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_stub.go) guarded by build tags.

package affinity

import (
	"fmt"
	"runtime"
)

// SetAffinity pins the current OS thread to a given logical CPU. The caller
// must have locked its goroutine to the thread with runtime.LockOSThread.
func SetAffinity(cpuID int) error {
	if err := ValidCPU(cpuID); err != nil {
		return err
	}
	return setAffinityPlatform(cpuID)
}

// ValidCPU reports whether cpuID names a logical CPU of this machine.
func ValidCPU(cpuID int) error {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return fmt.Errorf("affinity: cpu %d out of range [0,%d)", cpuID, runtime.NumCPU())
	}
	return nil
}
