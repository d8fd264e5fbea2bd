// Package device provides the concrete storage backends the guard drives.
package device

import "fmt"

// Device brings a mountable storage device online and offline. Mount and
// Unmount carry the guard's collaborator contract: a false Mount means the
// device is unusable, Unmount has no failure signal. The guard is the only
// caller of both; callers read the data through MountPath once they hold a
// live token.
type Device interface {
	// Mount attempts to bring the device online
	Mount() bool
	// Unmount brings the device offline
	Unmount()
	// MountPath returns the directory the device contents appear under
	// while mounted. For backends that pick the mount point themselves it
	// is only valid after a successful Mount.
	MountPath() string
	// Close releases backend resources (bus connections and the like)
	Close() error
}

// New creates a Device based on the specified backend
func New(backend, devicePath, mountPath, fsType string) (Device, error) {
	switch backend {
	case "syscall":
		return NewBlockDevice(devicePath, mountPath, fsType), nil
	case "udisks":
		return NewUDisksDevice(devicePath)
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'syscall' or 'udisks')", backend)
	}
}
