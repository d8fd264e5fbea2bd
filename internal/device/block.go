package device

import (
	"os"
	"syscall"

	"github.com/powersafefs/fsguard/internal/log"
	"github.com/powersafefs/fsguard/internal/procmounts"
)

// BlockDevice mounts a block device node at a fixed mount point using Linux
// syscalls. State probing goes through /proc/mounts, so a mount left behind
// by a previous run is adopted instead of failing.
type BlockDevice struct {
	devicePath string
	mountPath  string
	fsType     string
}

// NewBlockDevice creates a syscall-based device for the given node
func NewBlockDevice(devicePath, mountPath, fsType string) *BlockDevice {
	return &BlockDevice{
		devicePath: devicePath,
		mountPath:  mountPath,
		fsType:     fsType,
	}
}

// Mount brings the device online at the configured mount point
func (d *BlockDevice) Mount() bool {
	// Adopt a mount left over from a previous run
	existing, err := procmounts.FindByDevice(d.devicePath)
	if err != nil {
		log.Warn("unable to check mount state", "device", d.devicePath, "error", err)
		return false
	}
	if existing != "" {
		if existing == d.mountPath {
			log.Debug("device already mounted", "device", d.devicePath, "target", d.mountPath)
			return true
		}
		log.Warn("device mounted at unexpected location",
			"device", d.devicePath, "target", existing, "expected", d.mountPath)
		return false
	}

	if err := os.MkdirAll(d.mountPath, 0755); err != nil {
		log.Warn("unable to create mount point", "target", d.mountPath, "error", err)
		return false
	}

	// Mount with no special flags
	if err := syscall.Mount(d.devicePath, d.mountPath, d.fsType, 0, ""); err != nil {
		log.Warn("mount failed", "device", d.devicePath, "target", d.mountPath, "fs", d.fsType, "error", err)
		return false
	}

	log.Debug("device mounted", "device", d.devicePath, "target", d.mountPath, "fs", d.fsType)
	return true
}

// Unmount brings the device offline. Failures are logged and swallowed;
// the guard has no channel for them.
func (d *BlockDevice) Unmount() {
	mounted, err := procmounts.IsMountPoint(d.mountPath)
	if err != nil {
		log.Warn("unable to check mount state", "target", d.mountPath, "error", err)
	} else if !mounted {
		log.Debug("nothing mounted", "target", d.mountPath)
		return
	}
	if err := syscall.Unmount(d.mountPath, 0); err != nil {
		log.Warn("unmount failed", "target", d.mountPath, "error", err)
		return
	}
	log.Debug("device unmounted", "target", d.mountPath)
}

// MountPath returns the configured mount point
func (d *BlockDevice) MountPath() string {
	return d.mountPath
}

// Close is a no-op for the syscall backend
func (d *BlockDevice) Close() error {
	return nil
}
