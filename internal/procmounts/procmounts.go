package procmounts

import (
	"fmt"
	"path/filepath"
)

// Entry represents an entry in /proc/mounts
type Entry struct {
	Device     string
	MountPoint string
	FSType     string
	Options    string
}

// FindByDevice returns the mount point of the given device node, or an empty
// string if the device is not mounted. The device path is matched both as
// given and with symlinks resolved, since /proc/mounts records the resolved
// node for devices mounted through /dev/disk/by-* links.
func FindByDevice(device string) (string, error) {
	resolved, err := filepath.EvalSymlinks(device)
	if err != nil {
		// If we can't resolve, fall back to the original path
		resolved = device
	}

	mounts, err := Parse()
	if err != nil {
		return "", fmt.Errorf("unable to parse mounts: %w", err)
	}

	for _, mount := range mounts {
		if mount.Device == device || mount.Device == resolved {
			return mount.MountPoint, nil
		}
	}

	return "", nil
}

// IsMountPoint reports whether something is mounted at the given path
func IsMountPoint(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("get absolute path: %w", err)
	}

	mounts, err := Parse()
	if err != nil {
		return false, fmt.Errorf("unable to parse mounts: %w", err)
	}

	for _, mount := range mounts {
		if mount.MountPoint == abs {
			return true, nil
		}
	}

	return false, nil
}
