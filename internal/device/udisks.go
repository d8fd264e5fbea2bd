package device

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/godbus/dbus/v5"

	"github.com/powersafefs/fsguard/internal/log"
)

const (
	// DBus service and interface constants
	dbusService       = "org.freedesktop.UDisks2"
	dbusRootPath      = "/org/freedesktop/UDisks2"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"

	dbusBlockInterface      = "org.freedesktop.UDisks2.Block"
	dbusFilesystemInterface = "org.freedesktop.UDisks2.Filesystem"

	// Error names udisksd reports for states we tolerate
	errAlreadyMounted = "org.freedesktop.UDisks2.Error.AlreadyMounted"
	errNotMounted     = "org.freedesktop.UDisks2.Error.NotMounted"
)

// UDisksDevice drives a removable device through the udisksd system
// service, which picks the mount point (/run/media/...) and handles fstype
// detection itself. The guard serializes all calls, so no locking is needed
// around the cached state.
type UDisksDevice struct {
	devicePath string
	blockPath  dbus.ObjectPath // cached block object path
	mountPoint string          // last mount point reported by udisksd
	conn       DBusConnection
	connectFn  func() (DBusConnection, error) // for reconnection
}

// UDisksDeviceOption is a functional option for UDisksDevice
type UDisksDeviceOption func(*UDisksDevice)

// WithConnection sets a custom DBus connection (for testing)
func WithConnection(conn DBusConnection) UDisksDeviceOption {
	return func(d *UDisksDevice) {
		d.conn = conn
		d.connectFn = nil // disable reconnection when using custom connection
	}
}

// NewUDisksDevice creates a udisks-backed device for the given node
func NewUDisksDevice(devicePath string, opts ...UDisksDeviceOption) (*UDisksDevice, error) {
	d := &UDisksDevice{
		devicePath: devicePath,
		connectFn:  ConnectSystemBus,
	}

	for _, opt := range opts {
		opt(d)
	}

	// Connect if no custom connection provided
	if d.conn == nil {
		conn, err := d.connectFn()
		if err != nil {
			return nil, fmt.Errorf("connect to system bus: %w", err)
		}
		d.conn = conn
	}

	return d, nil
}

// Mount asks udisksd to bring the device online. An already-mounted device
// is adopted by reading its current mount point.
func (d *UDisksDevice) Mount() bool {
	blockPath, err := d.findBlockPath()
	if err != nil {
		log.Warn("udisks block object lookup failed", "device", d.devicePath, "error", err)
		return false
	}

	obj := d.conn.Object(dbusService, blockPath)
	options := map[string]dbus.Variant{
		"auth.no_user_interaction": dbus.MakeVariant(true),
	}

	var mountPoint string
	call := obj.Call(dbusFilesystemInterface+".Mount", 0, options)
	if call.Err != nil {
		var dbusErr dbus.Error
		if errors.As(call.Err, &dbusErr) && dbusErr.Name == errAlreadyMounted {
			return d.adoptExistingMount(obj)
		}
		log.Warn("udisks mount failed", "device", d.devicePath, "error", call.Err)
		return false
	}

	if err := call.Store(&mountPoint); err != nil {
		log.Warn("udisks mount returned unreadable result", "device", d.devicePath, "error", err)
		return false
	}

	d.mountPoint = mountPoint
	log.Debug("device mounted", "device", d.devicePath, "target", mountPoint)
	return true
}

// Unmount asks udisksd to bring the device offline. A device that is
// already offline is not an error.
func (d *UDisksDevice) Unmount() {
	blockPath, err := d.findBlockPath()
	if err != nil {
		log.Warn("udisks block object lookup failed", "device", d.devicePath, "error", err)
		return
	}

	obj := d.conn.Object(dbusService, blockPath)
	options := map[string]dbus.Variant{
		"auth.no_user_interaction": dbus.MakeVariant(true),
	}

	call := obj.Call(dbusFilesystemInterface+".Unmount", 0, options)
	if call.Err != nil {
		var dbusErr dbus.Error
		if errors.As(call.Err, &dbusErr) && dbusErr.Name == errNotMounted {
			log.Debug("device was not mounted", "device", d.devicePath)
			return
		}
		log.Warn("udisks unmount failed", "device", d.devicePath, "error", call.Err)
		return
	}

	log.Debug("device unmounted", "device", d.devicePath, "target", d.mountPoint)
}

// MountPath returns the mount point udisksd chose on the last Mount
func (d *UDisksDevice) MountPath() string {
	return d.mountPoint
}

// Close closes the DBus connection
func (d *UDisksDevice) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// adoptExistingMount reads the MountPoints property of an already-mounted
// filesystem and takes the first entry as our mount point.
func (d *UDisksDevice) adoptExistingMount(obj dbus.BusObject) bool {
	variant, err := obj.GetProperty(dbusFilesystemInterface + ".MountPoints")
	if err != nil {
		log.Warn("udisks mount points lookup failed", "device", d.devicePath, "error", err)
		return false
	}

	points, ok := variant.Value().([][]byte)
	if !ok || len(points) == 0 {
		log.Warn("device reported mounted but has no mount points", "device", d.devicePath)
		return false
	}

	d.mountPoint = bytePathToString(points[0])
	log.Debug("adopted existing mount", "device", d.devicePath, "target", d.mountPoint)
	return true
}

// getManagedObjects calls GetManagedObjects on the ObjectManager interface
// Returns: map[ObjectPath]map[InterfaceName]map[PropertyName]Variant
func (d *UDisksDevice) getManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	obj := d.conn.Object(dbusService, dbus.ObjectPath(dbusRootPath))

	var result map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := obj.Call(dbusObjectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", call.Err)
	}

	if err := call.Store(&result); err != nil {
		return nil, fmt.Errorf("store GetManagedObjects result: %w", err)
	}

	return result, nil
}

// findBlockPath finds the block object whose Device property matches our
// device node, either as configured or with symlinks resolved.
func (d *UDisksDevice) findBlockPath() (dbus.ObjectPath, error) {
	// Return cached path if available
	if d.blockPath != "" {
		return d.blockPath, nil
	}

	resolved, err := filepath.EvalSymlinks(d.devicePath)
	if err != nil {
		resolved = d.devicePath
	}

	objects, err := d.getManagedObjects()
	if err != nil {
		return "", err
	}

	for path, interfaces := range objects {
		blockProps, ok := interfaces[dbusBlockInterface]
		if !ok {
			continue
		}

		deviceVariant, ok := blockProps["Device"]
		if !ok {
			continue
		}

		// The Device property is a NUL-terminated byte path
		raw, ok := deviceVariant.Value().([]byte)
		if !ok {
			continue
		}
		node := bytePathToString(raw)
		if node == d.devicePath || node == resolved {
			d.blockPath = path
			return path, nil
		}
	}

	return "", fmt.Errorf("no udisks block object for device %s", d.devicePath)
}

// bytePathToString decodes udisks' NUL-terminated byte array paths
func bytePathToString(raw []byte) string {
	return string(bytes.TrimRight(raw, "\x00"))
}
