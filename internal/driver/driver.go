// Package driver serves the docker volume plugin API on top of the guard.
// The daemon guards a single removable device; volumes are directories on
// it. Every container mount holds a guard token, so the device stays online
// exactly as long as someone is using it and lifecycle modes can drain
// usage without races.
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-plugins-helpers/volume"

	"github.com/powersafefs/fsguard/internal/device"
	"github.com/powersafefs/fsguard/internal/guard"
	"github.com/powersafefs/fsguard/internal/log"
	"github.com/powersafefs/fsguard/internal/validation"
)

// drainPollInterval is how often DrainAndStop re-checks the pending count
const drainPollInterval = 100 * time.Millisecond

// Driver implements the Docker volume plugin interface, admitting every
// device access through the guard.
type Driver struct {
	mu     sync.Mutex
	guard  *guard.Guard
	device device.Device
	// live mount tokens keyed by "<volume>/<caller id>"
	mounts map[string]*guard.Mount
}

// NewDriver creates a new volume driver on top of the given guard. The
// device handle is only used to locate data; all mount state flows through
// the guard.
func NewDriver(g *guard.Guard, dev device.Device) *Driver {
	return &Driver{
		guard:  g,
		device: dev,
		mounts: make(map[string]*guard.Mount),
	}
}

// Create creates a new volume directory on the guarded device
func (d *Driver) Create(req *volume.CreateRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	log.Debug("creating volume", "name", req.Name, "options", req.Options)

	if err := validation.ValidateVolumeName(req.Name); err != nil {
		return err
	}

	// Bring the device online for the duration of the operation
	m := d.guard.Mount(false)
	defer m.Release()
	if !m.Mounted() {
		return fmt.Errorf("device unavailable (mode %s)", d.guard.Mode())
	}

	// Directory creation is a write; it needs its own admission
	w := d.guard.Write(false)
	defer w.Release()
	if !w.Active() {
		return fmt.Errorf("writes rejected (mode %s)", d.guard.Mode())
	}

	path := d.volumePath(req.Name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("volume %s already exists", req.Name)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("check existing volume: %w", err)
	}

	if err := os.Mkdir(path, 0755); err != nil {
		return fmt.Errorf("create volume directory: %w", err)
	}

	log.Info("volume created", "name", req.Name, "path", path)
	return nil
}

// Remove removes a volume directory
func (d *Driver) Remove(req *volume.RemoveRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	log.Debug("removing volume", "name", req.Name)

	if d.liveMounts(req.Name) > 0 {
		return fmt.Errorf("volume %s is in use", req.Name)
	}

	m := d.guard.Mount(false)
	defer m.Release()
	if !m.Mounted() {
		return fmt.Errorf("device unavailable (mode %s)", d.guard.Mode())
	}

	w := d.guard.Write(false)
	defer w.Release()
	if !w.Active() {
		return fmt.Errorf("writes rejected (mode %s)", d.guard.Mode())
	}

	path := d.volumePath(req.Name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("volume %s not found", req.Name)
		}
		return fmt.Errorf("check volume: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove volume directory: %w", err)
	}

	log.Info("volume removed", "name", req.Name)
	return nil
}

// Mount admits a caller to the volume, keeping the device mounted for as
// long as the token is held. Repeat requests with the same caller ID are
// idempotent and hold a single token.
func (d *Driver) Mount(req *volume.MountRequest) (*volume.MountResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	log.Debug("mounting volume", "name", req.Name, "id", req.ID)

	key := tokenKey(req.Name, req.ID)
	if _, ok := d.mounts[key]; ok {
		log.Debug("volume already mounted by caller", "name", req.Name, "id", req.ID)
		return &volume.MountResponse{Mountpoint: d.volumePath(req.Name)}, nil
	}

	m := d.guard.Mount(false)
	if !m.Mounted() {
		return nil, fmt.Errorf("device unavailable (mode %s)", d.guard.Mode())
	}

	path := d.volumePath(req.Name)
	if _, err := os.Stat(path); err != nil {
		m.Release()
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("volume %s not found", req.Name)
		}
		return nil, fmt.Errorf("check volume: %w", err)
	}

	d.mounts[key] = m
	log.Info("volume mounted", "name", req.Name, "id", req.ID, "path", path,
		"pending_mounts", d.guard.PendingMounts())
	return &volume.MountResponse{Mountpoint: path}, nil
}

// Unmount releases the caller's token. Releasing the last token outside
// Normal mode takes the device offline.
func (d *Driver) Unmount(req *volume.UnmountRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	log.Debug("unmounting volume", "name", req.Name, "id", req.ID)

	key := tokenKey(req.Name, req.ID)
	m, ok := d.mounts[key]
	if !ok {
		return fmt.Errorf("volume %s is not mounted by %s", req.Name, req.ID)
	}

	m.Release()
	delete(d.mounts, key)

	log.Info("volume unmounted", "name", req.Name, "id", req.ID,
		"pending_mounts", d.guard.PendingMounts())
	return nil
}

// Path returns the mount path for a volume
func (d *Driver) Path(req *volume.PathRequest) (*volume.PathResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	log.Debug("getting path", "name", req.Name)

	if !d.guard.IsMounted() {
		return nil, fmt.Errorf("device is not mounted")
	}

	path := d.volumePath(req.Name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("volume %s not found", req.Name)
		}
		return nil, fmt.Errorf("check volume: %w", err)
	}

	return &volume.PathResponse{Mountpoint: path}, nil
}

// Get returns information about a volume. The status map carries the
// guard's observable state, which is the daemon's only introspection
// surface.
func (d *Driver) Get(req *volume.GetRequest) (*volume.GetResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	log.Debug("getting volume info", "name", req.Name)

	var mountpoint string
	if d.liveMounts(req.Name) > 0 {
		// A live token proves the volume exists
		mountpoint = d.volumePath(req.Name)
	} else {
		// Existence has to be checked on the device; that is a read and
		// needs admission like any other.
		m := d.guard.Mount(false)
		if !m.Mounted() {
			return nil, fmt.Errorf("device unavailable (mode %s)", d.guard.Mode())
		}
		_, statErr := os.Stat(d.volumePath(req.Name))
		m.Release()
		if statErr != nil {
			if os.IsNotExist(statErr) {
				return nil, fmt.Errorf("volume %s not found", req.Name)
			}
			return nil, fmt.Errorf("check volume: %w", statErr)
		}
	}

	status := map[string]any{
		"mode":           d.guard.Mode().String(),
		"mounted":        d.guard.IsMounted(),
		"pending_mounts": d.guard.PendingMounts(),
		"pending_writes": d.guard.PendingWriteTransactions(),
	}

	return &volume.GetResponse{
		Volume: &volume.Volume{
			Name:       req.Name,
			Mountpoint: mountpoint,
			Status:     status,
		},
	}, nil
}

// List returns all volumes on the guarded device
func (d *Driver) List() (*volume.ListResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	log.Debug("listing volumes")

	// Listing needs the device online; admission applies like any read
	m := d.guard.Mount(false)
	defer m.Release()
	if !m.Mounted() {
		return nil, fmt.Errorf("device unavailable (mode %s)", d.guard.Mode())
	}

	entries, err := os.ReadDir(d.device.MountPath())
	if err != nil {
		return nil, fmt.Errorf("read device root: %w", err)
	}

	var volumes []*volume.Volume
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var mountpoint string
		if d.liveMounts(entry.Name()) > 0 {
			mountpoint = d.volumePath(entry.Name())
		}
		volumes = append(volumes, &volume.Volume{
			Name:       entry.Name(),
			Mountpoint: mountpoint,
		})
	}

	return &volume.ListResponse{Volumes: volumes}, nil
}

// Capabilities returns the driver capabilities
func (d *Driver) Capabilities() *volume.CapabilitiesResponse {
	return &volume.CapabilitiesResponse{
		Capabilities: volume.Capability{
			Scope: "local",
		},
	}
}

// DrainAndStop transitions the guard to lame duck, waits up to the timeout
// for callers to release their tokens, force-releases whatever is left and
// enters shutdown. After it returns, the device is offline and no new
// admission can succeed.
func (d *Driver) DrainAndStop(timeout time.Duration) {
	log.Info("draining", "pending_mounts", d.guard.PendingMounts(), "timeout", timeout)
	d.guard.SetMode(guard.LameDuck)

	deadline := time.Now().Add(timeout)
	for d.guard.PendingMounts() > 0 && time.Now().Before(deadline) {
		time.Sleep(drainPollInterval)
	}

	d.mu.Lock()
	leftover := len(d.mounts)
	for key, m := range d.mounts {
		m.Release()
		delete(d.mounts, key)
	}
	d.mu.Unlock()
	if leftover > 0 {
		log.Warn("drain timed out, released leftover tokens", "count", leftover)
	}

	d.guard.SetMode(guard.Shutdown)
	log.Info("drained", "mounted", d.guard.IsMounted())
}

// liveMounts counts the live tokens held for a volume. Caller must hold d.mu.
func (d *Driver) liveMounts(name string) int {
	count := 0
	for key := range d.mounts {
		if strings.HasPrefix(key, name+"/") {
			count++
		}
	}
	return count
}

// volumePath returns the directory backing a volume
func (d *Driver) volumePath(name string) string {
	return filepath.Join(d.device.MountPath(), name)
}

func tokenKey(name, id string) string {
	return name + "/" + id
}
