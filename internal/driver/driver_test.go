package driver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-plugins-helpers/volume"

	"github.com/powersafefs/fsguard/internal/guard"
	"github.com/powersafefs/fsguard/internal/log"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	log.Setup(false)
	os.Exit(m.Run())
}

// fakeDevice backs the driver with a plain directory so tests need no real
// block device or root privileges
type fakeDevice struct {
	dir      string
	online   bool
	mountOK  bool
	unmounts int
}

func (d *fakeDevice) Mount() bool {
	if !d.mountOK {
		return false
	}
	d.online = true
	return true
}

func (d *fakeDevice) Unmount() {
	d.online = false
	d.unmounts++
}

func (d *fakeDevice) MountPath() string { return d.dir }
func (d *fakeDevice) Close() error      { return nil }

func newTestDriver(t *testing.T) (*Driver, *guard.Guard, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{dir: t.TempDir(), mountOK: true}
	g := guard.New(dev)
	return NewDriver(g, dev), g, dev
}

func TestCreateAndRemove(t *testing.T) {
	d, _, dev := newTestDriver(t)

	if err := d.Create(&volume.CreateRequest{Name: "photos"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dev.dir, "photos")); err != nil {
		t.Fatalf("volume directory missing: %v", err)
	}

	// Duplicate creation must fail
	if err := d.Create(&volume.CreateRequest{Name: "photos"}); err == nil {
		t.Error("duplicate Create succeeded")
	}

	if err := d.Remove(&volume.RemoveRequest{Name: "photos"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dev.dir, "photos")); !os.IsNotExist(err) {
		t.Error("volume directory still present after Remove")
	}
}

func TestCreateRejectsBadNames(t *testing.T) {
	d, _, _ := newTestDriver(t)

	for _, name := range []string{"", "a", "../escape", "has space"} {
		if err := d.Create(&volume.CreateRequest{Name: name}); err == nil {
			t.Errorf("Create(%q) succeeded, want validation error", name)
		}
	}
}

func TestMountHoldsGuardToken(t *testing.T) {
	d, g, _ := newTestDriver(t)

	if err := d.Create(&volume.CreateRequest{Name: "data"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	resp, err := d.Mount(&volume.MountRequest{Name: "data", ID: "ctr-1"})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if resp.Mountpoint == "" {
		t.Fatal("empty mountpoint")
	}
	if got := g.PendingMounts(); got != 1 {
		t.Errorf("PendingMounts = %d, want 1", got)
	}

	// Same caller again: idempotent, still one token
	resp2, err := d.Mount(&volume.MountRequest{Name: "data", ID: "ctr-1"})
	if err != nil {
		t.Fatalf("repeat Mount: %v", err)
	}
	if resp2.Mountpoint != resp.Mountpoint {
		t.Errorf("repeat Mount path = %q, want %q", resp2.Mountpoint, resp.Mountpoint)
	}
	if got := g.PendingMounts(); got != 1 {
		t.Errorf("PendingMounts after repeat = %d, want 1", got)
	}

	// A second caller holds its own token
	if _, err := d.Mount(&volume.MountRequest{Name: "data", ID: "ctr-2"}); err != nil {
		t.Fatalf("second caller Mount: %v", err)
	}
	if got := g.PendingMounts(); got != 2 {
		t.Errorf("PendingMounts = %d, want 2", got)
	}

	if err := d.Unmount(&volume.UnmountRequest{Name: "data", ID: "ctr-1"}); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if err := d.Unmount(&volume.UnmountRequest{Name: "data", ID: "ctr-2"}); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if got := g.PendingMounts(); got != 0 {
		t.Errorf("PendingMounts after release = %d, want 0", got)
	}
}

func TestMountNonexistentVolume(t *testing.T) {
	d, g, _ := newTestDriver(t)

	if _, err := d.Mount(&volume.MountRequest{Name: "missing", ID: "ctr-1"}); err == nil {
		t.Fatal("Mount of missing volume succeeded")
	}
	// The transient admission token must have been released
	if got := g.PendingMounts(); got != 0 {
		t.Errorf("PendingMounts = %d after failed mount, want 0", got)
	}
}

func TestUnmountUnknownCaller(t *testing.T) {
	d, _, _ := newTestDriver(t)

	if err := d.Unmount(&volume.UnmountRequest{Name: "data", ID: "nobody"}); err == nil {
		t.Error("Unmount without a prior Mount succeeded")
	}
}

func TestMountDeviceFailure(t *testing.T) {
	d, _, dev := newTestDriver(t)
	if err := d.Create(&volume.CreateRequest{Name: "data"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Take the device offline again so the failure is observable
	d.guard.SetMode(guard.EagerUnmount)
	d.guard.SetMode(guard.Normal)
	dev.mountOK = false

	if _, err := d.Mount(&volume.MountRequest{Name: "data", ID: "ctr-1"}); err == nil {
		t.Error("Mount succeeded against a failing device")
	}
}

func TestLameDuckRejectsNewWork(t *testing.T) {
	d, g, _ := newTestDriver(t)

	if err := d.Create(&volume.CreateRequest{Name: "data"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.Mount(&volume.MountRequest{Name: "data", ID: "ctr-1"}); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	g.SetMode(guard.LameDuck)

	if _, err := d.Mount(&volume.MountRequest{Name: "data", ID: "ctr-2"}); err == nil {
		t.Error("Mount admitted under lame duck")
	}
	if err := d.Create(&volume.CreateRequest{Name: "more"}); err == nil {
		t.Error("Create admitted under lame duck")
	}

	// The existing holder keeps working and its release drains the device
	if err := d.Unmount(&volume.UnmountRequest{Name: "data", ID: "ctr-1"}); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if g.IsMounted() {
		t.Error("device still mounted after last holder left under lame duck")
	}
}

func TestRemoveWhileInUse(t *testing.T) {
	d, _, _ := newTestDriver(t)

	if err := d.Create(&volume.CreateRequest{Name: "data"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.Mount(&volume.MountRequest{Name: "data", ID: "ctr-1"}); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if err := d.Remove(&volume.RemoveRequest{Name: "data"}); err == nil {
		t.Error("Remove of an in-use volume succeeded")
	}
}

func TestListAndGet(t *testing.T) {
	d, _, _ := newTestDriver(t)

	for _, name := range []string{"alpha", "beta"} {
		if err := d.Create(&volume.CreateRequest{Name: name}); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
	}
	if _, err := d.Mount(&volume.MountRequest{Name: "alpha", ID: "ctr-1"}); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	list, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Volumes) != 2 {
		t.Fatalf("List returned %d volumes, want 2", len(list.Volumes))
	}

	resp, err := d.Get(&volume.GetRequest{Name: "alpha"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.Volume.Mountpoint == "" {
		t.Error("Get of a mounted volume reported no mountpoint")
	}
	if resp.Volume.Status["mode"] != "normal" {
		t.Errorf("status mode = %v, want normal", resp.Volume.Status["mode"])
	}
	if resp.Volume.Status["pending_mounts"] != 1 {
		t.Errorf("status pending_mounts = %v, want 1", resp.Volume.Status["pending_mounts"])
	}
}

func TestGetUnknownVolume(t *testing.T) {
	d, g, _ := newTestDriver(t)

	if _, err := d.Get(&volume.GetRequest{Name: "no-such-volume"}); err == nil {
		t.Error("Get of an unknown volume succeeded")
	}

	// Existing but unmounted volume is still visible
	if err := d.Create(&volume.CreateRequest{Name: "archive"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	resp, err := d.Get(&volume.GetRequest{Name: "archive"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.Volume.Mountpoint != "" {
		t.Errorf("Get of an unmounted volume reported mountpoint %q", resp.Volume.Mountpoint)
	}
	if got := g.PendingMounts(); got != 0 {
		t.Errorf("PendingMounts after Get = %d, want 0", got)
	}

	// With no active tokens the check needs admission
	g.SetMode(guard.LameDuck)
	if _, err := d.Get(&volume.GetRequest{Name: "archive"}); err == nil {
		t.Error("Get admitted in lame-duck mode with no live mounts")
	}
}

func TestDrainAndStop(t *testing.T) {
	d, g, dev := newTestDriver(t)

	if err := d.Create(&volume.CreateRequest{Name: "data"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.Mount(&volume.MountRequest{Name: "data", ID: "ctr-1"}); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	d.DrainAndStop(200 * time.Millisecond)

	if g.Mode() != guard.Shutdown {
		t.Errorf("mode after drain = %s, want shutdown", g.Mode())
	}
	if got := g.PendingMounts(); got != 0 {
		t.Errorf("PendingMounts after drain = %d, want 0", got)
	}
	if dev.online {
		t.Error("device still online after drain")
	}
	if _, err := d.Mount(&volume.MountRequest{Name: "data", ID: "ctr-2"}); err == nil {
		t.Error("Mount admitted after shutdown")
	}
}
