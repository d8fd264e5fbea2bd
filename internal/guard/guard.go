// Package guard coordinates reference-counted access to a mountable storage
// device whose mount and unmount operations must never race with I/O.
//
// A single Guard owns the admission policy for one device. Callers acquire a
// Mount token before reading and additionally a WriteTransaction token before
// writing; releasing the last mount token may unmount the device, depending
// on the current Mode.
package guard

import (
	"sync"

	"github.com/powersafefs/fsguard/internal/log"
)

// Device brings the guarded storage online and offline. The guard is the
// only caller of these methods; embedding code must never invoke them
// directly, or the guard's view of the mount state goes stale.
type Device interface {
	// Mount attempts to bring the device online. A false return means the
	// mount failed (device absent, corrupted, ...) and the device must not
	// be treated as usable.
	Mount() bool

	// Unmount brings the device offline. It has no failure signal and is
	// only called when the guard determined no mount tokens remain, except
	// on the transition into Disabled, where it is called regardless.
	Unmount()
}

// Guard serializes mount/unmount decisions for one device and hands out the
// Mount and WriteTransaction tokens that keep it online. All methods are
// safe for concurrent use; each takes one exclusive lock for its full
// duration, so admissions, releases and mode changes are totally ordered.
type Guard struct {
	device Device

	mu               sync.Mutex
	mode             Mode
	mounted          bool
	mountCount       int
	forcedMountCount int
	writeCount       int
	forcedWriteCount int
}

// New creates a guard for the given device, starting in Normal mode with the
// device assumed unmounted.
func New(device Device) *Guard {
	return &Guard{device: device, mode: Normal}
}

// Mode returns the current access mode
func (g *Guard) Mode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// SetMode transitions the guard to a new access mode. Switching to the mode
// already in effect is a no-op. The transition first undoes the guarantees
// of the mode being left, then establishes the guarantees of the mode being
// entered; see the Mode constants for what each one promises.
//
// Entering Disabled unmounts the device even while mount tokens are live.
// Holders of such tokens must re-check IsMounted or re-acquire after any
// mode change they do not control.
func (g *Guard) SetMode(mode Mode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if mode == g.mode {
		return
	}

	log.Info("guard mode change", "from", g.mode, "to", mode,
		"pending_mounts", g.mountCount, "pending_writes", g.writeCount)

	// Undo the guarantees of the mode being left.
	switch g.mode {
	case EagerUnmount:
		// Eager semantics may have been the only thing keeping the
		// device mounted; settle that before the new mode's remount
		// check runs.
		g.unmountIfIdle()
	case LameDuck:
		// Forced holders admitted during lame duck may be waiting on a
		// device that a Disabled interlude took offline.
		if !g.mounted && g.forcedMountCount > 0 {
			g.mounted = g.device.Mount()
		}
	}

	// Establish the guarantees of the mode being entered.
	switch mode {
	case Normal, EagerUnmount:
		if !g.mounted && g.mountCount > 0 {
			g.mounted = g.device.Mount()
		}
	case LameDuck:
		if !g.mounted && g.forcedMountCount > 0 {
			g.mounted = g.device.Mount()
		}
		g.unmountIfIdle()
	case Shutdown:
		g.unmountIfIdle()
	case Disabled:
		if g.mounted {
			g.device.Unmount()
			g.mounted = false
		}
	}

	g.mode = mode
}

// Mount requests read access to the device. The returned token reports
// whether admission succeeded via Mounted; the caller must check it before
// touching the device and must release the token when done:
//
//	m := g.Mount(false)
//	defer m.Release()
//	if m.Mounted() {
//		// Perform reads.
//	}
//
// A forced request bypasses LameDuck gating; nothing bypasses Shutdown or
// Disabled.
func (g *Guard) Mount(forced bool) *Mount {
	return &Mount{guard: g, forced: forced, mounted: g.tryMount(forced)}
}

// Write requests write access to the device. Writes are only admitted while
// the device is mounted, so callers are expected to hold a live Mount for at
// least the lifetime of the WriteTransaction:
//
//	m := g.Mount(false)
//	defer m.Release()
//	if m.Mounted() {
//		w := g.Write(false)
//		defer w.Release()
//		if w.Active() {
//			// Perform writes.
//		}
//	}
func (g *Guard) Write(forced bool) *WriteTransaction {
	return &WriteTransaction{guard: g, forced: forced, active: g.tryBeginWrite(forced)}
}

// IsMounted reports whether the device is mounted as tracked by the guard.
// While the mode is Disabled it always reports true, even though entering
// Disabled just unmounted the device: in that mode any apparent mount state
// is meaningless, and callers rely on the constant true to tell "device
// intentionally disabled" apart from "device absent". In Normal mode it may
// report true with PendingMounts at zero, since Normal keeps the device warm.
func (g *Guard) IsMounted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode == Disabled {
		return true
	}
	return g.mounted
}

// PendingMounts returns the number of live mount tokens
func (g *Guard) PendingMounts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mountCount
}

// PendingWriteTransactions returns the number of live write transactions
func (g *Guard) PendingWriteTransactions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writeCount
}

// admissible evaluates the mode gate shared by mount and write admission.
// Caller must hold g.mu.
func (g *Guard) admissible(forced bool) bool {
	switch g.mode {
	case Disabled, Shutdown:
		return false
	case LameDuck:
		return forced
	default:
		return true
	}
}

// unmountIfIdle unmounts the device if it is mounted with no live mount
// tokens. Caller must hold g.mu.
func (g *Guard) unmountIfIdle() {
	if g.mounted && g.mountCount == 0 {
		g.device.Unmount()
		g.mounted = false
	}
}

func (g *Guard) tryMount(forced bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.admissible(forced) {
		log.Debug("mount rejected", "mode", g.mode, "forced", forced)
		return false
	}

	if !g.mounted {
		g.mounted = g.device.Mount()
		if !g.mounted {
			log.Warn("device mount failed", "mode", g.mode)
		}
	}
	if g.mounted {
		g.mountCount++
		if forced {
			g.forcedMountCount++
		}
	}
	return g.mounted
}

func (g *Guard) releaseMount(forced bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.mountCount--
	if forced {
		g.forcedMountCount--
	}
	// Normal mode keeps the device warm; every other mode unmounts once
	// the last holder is gone.
	if g.mounted && g.mountCount == 0 && g.mode != Normal {
		g.device.Unmount()
		g.mounted = false
	}
}

func (g *Guard) tryBeginWrite(forced bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	// A write can never be admitted against an unmounted device,
	// regardless of mode or force.
	if !g.mounted {
		return false
	}
	if !g.admissible(forced) {
		log.Debug("write transaction rejected", "mode", g.mode, "forced", forced)
		return false
	}

	g.writeCount++
	if forced {
		g.forcedWriteCount++
	}
	return true
}

func (g *Guard) endWrite(forced bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.writeCount--
	if forced {
		g.forcedWriteCount--
	}
	// Unmount decisions are driven by mount token releases alone.
}
