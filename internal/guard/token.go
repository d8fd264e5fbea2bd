package guard

// Mount keeps the device mounted for as long as it is live. Acquired via
// Guard.Mount; a token whose Mounted method returns false was rejected and
// grants nothing. Each token represents a single admitted slot and is owned
// by a single caller; it must not be shared or released concurrently.
type Mount struct {
	guard   *Guard
	forced  bool
	mounted bool
}

// Mounted reports whether admission succeeded and the token is still live
func (m *Mount) Mounted() bool {
	return m.mounted
}

// Release returns the admission slot to the guard, which may unmount the
// device if this was the last live mount outside Normal mode. Releasing a
// dead or already-released token is a no-op, so Release is safe to defer
// unconditionally.
func (m *Mount) Release() {
	if !m.mounted {
		return
	}
	m.mounted = false
	m.guard.releaseMount(m.forced)
}

// WriteTransaction signals that a write is in flight. Acquired via
// Guard.Write while holding a live Mount; a token whose Active method
// returns false was rejected and grants nothing.
type WriteTransaction struct {
	guard  *Guard
	forced bool
	active bool
}

// Active reports whether admission succeeded and the transaction is still open
func (w *WriteTransaction) Active() bool {
	return w.active
}

// Release closes the write transaction. Releasing a dead or already-released
// token is a no-op.
func (w *WriteTransaction) Release() {
	if !w.active {
		return
	}
	w.active = false
	w.guard.endWrite(w.forced)
}
