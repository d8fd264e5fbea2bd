package guard

import "fmt"

// Mode is the access policy the guard applies to new mount and write
// transaction requests. It also controls when the device gets unmounted.
type Mode int

const (
	// Normal grants all mount and write transaction requests. The device
	// gets mounted when first requested and then stays mounted
	// indefinitely, even after the last token is released.
	Normal Mode = iota

	// EagerUnmount grants all requests like Normal, but unmounts the
	// device as soon as the last mount token is released.
	EagerUnmount

	// LameDuck rejects new mount and write transaction requests unless
	// they are forced. The device gets unmounted as soon as the last
	// mount token is released.
	LameDuck

	// Shutdown rejects all new requests, forced ones included. The device
	// gets unmounted as soon as the last mount token is released.
	Shutdown

	// Disabled unmounts the device immediately, even while mount tokens
	// are live, and rejects all new requests.
	Disabled
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case EagerUnmount:
		return "eager-unmount"
	case LameDuck:
		return "lame-duck"
	case Shutdown:
		return "shutdown"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses the textual mode name used in config files and flags
func ParseMode(s string) (Mode, error) {
	switch s {
	case "normal":
		return Normal, nil
	case "eager-unmount":
		return EagerUnmount, nil
	case "lame-duck":
		return LameDuck, nil
	case "shutdown":
		return Shutdown, nil
	case "disabled":
		return Disabled, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (use 'normal', 'eager-unmount', 'lame-duck', 'shutdown' or 'disabled')", s)
	}
}
