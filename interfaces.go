package dcc

import "time"

// Level represents the logical level of a pin (Low or High).
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Pin represents a generic GPIO output used to drive one half of the
// complementary H-bridge signal pair.
type Pin interface {
	// Out sets the pin as output with the given level.
	Out(l Level) error
	// Read returns the current level of the pin.
	Read() Level
}

// Clock represents the narrow timing source the bit-timing engine's driver
// loop needs: the ability to hold a half-period and nothing else. The
// engine's state machine itself (Engine.Step) never touches a Clock; only
// the hardware backends that pump Step at the right cadence do.
type Clock interface {
	// Sleep blocks for approximately d. On a bare-metal/TinyGo backend this
	// is serviced by a hardware timer interrupt instead; on the periph.io
	// backend it is a best-effort time.Sleep.
	Sleep(d time.Duration)
}
