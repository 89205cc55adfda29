package dcc

import "errors"

var (
	// ErrPkg is wrapped by the errors the periph.io backend's NewBackend
	// returns when host initialization or the initial pin writes fail.
	// ErrPinUnavailable and ErrBackendClosed are returned without it.
	ErrPkg = errors.New("dccdrive")

	// ErrPinUnavailable is returned by a hardware backend when a named GPIO
	// line cannot be acquired.
	ErrPinUnavailable = errors.New("gpio pin unavailable")

	// ErrBackendClosed is returned by Close when the backend is already
	// closed.
	ErrBackendClosed = errors.New("hardware backend closed")
)
