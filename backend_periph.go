//go:build !tinygo

package dcc

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// realPin wraps a gpio.PinIO to satisfy the Pin interface.
type realPin struct {
	gpio.PinIO
}

func (p *realPin) Out(l Level) error {
	if l == High {
		return p.PinIO.Out(gpio.High)
	}
	return p.PinIO.Out(gpio.Low)
}

func (p *realPin) Read() Level {
	if p.PinIO.Read() == gpio.High {
		return High
	}
	return Low
}

// realClock is the default Clock, backed by time.Sleep.
type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// BackendConfig configures the Linux/periph.io hardware backend.
type BackendConfig struct {
	// Engine is the bit-timing state machine this backend pumps. Required.
	Engine *Engine
	// PinA and PinB are the periph.io GPIO names (e.g. "GPIO17") of the two
	// complementary outputs driving the track's H-bridge. Required.
	PinA string
	PinB string
	// Clock paces the driver loop between Engine.Step calls. Defaults to a
	// time.Sleep-backed Clock; a caller may substitute one that records
	// durations instead of blocking.
	Clock Clock
}

// Backend drives an Engine's half-cycle state machine from a goroutine
// timed with time.Sleep, applying each HalfCycle to a pair of periph.io GPIO
// pins. Linux's GPIO subsystem has no hardware compare-match timer reachable
// through periph.io, so this is a best-effort software timer, not a timer
// interrupt; it is adequate for bench testing and demos, not for driving
// real decoders that expect NMRA-tolerance timing under load.
type Backend struct {
	engine *Engine
	pinA   Pin
	pinB   Pin
	clock  Clock
	stop   chan struct{}
	done   chan struct{}
}

// NewBackend opens the configured GPIO pins and returns a Backend ready to
// Run.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: periph.io host init: %w", ErrPkg, err)
	}

	a := gpioreg.ByName(cfg.PinA)
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinUnavailable, cfg.PinA)
	}
	b := gpioreg.ByName(cfg.PinB)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinUnavailable, cfg.PinB)
	}
	if err := a.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPkg, err)
	}
	if err := b.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPkg, err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	return &Backend{
		engine: cfg.Engine,
		pinA:   &realPin{PinIO: a},
		pinB:   &realPin{PinIO: b},
		clock:  clock,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Run starts the driver loop in its own goroutine. It returns immediately;
// call Close to stop it.
func (b *Backend) Run() {
	go b.loop()
}

func (b *Backend) loop() {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		default:
		}
		hc := b.engine.Step()
		b.pinA.Out(hc.Level)
		b.pinB.Out(!hc.Level)
		b.clock.Sleep(b.engine.Duration(hc.Ticks))
	}
}

// Close stops the driver loop and drives both output pins low.
func (b *Backend) Close() error {
	select {
	case <-b.stop:
		return ErrBackendClosed
	default:
		close(b.stop)
	}
	<-b.done
	if err := b.pinA.Out(Low); err != nil {
		return err
	}
	return b.pinB.Out(Low)
}
