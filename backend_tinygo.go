//go:build tinygo

package dcc

import (
	"machine"
	"time"
)

// tinygoPin wraps a machine.Pin to satisfy the Pin interface.
type tinygoPin struct {
	pin machine.Pin
}

func (p *tinygoPin) Out(l Level) error {
	p.pin.Set(bool(l))
	return nil
}

func (p *tinygoPin) Read() Level {
	return Level(p.pin.Get())
}

// realClock is the default Clock, backed by time.Sleep.
type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// BackendConfig configures the TinyGo hardware backend.
type BackendConfig struct {
	// Engine is the bit-timing state machine this backend pumps. Required.
	Engine *Engine
	// PinA and PinB are the two complementary outputs driving the track's
	// H-bridge. Required.
	PinA machine.Pin
	PinB machine.Pin
	// Clock paces the driver loop between Engine.Step calls. Defaults to a
	// time.Sleep-backed Clock.
	Clock Clock
}

// Backend drives an Engine's half-cycle state machine from a goroutine that
// calls Step, applies each HalfCycle to a pair of machine.Pin outputs, and
// then sleeps on its Clock (time.Sleep by default) for the half-cycle's
// duration. It does not use a hardware timer interrupt, so its timing is
// only as exact as the runtime's sleep and goroutine scheduling.
type Backend struct {
	engine *Engine
	pinA   Pin
	pinB   Pin
	clock  Clock
	stop   chan struct{}
	done   chan struct{}
}

// NewBackend configures the given pins as outputs and returns a Backend
// ready to Run.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	cfg.PinA.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cfg.PinB.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cfg.PinA.Low()
	cfg.PinB.High()

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	return &Backend{
		engine: cfg.Engine,
		pinA:   &tinygoPin{pin: cfg.PinA},
		pinB:   &tinygoPin{pin: cfg.PinB},
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
	b.pinA.Out(Low)
	b.pinB.Out(Low)
	return nil
}
