package dcc

const (
	emergencyCapacity = 2
	highCapacity      = 10
	lowCapacity       = 10
	repeatCapacity    = 10

	lowPriorityInterval = 5
	repeatInterval      = 11

	speedRepeat   = 3
	functionRepeat = 3
	eStopRepeat   = 10
	opsModeRepeat = 3
	otherRepeat   = 2
)

// packetSink is the handoff boundary between the scheduler's foreground
// Update loop and the bit-timing engine. Engine implements it; tests
// substitute a fake that always reports NeedPacket true so Update's
// queue-selection logic can be driven deterministically without a live
// half-cycle loop.
type packetSink interface {
	NeedPacket() bool
	SupplyPacket(buf []byte)
}

// Scheduler multiplexes four priority queues (emergency, high, low, repeat)
// into the single stream of packets the engine transmits, implementing the
// NMRA refresh-rate and non-starvation rules via the packetCounter gates in
// Update.
type Scheduler struct {
	engine packetSink

	emergency *queue
	high      *queue
	low       *queue
	repeat    *queue

	packetCounter     uint8
	lastPacketAddress uint16
	defaultSpeedSteps uint8
}

// NewScheduler constructs a Scheduler driving the given packet sink (almost
// always an *Engine). Call Setup before the first Update to queue the
// power-up warm-up packets.
func NewScheduler(engine packetSink) *Scheduler {
	return &Scheduler{
		engine:            engine,
		emergency:         newQueue(emergencyCapacity, policyEmergency),
		high:              newQueue(highCapacity, policyBasic),
		low:               newQueue(lowCapacity, policyBasic),
		repeat:            newQueue(repeatCapacity, policyRepeat),
		lastPacketAddress: 0xFF,
		packetCounter:     1,
		defaultSpeedSteps: 128,
	}
}

// SetDefaultSpeedSteps changes the step count SetSpeed uses when called
// with steps == 0.
func (s *Scheduler) SetDefaultSpeedSteps(steps uint8) {
	s.defaultSpeedSteps = steps
}

// Setup queues the track power-up warm-up sequence: 20 digital decoder
// reset packets followed by 10 idle packets, both at emergency priority so
// they precede any application traffic.
func (s *Scheduler) Setup() {
	s.emergency.clear()
	s.emergency.insert(Packet{
		Address:     0,
		AddressKind: ShortAddress,
		Kind:        KindReset,
		Size:        1,
		Repeat:      20,
	})
	s.emergency.insert(Packet{
		Address:     0xFF,
		AddressKind: ShortAddress,
		Kind:        KindIdle,
		Size:        1,
		Repeat:      10,
	})
	globalLogger.Info("scheduler: warm-up reset/idle sequence queued")
}

// SetSpeed encodes a speed/direction command at the given step count
// (14, 28, or 128), or at DefaultSpeedSteps if steps == 0. speed is signed:
// negative is reverse, zero is an emergency stop for this address.
func (s *Scheduler) SetSpeed(address uint16, addressKind AddressKind, speed int8, steps uint8) bool {
	numSteps := steps
	if numSteps == 0 {
		numSteps = s.defaultSpeedSteps
	}
	switch numSteps {
	case 14:
		return s.SetSpeed14(address, addressKind, speed)
	case 28:
		return s.SetSpeed28(address, addressKind, speed)
	case 128:
		return s.SetSpeed128(address, addressKind, speed)
	default:
		return false
	}
}

func speedDirAndMagnitude(speed int8) (dir byte, magnitude int) {
	if speed < 0 {
		return 0, -int(speed)
	}
	return 1, int(speed)
}

func mapRange(x, inMin, inMax, outMin, outMax int) byte {
	return byte((x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin)
}

// SetSpeed14 encodes a 14 speed-step command (no independent F0 bit).
func (s *Scheduler) SetSpeed14(address uint16, addressKind AddressKind, speed int8) bool {
	if speed == 0 {
		return s.EStopAddress(address, addressKind)
	}
	dir, magnitude := speedDirAndMagnitude(speed)
	data := byte(0x40)
	if magnitude != 1 {
		data |= mapRange(magnitude, 2, 127, 2, 15)
	}
	data |= 0x20 * dir
	p := Packet{Address: address, AddressKind: addressKind, Kind: KindSpeed, Size: 1, Repeat: speedRepeat}
	p.Data[0] = data
	return s.high.insert(p)
}

// SetSpeed28 encodes a 28 speed-step command, including the extra
// intermediate-step bit shuffled into bit 4.
func (s *Scheduler) SetSpeed28(address uint16, addressKind AddressKind, speed int8) bool {
	if speed == 0 {
		return s.EStopAddress(address, addressKind)
	}
	dir, magnitude := speedDirAndMagnitude(speed)
	data := byte(0x40)
	if magnitude != 1 {
		data |= mapRange(magnitude, 2, 127, 2, 0x1F)
		data = (data & 0xE0) | ((data & 0x1F) >> 1) | ((data & 0x01) << 4)
	}
	data |= 0x20 * dir
	p := Packet{Address: address, AddressKind: addressKind, Kind: KindSpeed, Size: 1, Repeat: speedRepeat}
	p.Data[0] = data
	return s.high.insert(p)
}

// SetSpeed128 encodes a 128 speed-step command (the advanced operations
// speed instruction, two data bytes).
func (s *Scheduler) SetSpeed128(address uint16, addressKind AddressKind, speed int8) bool {
	if speed == 0 {
		return s.EStopAddress(address, addressKind)
	}
	dir, magnitude := speedDirAndMagnitude(speed)
	var speedByte byte
	if magnitude != 1 {
		speedByte = byte(magnitude)
	}
	speedByte |= 0x80 * dir
	p := Packet{Address: address, AddressKind: addressKind, Kind: KindSpeed, Size: 2, Repeat: speedRepeat}
	p.Data[0] = 0x3F
	p.Data[1] = speedByte
	return s.high.insert(p)
}

// SetFunctions0to4 encodes the F0-F4 function group.
func (s *Scheduler) SetFunctions0to4(address uint16, addressKind AddressKind, functions byte) bool {
	data := byte(0x80)
	data |= (functions >> 1) & 0x0F
	data |= (functions & 0x01) << 4
	p := Packet{Address: address, AddressKind: addressKind, Kind: KindFunction1, Size: 1, Repeat: functionRepeat}
	p.Data[0] = data
	return s.low.insert(p)
}

// SetFunctions5to8 encodes the F5-F8 function group.
func (s *Scheduler) SetFunctions5to8(address uint16, addressKind AddressKind, functions byte) bool {
	data := byte(0xB0) | (functions & 0x0F)
	p := Packet{Address: address, AddressKind: addressKind, Kind: KindFunction2, Size: 1, Repeat: functionRepeat}
	p.Data[0] = data
	return s.low.insert(p)
}

// SetFunctions9to12 encodes the F9-F12 function group.
func (s *Scheduler) SetFunctions9to12(address uint16, addressKind AddressKind, functions byte) bool {
	data := byte(0xA0) | (functions & 0x0F)
	p := Packet{Address: address, AddressKind: addressKind, Kind: KindFunction3, Size: 1, Repeat: functionRepeat}
	p.Data[0] = data
	return s.low.insert(p)
}

// SetFunctions encodes all three function groups in one call, short-
// circuiting (and leaving later groups unsent) if an earlier group's queue
// insert fails.
func (s *Scheduler) SetFunctions(address uint16, addressKind AddressKind, f0to4, f5to8, f9to12 byte) bool {
	if !s.SetFunctions0to4(address, addressKind, f0to4) {
		return false
	}
	if !s.SetFunctions5to8(address, addressKind, f5to8) {
		return false
	}
	return s.SetFunctions9to12(address, addressKind, f9to12)
}

// Functions packs F0-F12 into a single word (F0 at bit 0 .. F12 at bit 12)
// and sends it as the three function group packets.
func (s *Scheduler) Functions(address uint16, addressKind AddressKind, functions uint16) bool {
	return s.SetFunctions(address, addressKind,
		byte(functions&0x1F),
		byte((functions>>5)&0x0F),
		byte((functions>>9)&0x0F))
}

// SetBasicAccessory activates an output of a basic accessory decoder.
func (s *Scheduler) SetBasicAccessory(address uint16, output byte) bool {
	p := Packet{Address: address, AddressKind: ShortAddress, Kind: KindBasicAccessory, Size: 1, Repeat: otherRepeat}
	p.Data[0] = 0x01 | ((output & 0x03) << 1)
	return s.low.insert(p)
}

// UnsetBasicAccessory deactivates an output of a basic accessory decoder.
func (s *Scheduler) UnsetBasicAccessory(address uint16, output byte) bool {
	p := Packet{Address: address, AddressKind: ShortAddress, Kind: KindBasicAccessory, Size: 1, Repeat: otherRepeat}
	p.Data[0] = (output & 0x03) << 1
	return s.low.insert(p)
}

// OpsProgramCV writes cvData to CV number cv (1-1024, as printed on the
// decoder's manual) for address in ops mode (programming on the main),
// using the Configuration Variable Access Instruction - Long Form.
func (s *Scheduler) OpsProgramCV(address uint16, addressKind AddressKind, cv uint16, cvData byte) bool {
	if cv < 1 || cv > 1024 {
		return false
	}
	cvWire := cv - 1
	p := Packet{Address: address, AddressKind: addressKind, Kind: KindOpsModeProgramming, Size: 3, Repeat: opsModeRepeat}
	p.Data[0] = 0xEC | byte((cvWire>>8)&0x03)
	p.Data[1] = byte(cvWire & 0xFF)
	p.Data[2] = cvData
	return s.low.insert(p)
}

// EStop issues a broadcast emergency stop (address 0) and clears the high,
// low and repeat queues; packets already in the emergency queue are kept.
func (s *Scheduler) EStop() bool {
	p := Packet{Address: 0, AddressKind: ShortAddress, Kind: KindEStop, Size: 1, Repeat: eStopRepeat}
	p.Data[0] = 0x71
	ok := s.emergency.insert(p)
	s.high.clear()
	s.low.clear()
	s.repeat.clear()
	globalLogger.Warn("scheduler: broadcast e-stop issued")
	return ok
}

// EStopAddress issues an emergency stop for a single address and forgets
// any other queued packets for that address, so a stale speed command
// cannot be re-sent after the stop.
func (s *Scheduler) EStopAddress(address uint16, addressKind AddressKind) bool {
	p := Packet{Address: address, AddressKind: addressKind, Kind: KindEStop, Size: 1, Repeat: eStopRepeat}
	p.Data[0] = 0x41
	ok := s.emergency.insert(p)
	s.high.forget(address, addressKind)
	s.low.forget(address, addressKind)
	s.repeat.forget(address, addressKind)
	globalLogger.Warn("scheduler: address e-stop issued")
	return ok
}

// repeatPacket hands a just-sent packet to the repeat queue for periodic
// refresh, except for the two kinds that manage their own repetition
// (idle and e-stop, both only ever queued at emergency priority).
func (s *Scheduler) repeatPacket(p Packet) {
	switch p.Kind {
	case KindIdle, KindEStop:
		return
	default:
		s.repeat.insert(p)
	}
}

// Update runs one scheduling cycle: if the engine needs a new packet, it
// picks one by priority (emergency first, then high/low/repeat gated by
// the refresh-rate and non-starvation rules) and hands it to the engine.
// It must be called often enough that the engine never starves; it does
// nothing if the engine is still transmitting its current packet.
func (s *Scheduler) Update() {
	if !s.engine.NeedPacket() {
		return
	}

	var p Packet
	if s.emergency.notEmpty() {
		s.emergency.read(&p)
	} else {
		doHigh := s.high.notEmpty() && s.high.notRepeat(s.lastPacketAddress)
		doLow := s.low.notEmpty() && s.low.notRepeat(s.lastPacketAddress) &&
			!(s.packetCounter%lowPriorityInterval != 0 && doHigh)
		doRepeat := s.repeat.notEmpty() && s.repeat.notRepeat(s.lastPacketAddress) &&
			!(s.packetCounter%repeatInterval != 0 && (doHigh || doLow))

		switch {
		case doHigh:
			s.high.read(&p)
			s.packetCounter++
		case doLow:
			s.low.read(&p)
			s.packetCounter++
		case doRepeat:
			s.repeat.read(&p)
			s.packetCounter++
		default:
			p = NewPacket()
		}
		s.repeatPacket(p)
	}

	s.lastPacketAddress = p.Address

	var buf [maxPacketBytes]byte
	n := p.Serialize(buf[:])
	if n == 0 {
		p = NewPacket()
		n = p.Serialize(buf[:])
	}
	s.engine.SupplyPacket(buf[:n])
}
