package dcc

import "testing"

func TestQueueInsertCoalescesSameAddressAndKind(t *testing.T) {
	q := newQueue(4, policyBasic)
	q.insert(Packet{Address: 3, Kind: KindSpeed, Size: 1, Data: [3]byte{0x01}})
	q.insert(Packet{Address: 3, Kind: KindSpeed, Size: 1, Data: [3]byte{0x02}})

	if q.written != 1 {
		t.Fatalf("written = %d, want 1 (second insert should coalesce)", q.written)
	}

	var out Packet
	q.read(&out)
	if out.Data[0] != 0x02 {
		t.Fatalf("coalesced packet data = %02X, want 02", out.Data[0])
	}
}

func TestQueueInsertFailsWhenFull(t *testing.T) {
	q := newQueue(2, policyBasic)
	if !q.insert(Packet{Address: 1, Kind: KindSpeed}) {
		t.Fatal("first insert should succeed")
	}
	if !q.insert(Packet{Address: 2, Kind: KindSpeed}) {
		t.Fatal("second insert should succeed")
	}
	if q.insert(Packet{Address: 3, Kind: KindSpeed}) {
		t.Fatal("third insert into a full 2-slot queue should fail")
	}
}

func TestRepeatQueueInsertRejectsZeroRepeat(t *testing.T) {
	q := newQueue(4, policyRepeat)
	if q.insert(Packet{Address: 1, Kind: KindSpeed, Repeat: 0}) {
		t.Fatal("repeat-policy insert with Repeat == 0 should fail")
	}
}

func TestRepeatQueueReadsBackRepeatPlusOneTimes(t *testing.T) {
	q := newQueue(4, policyRepeat)
	const repeat = 3
	q.insert(Packet{Address: 7, Kind: KindFunction1, Repeat: repeat})

	count := 0
	var out Packet
	for q.read(&out) {
		count++
		if count > repeat+5 {
			t.Fatal("repeat queue read more times than expected, likely infinite")
		}
	}
	if count != repeat+1 {
		t.Fatalf("repeat queue read count = %d, want %d", count, repeat+1)
	}
}

func TestEmergencyQueueReadsBackRepeatTimes(t *testing.T) {
	q := newQueue(4, policyEmergency)
	const repeat = 4
	q.insert(Packet{Address: 0, Kind: KindReset, Repeat: repeat})

	count := 0
	var out Packet
	for q.read(&out) {
		count++
		if count > repeat+5 {
			t.Fatal("emergency queue read more times than expected, likely infinite")
		}
	}
	if count != repeat {
		t.Fatalf("emergency queue read count = %d, want %d", count, repeat)
	}
}

func TestForgetRemovesMatchingSlots(t *testing.T) {
	q := newQueue(4, policyBasic)
	q.insert(Packet{Address: 9, AddressKind: ShortAddress, Kind: KindSpeed})
	q.insert(Packet{Address: 1, AddressKind: ShortAddress, Kind: KindFunction1})

	if !q.forget(9, ShortAddress) {
		t.Fatal("forget should report a match for address 9")
	}

	var out Packet
	seenAddr9 := false
	for q.readBasic(&out) {
		if out.Address == 9 && out.Kind == KindSpeed {
			seenAddr9 = true
		}
	}
	if seenAddr9 {
		t.Fatal("forgotten packet for address 9 should not be read back")
	}
}

// TestForgetWrittenBookkeepingQuirk documents a deliberately preserved
// inherited quirk: forget decrements written exactly once regardless of how
// many (or how few) slots actually matched, rather than once per match.
// Here two slots match and written drops by one, not two.
func TestForgetWrittenBookkeepingQuirk(t *testing.T) {
	q := newQueue(4, policyBasic)
	q.insert(Packet{Address: 1, Kind: KindSpeed})
	q.insert(Packet{Address: 1, Kind: KindFunction1})
	q.insert(Packet{Address: 2, Kind: KindFunction2})

	beforeWritten := q.written
	q.forget(1, ShortAddress) // matches two slots

	if q.written != beforeWritten-1 {
		t.Fatalf("written after forget = %d, want %d (decrement-once quirk)", q.written, beforeWritten-1)
	}
}

func TestNotRepeatReportsAddressOfHeadSlot(t *testing.T) {
	q := newQueue(4, policyBasic)
	if q.notRepeat(5) {
		t.Fatal("notRepeat on an empty queue should be false")
	}
	q.insert(Packet{Address: 5, Kind: KindSpeed})
	if q.notRepeat(5) {
		t.Fatal("notRepeat should be false when head address matches lastAddress")
	}
	if !q.notRepeat(6) {
		t.Fatal("notRepeat should be true when head address differs from lastAddress")
	}
}
