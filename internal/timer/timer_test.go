package timer

import "testing"

func TestDivResetFallingEdgeIncrementsTIMA(t *testing.T) {
	tm := New()
	// Select bit 9 (clock-select 00) and enable the timer.
	tm.Write(0xFF07, 0x04)
	// Drive the divider so bit 9 is set.
	for i := 0; i < 512; i++ {
		tm.Tick()
	}
	if !tm.selectedBit() {
		t.Fatalf("expected divider bit 9 to be set before DIV reset")
	}
	before := tm.tima
	tm.Write(0xFF04, 0) // DIV reset with selected bit 1 -> spurious falling edge
	if tm.tima != before+1 {
		t.Fatalf("TIMA = %d, want %d after spurious falling edge", tm.tima, before+1)
	}
}

func TestTIMAOverflowReloadsAndRaisesIRQ(t *testing.T) {
	tm := New()
	tm.Write(0xFF06, 0x42)
	tm.tima = 0xFF
	tm.incTIMA()
	if tm.tima != 0x42 {
		t.Fatalf("TIMA did not reload from TMA: got %#x", tm.tima)
	}
	if !tm.InterruptRequested() {
		t.Fatalf("expected Timer interrupt request on overflow")
	}
	if tm.InterruptRequested() {
		t.Fatalf("InterruptRequested should be edge-consuming")
	}
}

func TestTACWriteFallingEdge(t *testing.T) {
	tm := New()
	tm.Write(0xFF07, 0x05) // enable, select bit 3
	for i := 0; i < 8; i++ {
		tm.Tick()
	}
	before := tm.tima
	// Disabling while the selected bit is still 1 is itself a falling edge.
	tm.Write(0xFF07, 0x01)
	if tm.tima != before+1 {
		t.Fatalf("TIMA = %d, want %d after TAC-write falling edge", tm.tima, before+1)
	}
}
