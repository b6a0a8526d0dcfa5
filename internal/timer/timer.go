// Package timer implements the divider/TIMA timer with the falling-edge
// quirks real hardware exhibits on DIV reset and TAC writes.
package timer

import "github.com/dmgcore/gbcore/internal/savestate"

// selectBits maps a TAC clock-select value to the divider bit that drives
// TIMA's falling-edge detector.
var selectBits = [4]uint{9, 3, 5, 7}

// Timer models the 16-bit internal divider, TIMA/TMA/TAC, and the
// interrupt-request edge the Bus drains once per tick.
type Timer struct {
	div uint16 // full 16-bit divider; only the top 8 bits are CPU-visible as DIV
	tima byte
	tma  byte
	tac  byte

	lastBit  bool // last-sampled (enable && selected-divider-bit) state
	irqReq   bool
}

func New() *Timer {
	return &Timer{}
}

// selectedBit reports the current value of the divider bit TAC selects.
func (t *Timer) selectedBit() bool {
	bit := selectBits[t.tac&0x03]
	return (t.div>>bit)&1 != 0
}

// Tick advances the timer by one T-cycle. The timer always runs at normal
// speed, even in color double-speed mode.
func (t *Timer) Tick() {
	t.div++
	t.updateEdge()
}

// updateEdge re-evaluates the falling-edge detector after div/tac changes
// and clocks TIMA on a 1->0 transition while the timer is enabled.
func (t *Timer) updateEdge() {
	enabled := t.tac&0x04 != 0
	cur := enabled && t.selectedBit()
	if t.lastBit && !cur {
		t.incTIMA()
	}
	t.lastBit = cur
}

func (t *Timer) incTIMA() {
	t.tima++
	if t.tima == 0 {
		t.tima = t.tma
		t.irqReq = true
	}
}

// Read returns the byte visible at the given IO address (0xFF04-0xFF07).
func (t *Timer) Read(addr uint16) byte {
	switch addr {
	case 0xFF04:
		return byte(t.div >> 8)
	case 0xFF05:
		return t.tima
	case 0xFF06:
		return t.tma
	case 0xFF07:
		return t.tac | 0xF8
	default:
		return 0xFF
	}
}

// Write handles a CPU write to a timer register, including the falling-edge
// quirks on DIV reset and TAC change.
func (t *Timer) Write(addr uint16, v byte) {
	switch addr {
	case 0xFF04:
		t.div = 0
		t.updateEdge()
	case 0xFF05:
		t.tima = v
	case 0xFF06:
		t.tma = v
	case 0xFF07:
		t.tac = v & 0x07
		t.updateEdge()
	}
}

// InterruptRequested drains the edge-triggered Timer-overflow request.
func (t *Timer) InterruptRequested() bool {
	r := t.irqReq
	t.irqReq = false
	return r
}

func (t *Timer) SaveState(w *savestate.Writer) {
	w.U16(t.div)
	w.U8(t.tima)
	w.U8(t.tma)
	w.U8(t.tac)
	w.Bool(t.lastBit)
	w.Bool(t.irqReq)
}

func (t *Timer) LoadState(r *savestate.Reader) {
	t.div = r.U16()
	t.tima = r.U8()
	t.tma = r.U8()
	t.tac = r.U8()
	t.lastBit = r.Bool()
	t.irqReq = r.Bool()
}
