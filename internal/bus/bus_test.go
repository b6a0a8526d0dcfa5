package bus

import (
	"testing"

	"github.com/dmgcore/gbcore/internal/cart"
	"github.com/dmgcore/gbcore/internal/joypad"
)

func newTestBus(rom []byte) *Bus {
	return New(cart.NewROMOnly(rom), nil)
}

func TestBus_ROMAndRAM(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0x42
	b := newTestBus(rom)

	if got := b.Read(0x0100); got != 0x42 {
		t.Fatalf("ROM read got %02x, want 42", got)
	}

	b.Write(0xC000, 0x99)
	if got := b.Read(0xC000); got != 0x99 {
		t.Fatalf("RAM read got %02x, want 99", got)
	}

	// Echo RAM mirrors C000-DDFF.
	b.Write(0xE000, 0x55)
	if got := b.Read(0xC000); got != 0x55 {
		t.Fatalf("Echo write did not mirror to WRAM: got %02x", got)
	}

	b.Write(0xFF80, 0xAB)
	if got := b.Read(0xFF80); got != 0xAB {
		t.Fatalf("HRAM read got %02x, want AB", got)
	}

	// ROM-only cart returns 0xFF for external RAM.
	if got := b.Read(0xA123); got != 0xFF {
		t.Fatalf("Ext RAM (ROM-only) got %02x, want FF", got)
	}
}

func TestBus_VRAM_OAM_InterruptRegs(t *testing.T) {
	b := newTestBus(make([]byte, 0x8000))

	b.Write(0x8000, 0x11)
	if got := b.Read(0x8000); got != 0x11 {
		t.Fatalf("VRAM read got %02x, want 11", got)
	}

	b.Write(0xFE00, 0x22)
	if got := b.Read(0xFE00); got != 0x22 {
		t.Fatalf("OAM read got %02x, want 22", got)
	}

	b.Write(0xFF0F, 0x3F) // bits 5-7 always read high
	if got := b.Read(0xFF0F); got != 0xE0|0x1F {
		t.Fatalf("IF read got %02x, want %02x", got, 0xE0|0x1F)
	}

	b.Write(0xFFFF, 0x1B)
	if got := b.Read(0xFFFF); got != 0x1B {
		t.Fatalf("IE read got %02x, want 1B", got)
	}
}

func TestBus_JOYP_And_Timers(t *testing.T) {
	b := newTestBus(make([]byte, 0x8000))

	if got := b.Read(0xFF00); got&0x0F != 0x0F {
		t.Fatalf("JOYP default lower bits got %02x want 0x0F", got)
	}

	// Select D-Pad (P14=0), press Right+Up.
	b.Write(0xFF00, 0x20)
	b.Joypad().Press(joypad.Right)
	b.Joypad().Press(joypad.Up)
	got := b.Read(0xFF00)
	if got&0x0F != 0x0A { // 1010b: Right and Up cleared
		t.Fatalf("JOYP D-Pad got %02x want 0x0A", got&0x0F)
	}

	// Select Buttons (P15=0), press A+Start.
	b.Write(0xFF00, 0x10)
	b.Joypad().Press(joypad.A)
	b.Joypad().Press(joypad.Start)
	got = b.Read(0xFF00)
	if got&0x0F != 0x06 { // 0110b: A and Start cleared
		t.Fatalf("JOYP Buttons got %02x want 0x06", got&0x0F)
	}

	b.Write(0xFF04, 0x12) // DIV write resets divider to 0
	if got := b.Read(0xFF04); got != 0x00 {
		t.Fatalf("DIV got %02x want 00", got)
	}
	b.Write(0xFF05, 0x77)
	if got := b.Read(0xFF05); got != 0x77 {
		t.Fatalf("TIMA got %02x want 77", got)
	}
	b.Write(0xFF06, 0x88)
	if got := b.Read(0xFF06); got != 0x88 {
		t.Fatalf("TMA got %02x want 88", got)
	}
	b.Write(0xFF07, 0xFD)
	if got := b.Read(0xFF07); got != (0xF8 | (0xFD & 0x07)) {
		t.Fatalf("TAC got %02x want %02x", got, 0xF8|(0xFD&0x07))
	}
}

func TestBus_SerialImmediate(t *testing.T) {
	b := newTestBus(make([]byte, 0x8000))
	var out []byte
	b.SetSerialWriter(writerFunc(func(p []byte) (int, error) {
		out = append(out, p...)
		return len(p), nil
	}))

	b.Write(0xFF01, 0x41) // 'A'
	b.Write(0xFF02, 0x81) // start, external clock
	if len(out) != 1 || out[0] != 0x41 {
		t.Fatalf("serial out got %v want [0x41]", out)
	}
	if got := b.Read(0xFF02); got&0x80 != 0 {
		t.Fatalf("serial control bit7 not cleared: %02x", got)
	}
	if b.Read(0xFF0F)&(1<<3) == 0 {
		t.Fatalf("serial IF bit not set after transfer")
	}
}

func TestBus_SerialTestResultLatch(t *testing.T) {
	b := newTestBus(make([]byte, 0x8000))
	for _, c := range "...Passed" {
		b.Write(0xFF01, byte(c))
		b.Write(0xFF02, 0x81)
	}
	if got := b.TestResult(); got != TestPassed {
		t.Fatalf("TestResult got %v want TestPassed", got)
	}
}

func TestBus_HDMACancelDuringHBlankTransfer(t *testing.T) {
	b := newTestBus(make([]byte, 0x8000))
	b.SetCGBMode(true)
	b.Write(0xFF51, 0xC0)
	b.Write(0xFF52, 0x00)
	b.Write(0xFF53, 0x00)
	b.Write(0xFF54, 0x00)
	b.Write(0xFF55, 0x80) // start HBlank DMA, 1 block

	if got := b.Read(0xFF55); got&0x80 != 0 {
		t.Fatalf("FF55 got %02x, want bit7 clear while HBlank transfer active", got)
	}
	b.Write(0xFF55, 0x00) // bit7=0 while active cancels, rather than starting GDMA
	if got := b.Read(0xFF55); got != 0xFF {
		t.Fatalf("FF55 got %02x after cancellation, want FF (inactive)", got)
	}
}

// TestBus_TimerTickDelegatesToTimerPackage exercises the timer through a
// full Bus.Tick() sequence (the path the CPU actually drives), rather than
// poking timer-internal fields directly: Bus.Tick advances the divider by
// one M-cycle (4 T-cycles) and drains internal/timer's interrupt edge into
// IF bit2 on TIMA overflow/reload.
func TestBus_TimerTickDelegatesToTimerPackage(t *testing.T) {
	b := newTestBus(make([]byte, 0x8000))
	b.Write(0xFF06, 0xAB)       // TMA
	b.Write(0xFF07, 0x05)       // enable, clock-select 01 (bit3 of div)
	b.Write(0xFF05, 0xFF)       // TIMA one tick from overflow

	// selectBits[1] = 3, so TIMA increments once div's bit3 falls from 1 to
	// 0, which happens exactly when the 16-T-cycle divider reaches 16 -
	// four M-cycles.
	for i := 0; i < 4; i++ {
		b.Tick()
	}
	if b.Read(0xFF0F)&(1<<2) == 0 {
		t.Fatalf("expected timer IF bit set after TIMA overflow/reload, IF=%02x", b.Read(0xFF0F))
	}
	if got := b.Read(0xFF05); got != 0xAB {
		t.Fatalf("TIMA got %02x after reload, want TMA (AB)", got)
	}
}

func TestBus_OAMDMA(t *testing.T) {
	b := newTestBus(make([]byte, 0x8000))
	b.Write(0xC000, 0x10)
	b.Write(0xC001, 0x20)
	b.Write(0xC09F, 0x30)

	b.Write(0xFF46, 0xC0) // DMA from 0xC000

	if got := b.Read(0xFE00); got != 0x10 {
		t.Fatalf("OAM[0] got %02x want 10", got)
	}
	if got := b.Read(0xFE01); got != 0x20 {
		t.Fatalf("OAM[1] got %02x want 20", got)
	}
	if got := b.Read(0xFE9F); got != 0x30 {
		t.Fatalf("OAM[0x9F] got %02x want 30", got)
	}
}

func TestBus_GeneralPurposeHDMA(t *testing.T) {
	b := newTestBus(make([]byte, 0x8000))
	b.SetCGBMode(true)
	b.Write(0xC000, 0xAA)
	b.Write(0xC001, 0xBB)

	b.Write(0xFF51, 0xC0) // source high
	b.Write(0xFF52, 0x00) // source low
	b.Write(0xFF53, 0x00) // dest high (VRAM offset 0)
	b.Write(0xFF54, 0x00) // dest low
	b.Write(0xFF55, 0x00) // length = 1 block (0x10 bytes), GDMA (bit7=0)

	if got := b.Read(0x8000); got != 0xAA {
		t.Fatalf("HDMA dest[0] got %02x want AA", got)
	}
	if got := b.Read(0x8001); got != 0xBB {
		t.Fatalf("HDMA dest[1] got %02x want BB", got)
	}
	if got := b.Read(0xFF55); got != 0xFF {
		t.Fatalf("FF55 got %02x after immediate GDMA, want FF (inactive)", got)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// fakeAudio is an AudioUnit test double that records the cycle count it's
// ticked with, so tests can assert on Bus's half-speed wiring without
// depending on internal/apu's own frame-sequencer behavior.
type fakeAudio struct {
	ticks []int
}

func (f *fakeAudio) Read(addr uint16) byte         { return 0xFF }
func (f *fakeAudio) Write(addr uint16, value byte) {}
func (f *fakeAudio) Tick(cycles int)               { f.ticks = append(f.ticks, cycles) }

// TestBus_APUTicksHalfSpeedInDoubleSpeedMode guards against the AU's Tick
// call falling out of sync with the PU's: both must advance by the same
// halved cycle count once double-speed mode is engaged via KEY1 (FF4D).
func TestBus_APUTicksHalfSpeedInDoubleSpeedMode(t *testing.T) {
	au := &fakeAudio{}
	b := New(cart.NewROMOnly(make([]byte, 0x8000)), au)
	b.SetCGBMode(true)

	b.Tick()
	if n := len(au.ticks); n != 1 || au.ticks[0] != 4 {
		t.Fatalf("normal speed: AU ticked %v, want a single Tick(4)", au.ticks)
	}

	b.Write(0xFF4D, 0x01) // engage double speed
	au.ticks = nil
	b.Tick()
	if n := len(au.ticks); n != 1 || au.ticks[0] != 2 {
		t.Fatalf("double speed: AU ticked %v, want a single Tick(2)", au.ticks)
	}
}
