// Package bus wires the cartridge, PPU, APU, timer, and joypad into the
// single 64K address space the CPU drives, and aggregates their interrupt
// requests into IF.
package bus

import (
	"io"
	"strings"

	"github.com/dmgcore/gbcore/internal/cart"
	"github.com/dmgcore/gbcore/internal/joypad"
	"github.com/dmgcore/gbcore/internal/ppu"
	"github.com/dmgcore/gbcore/internal/savestate"
	"github.com/dmgcore/gbcore/internal/timer"
)

// TestResult is the outcome of a Blargg-style test ROM's serial-port report,
// latched once "Passed" or "Failed" appears in the captured byte stream.
type TestResult int

const (
	TestPending TestResult = iota
	TestPassed
	TestFailed
)

// AudioUnit is the minimal surface Bus needs from the audio device. It lets
// Bus and internal/apu stay decoupled from each other during construction.
type AudioUnit interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
	Tick(cycles int)
}

// Bus owns every memory-mapped peripheral and satisfies cpu.Bus.
type Bus struct {
	cart cart.Cartridge
	ppu  *ppu.PPU
	apu  AudioUnit
	tmr  *timer.Timer
	joyp *joypad.Joypad

	wram     [0x8000]byte // 8 banks of 4KB; bank 0 fixed, 1-7 switchable in CGB mode
	wramBank byte         // FF70, 1-7 (0 treated as 1)
	hram     [0x80]byte

	ifReg byte
	ie    byte

	cgbMode    bool
	doubleSpd  bool
	speedArmed bool // FF4D bit0: speed switch requested

	sb      byte // FF01
	sc      byte // FF02
	serialW io.Writer

	serialBuf  []byte // bounded tail of serial bytes, for the Passed/Failed latch
	testResult TestResult

	hdma        hdmaState
	lastPPUMode byte
}

type hdmaState struct {
	active   bool
	hblank   bool // true = HBlank DMA, false = finished immediately at the triggering write
	src, dst uint16
	remain   int // remaining 0x10-byte blocks
}

// New constructs a Bus over the given cartridge and audio unit. The PPU is
// created internally so Bus can wire its own interrupt-requester closure
// into it.
func New(cartridge cart.Cartridge, audio AudioUnit) *Bus {
	b := &Bus{cart: cartridge, apu: audio, tmr: timer.New(), joyp: joypad.New(), wramBank: 1}
	b.ppu = ppu.New(b.requestInterrupt)
	return b
}

func (b *Bus) requestInterrupt(bit int) {
	b.ifReg |= 1 << bit
}

// PPU and Joypad expose the underlying devices for host glue (framebuffer
// pull, button press/release) that doesn't belong on the address-decode
// surface.
func (b *Bus) PPU() *ppu.PPU          { return b.ppu }
func (b *Bus) Joypad() *joypad.Joypad { return b.joyp }
func (b *Bus) Cart() cart.Cartridge   { return b.cart }

// SetCGBMode toggles double-speed eligibility and PPU CGB rendering.
func (b *Bus) SetCGBMode(on bool) {
	b.cgbMode = on
	b.ppu.SetCGBMode(on)
}

// SetSerialWriter installs an io.Writer that receives one byte per SC-bit7
// transfer, for test-ROM serial output capture.
func (b *Bus) SetSerialWriter(w io.Writer) { b.serialW = w }

func (b *Bus) wramOffset(addr uint16) int {
	if addr < 0xD000 {
		return int(addr - 0xC000)
	}
	bank := b.wramBank & 0x07
	if bank == 0 {
		bank = 1
	}
	return int(bank)*0x1000 + int(addr-0xD000)
}

// IF/IE satisfy cpu.Bus: the top three IF bits always read high, since no
// hardware latches them.
func (b *Bus) IF() byte { return b.ifReg | 0xE0 }
func (b *Bus) IE() byte { return b.ie }

func (b *Bus) ClearIFBit(bit int) { b.ifReg &^= 1 << bit }

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.CPURead(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr < 0xE000:
		return b.wram[b.wramOffset(addr)]
	case addr >= 0xE000 && addr < 0xFE00:
		return b.wram[b.wramOffset(addr-0x2000)]
	case addr < 0xFEA0:
		return b.ppu.CPURead(addr)
	case addr < 0xFF00:
		return 0xFF
	case addr == 0xFF00:
		return b.joyp.Read()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return b.sc | 0x7E
	case addr == 0xFF04, addr == 0xFF05, addr == 0xFF06, addr == 0xFF07:
		return b.tmr.Read(addr)
	case addr == 0xFF0F:
		return b.IF()
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apuRead(addr)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF4D:
		return b.speedReg()
	case addr == 0xFF4F:
		return b.ppu.CPURead(addr)
	case addr == 0xFF51, addr == 0xFF52, addr == 0xFF53, addr == 0xFF54:
		return 0xFF // write-only HDMA source/dest
	case addr == 0xFF55:
		return b.hdmaStatus()
	case addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF70:
		return b.wramBank | 0xF8
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return b.ie
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, v byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, v)
	case addr < 0xA000:
		b.ppu.CPUWrite(addr, v)
	case addr < 0xC000:
		b.cart.Write(addr, v)
	case addr >= 0xC000 && addr < 0xE000:
		b.wram[b.wramOffset(addr)] = v
	case addr >= 0xE000 && addr < 0xFE00:
		b.wram[b.wramOffset(addr-0x2000)] = v
	case addr < 0xFEA0:
		b.ppu.CPUWrite(addr, v)
	case addr < 0xFF00:
		// unused I/O shadow, ignored
	case addr == 0xFF00:
		b.joyp.Write(v)
	case addr == 0xFF01:
		b.sb = v
	case addr == 0xFF02:
		b.sc = v
		b.tryStartSerial()
	case addr == 0xFF04, addr == 0xFF05, addr == 0xFF06, addr == 0xFF07:
		b.tmr.Write(addr, v)
	case addr == 0xFF0F:
		b.ifReg = v & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apuWrite(addr, v)
	case addr >= 0xFF40 && addr <= 0xFF45:
		b.ppu.CPUWrite(addr, v)
	case addr == 0xFF46:
		b.startOAMDMA(v)
	case addr == 0xFF47, addr == 0xFF48, addr == 0xFF49, addr == 0xFF4A, addr == 0xFF4B:
		b.ppu.CPUWrite(addr, v)
	case addr == 0xFF4D:
		// Real hardware arms the switch here and performs it on the next
		// STOP; STOP is otherwise a no-op in this core (see spec's STOP
		// open question), so the switch is performed immediately instead.
		if b.cgbMode && v&0x01 != 0 {
			b.doubleSpd = !b.doubleSpd
			b.speedArmed = false
		}
	case addr == 0xFF4F:
		b.ppu.CPUWrite(addr, v)
	case addr == 0xFF51:
		b.hdma.src = uint16(v)<<8 | b.hdma.src&0xFF
	case addr == 0xFF52:
		b.hdma.src = b.hdma.src&0xFF00 | uint16(v&0xF0)
	case addr == 0xFF53:
		b.hdma.dst = uint16(v&0x1F)<<8 | b.hdma.dst&0xFF | 0x8000
	case addr == 0xFF54:
		b.hdma.dst = b.hdma.dst&0xFF00 | uint16(v&0xF0)
	case addr == 0xFF55:
		b.startHDMA(v)
	case addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		b.ppu.CPUWrite(addr, v)
	case addr == 0xFF70:
		if b.cgbMode {
			b.wramBank = v & 0x07
		}
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = v
	case addr == 0xFFFF:
		b.ie = v
	}
}

func (b *Bus) apuRead(addr uint16) byte {
	if b.apu == nil {
		return 0xFF
	}
	return b.apu.Read(addr)
}

func (b *Bus) apuWrite(addr uint16, v byte) {
	if b.apu == nil {
		return
	}
	b.apu.Write(addr, v)
}

func (b *Bus) speedReg() byte {
	r := byte(0x7E)
	if b.doubleSpd {
		r |= 0x80
	}
	if b.speedArmed {
		r |= 0x01
	}
	return r
}

// tryStartSerial performs an immediate one-byte transfer when the CPU sets
// SC's transfer-start bit, rather than modeling the real 8-clock shift; this
// is sufficient for the serial-port test ROMs that poll bit7 for completion.
// A write of exactly 0x81 (external clock, transfer-start) additionally
// appends the byte to the bounded test-result latch buffer, matching the
// convention Blargg's cpu_instrs/instr_timing/mem_timing ROMs use to report
// "Passed"/"Failed" over the link port.
func (b *Bus) tryStartSerial() {
	if b.sc&0x80 == 0 {
		return
	}
	if b.serialW != nil {
		_, _ = b.serialW.Write([]byte{b.sb})
	}
	if b.sc == 0x81 {
		b.serialBuf = append(b.serialBuf, b.sb)
		if len(b.serialBuf) > 100 {
			b.serialBuf = b.serialBuf[len(b.serialBuf)-100:]
		}
		switch {
		case strings.Contains(string(b.serialBuf), "Passed"):
			b.testResult = TestPassed
		case strings.Contains(string(b.serialBuf), "Failed"):
			b.testResult = TestFailed
		}
	}
	b.sc &^= 0x80
	b.ifReg |= 1 << 3
}

// TestResult reports the Blargg-style serial test-ROM latch: pending until
// the captured byte stream contains "Passed" or "Failed".
func (b *Bus) TestResult() TestResult { return b.testResult }

func (b *Bus) startOAMDMA(v byte) {
	src := uint16(v) << 8
	for i := uint16(0); i < 0xA0; i++ {
		b.ppu.RawOAMWrite(i, b.Read(src+i))
	}
}

func (b *Bus) startHDMA(v byte) {
	if b.hdma.active && b.hdma.hblank && v&0x80 == 0 {
		b.hdma.active = false
		return
	}
	length := int(v&0x7F) + 1 // 1..128 blocks of 16 bytes
	if v&0x80 == 0 {
		// General-purpose DMA copies the whole block immediately.
		for i := 0; i < length*0x10; i++ {
			b.ppu.RawVRAMWrite(b.hdma.dst, b.Read(b.hdma.src))
			b.hdma.src++
			b.hdma.dst++
		}
		b.hdma.active = false
		return
	}
	b.hdma.active = true
	b.hdma.hblank = true
	b.hdma.remain = length
}

func (b *Bus) hdmaStatus() byte {
	if !b.hdma.active {
		return 0xFF
	}
	return byte(b.hdma.remain-1) & 0x7F
}

// pumpHDMA copies one 16-byte block on every HBlank entry while an HBlank
// DMA transfer is pending.
func (b *Bus) pumpHDMA() {
	if !b.hdma.active || !b.hdma.hblank {
		return
	}
	for i := 0; i < 0x10; i++ {
		b.ppu.RawVRAMWrite(b.hdma.dst, b.Read(b.hdma.src))
		b.hdma.src++
		b.hdma.dst++
	}
	b.hdma.remain--
	if b.hdma.remain <= 0 {
		b.hdma.active = false
	}
}

// Tick advances every peripheral by one M-cycle, draining their interrupt
// edges into IF. The timer always runs at normal speed; the PPU/APU run at
// half rate while double-speed mode is active.
func (b *Bus) Tick() {
	for i := 0; i < 4; i++ {
		b.tmr.Tick()
	}
	if b.tmr.InterruptRequested() {
		b.ifReg |= 1 << 2
	}
	if b.joyp.InterruptRequested() {
		b.ifReg |= 1 << 4
	}

	ppuCycles := 4
	if b.doubleSpd {
		ppuCycles = 2
	}
	b.ppu.Tick(ppuCycles)
	if b.apu != nil {
		b.apu.Tick(ppuCycles)
	}

	mode := b.ppu.CPURead(0xFF41) & 0x03
	if mode == 0 && b.lastPPUMode != 0 {
		b.pumpHDMA()
	}
	b.lastPPUMode = mode
}

func (b *Bus) SaveState(w *savestate.Writer) {
	b.cart.SaveState(w)
	b.ppu.SaveState(w)
	b.tmr.SaveState(w)
	b.joyp.SaveState(w)
	w.Bytes8(b.wram[:])
	w.U8(b.wramBank)
	w.Bytes8(b.hram[:])
	w.U8(b.ifReg)
	w.U8(b.ie)
	w.Bool(b.cgbMode)
	w.Bool(b.doubleSpd)
	w.Bool(b.speedArmed)
	w.U8(b.sb)
	w.U8(b.sc)
	w.Bool(b.hdma.active)
	w.Bool(b.hdma.hblank)
	w.U16(b.hdma.src)
	w.U16(b.hdma.dst)
	w.U32(uint32(b.hdma.remain))
}

func (b *Bus) LoadState(r *savestate.Reader) {
	b.cart.LoadState(r)
	b.ppu.LoadState(r)
	b.tmr.LoadState(r)
	b.joyp.LoadState(r)
	r.Bytes(b.wram[:])
	b.wramBank = r.U8()
	r.Bytes(b.hram[:])
	b.ifReg = r.U8()
	b.ie = r.U8()
	b.cgbMode = r.Bool()
	b.doubleSpd = r.Bool()
	b.speedArmed = r.Bool()
	b.sb = r.U8()
	b.sc = r.U8()
	b.hdma.active = r.Bool()
	b.hdma.hblank = r.Bool()
	b.hdma.src = r.U16()
	b.hdma.dst = r.U16()
	b.hdma.remain = int(r.U32())
}
