// Package cpu implements the SM83 core: registers, the fetch/execute loop,
// interrupt dispatch, and the HALT bug.
package cpu

import "github.com/dmgcore/gbcore/internal/savestate"

const (
	flagZ = 1 << 7
	flagN = 1 << 6
	flagH = 1 << 5
	flagC = 1 << 4
)

const (
	vecVBlank = 0x40
	vecSTAT   = 0x48
	vecTimer  = 0x50
	vecSerial = 0x58
	vecJoypad = 0x60
)

// Bus is the memory/interrupt surface the CPU drives. Every Read/Write the
// CPU issues is preceded by a Tick() call from cpu, not Bus, so the bus never
// advances peripherals on its own.
type Bus interface {
	Tick()
	Read(addr uint16) byte
	Write(addr uint16, v byte)
	IF() byte
	IE() byte
	ClearIFBit(bit int)
}

// CPU holds the SM83 register file and drives bus-ticked fetch/execute.
type CPU struct {
	A, B, C, D, E, H, L byte
	F                   byte
	SP, PC              uint16

	IME     bool
	eiDelay int // 0 or 1; armed by EI, takes effect after the following instruction's fetch
	halted  bool
	haltBug bool
	stopped bool

	bus Bus

	mcycles int
}

func New(bus Bus) *CPU {
	c := &CPU{bus: bus}
	c.Reset()
	return c
}

// Reset sets the post-bootrom register state; New calls it, since no boot
// ROM is ever run.
func (c *CPU) Reset() {
	c.A, c.F = 0x01, 0xB0
	c.setBC(0x0013)
	c.setDE(0x00D8)
	c.setHL(0x014D)
	c.SP = 0xFFFE
	c.PC = 0x0100
	c.IME = false
	c.eiDelay = 0
	c.halted = false
	c.haltBug = false
	c.stopped = false
}

func (c *CPU) Halted() bool     { return c.halted }
func (c *CPU) IMEEnabled() bool { return c.IME }

// tick advances one internal M-cycle with no associated bus access.
func (c *CPU) tick() {
	c.bus.Tick()
	c.mcycles++
}

func (c *CPU) rd(addr uint16) byte {
	c.tick()
	return c.bus.Read(addr)
}

func (c *CPU) wr(addr uint16, v byte) {
	c.tick()
	c.bus.Write(addr, v)
}

// fetchOpcode reads the byte at PC, ticking the bus. It advances PC unless
// the halt-bug flag is set, in which case the same byte is re-read on the
// next fetch.
func (c *CPU) fetchOpcode() byte {
	b := c.rd(c.PC)
	if c.haltBug {
		c.haltBug = false
	} else {
		c.PC++
	}
	return b
}

// fetch8 reads an operand byte at PC and always advances PC.
func (c *CPU) fetch8() byte {
	b := c.rd(c.PC)
	c.PC++
	return b
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) push16(v uint16) {
	c.SP--
	c.wr(c.SP, byte(v>>8))
	c.SP--
	c.wr(c.SP, byte(v))
}

func (c *CPU) pop16() uint16 {
	lo := c.rd(c.SP)
	c.SP++
	hi := c.rd(c.SP)
	c.SP++
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) getBC() uint16 { return uint16(c.B)<<8 | uint16(c.C) }
func (c *CPU) getDE() uint16 { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) getHL() uint16 { return uint16(c.H)<<8 | uint16(c.L) }
func (c *CPU) getAF() uint16 { return uint16(c.A)<<8 | uint16(c.F&0xF0) }

func (c *CPU) setBC(v uint16) { c.B, c.C = byte(v>>8), byte(v) }
func (c *CPU) setDE(v uint16) { c.D, c.E = byte(v>>8), byte(v) }
func (c *CPU) setHL(v uint16) { c.H, c.L = byte(v>>8), byte(v) }
func (c *CPU) setAF(v uint16) { c.A, c.F = byte(v>>8), byte(v)&0xF0 }

func (c *CPU) flag(mask byte) bool { return c.F&mask != 0 }

func (c *CPU) setFlag(mask byte, v bool) {
	if v {
		c.F |= mask
	} else {
		c.F &^= mask
	}
}

// Step executes exactly one instruction (or one HALT/interrupt-dispatch
// slice) and returns the number of M-cycles it consumed.
func (c *CPU) Step() int {
	c.mcycles = 0

	if c.halted {
		c.tick()
		if c.bus.IF()&c.bus.IE()&0x1F != 0 {
			c.halted = false
		} else {
			return c.mcycles
		}
	}

	imeSample := c.IME
	if c.eiDelay > 0 {
		c.eiDelay--
		if c.eiDelay == 0 {
			c.IME = true
		}
	}

	pending := c.bus.IF() & c.bus.IE() & 0x1F
	if imeSample && pending != 0 {
		c.dispatchInterrupt(pending)
		return c.mcycles
	}

	op := c.fetchOpcode()
	c.execute(op)
	return c.mcycles
}

// dispatchInterrupt runs the fixed 5 M-cycle interrupt-acknowledge sequence:
// two internal ticks, a ticked push of PC (high then low), the vector jump,
// clearing the serviced IF bit and IME, then one final internal tick.
func (c *CPU) dispatchInterrupt(pending byte) {
	c.haltBug = false
	c.tick()
	c.tick()

	bit := 0
	for ; bit < 5; bit++ {
		if pending&(1<<bit) != 0 {
			break
		}
	}

	c.push16(c.PC)

	c.bus.ClearIFBit(bit)
	c.IME = false
	c.tick()

	switch bit {
	case 0:
		c.PC = vecVBlank
	case 1:
		c.PC = vecSTAT
	case 2:
		c.PC = vecTimer
	case 3:
		c.PC = vecSerial
	default:
		c.PC = vecJoypad
	}
}

func (c *CPU) SaveState(w *savestate.Writer) {
	w.U8(c.A)
	w.U8(c.F)
	w.U8(c.B)
	w.U8(c.C)
	w.U8(c.D)
	w.U8(c.E)
	w.U8(c.H)
	w.U8(c.L)
	w.U16(c.SP)
	w.U16(c.PC)
	w.Bool(c.IME)
	w.U8(byte(c.eiDelay))
	w.Bool(c.halted)
	w.Bool(c.haltBug)
	w.Bool(c.stopped)
}

func (c *CPU) LoadState(r *savestate.Reader) {
	c.A = r.U8()
	c.F = r.U8()
	c.B = r.U8()
	c.C = r.U8()
	c.D = r.U8()
	c.E = r.U8()
	c.H = r.U8()
	c.L = r.U8()
	c.SP = r.U16()
	c.PC = r.U16()
	c.IME = r.Bool()
	c.eiDelay = int(r.U8())
	c.halted = r.Bool()
	c.haltBug = r.Bool()
	c.stopped = r.Bool()
}
