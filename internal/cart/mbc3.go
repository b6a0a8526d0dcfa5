package cart

import (
	"time"

	"github.com/dmgcore/gbcore/internal/savestate"
)

// nowUnix is indirected so tests can freeze wall-clock time.
var nowUnix = func() int64 { return time.Now().Unix() }

// MBC3 implements ROM/RAM banking plus the optional real-time clock variant.
// Banking behavior:
//   - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
//   - 2000-3FFF: ROM bank, 7 bits (0 maps to 1)
//   - 4000-5FFF: RAM bank 0-3, or RTC register select 0x08-0x0C
//   - 6000-7FFF: latch clock on a 0x00 -> 0x01 write
//   - A000-BFFF: external RAM, or the selected RTC register
type MBC3 struct {
	rom    []byte
	ram    []byte
	hasRTC bool

	ramEnabled bool
	romBank    byte
	ramBank    byte // 0..3, meaningful when rtcSelect is false
	rtcSelect  bool
	rtcIndex   byte // 0x08..0x0C

	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9-bit day counter
	rtcHalt                 bool
	rtcCarry                bool
	lastRTCWallSec          int64

	latchSec, latchMin, latchHour byte
	latchDay                      uint16
	latchHalt, latchCarry         bool
	lastLatchWrite                byte
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom, romBank: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

// NewMBC3RTC is the RTC-capable variant (cartridge types 0x0F/0x10).
func NewMBC3RTC(rom []byte, ramSize int) *MBC3 {
	m := NewMBC3(rom, ramSize)
	m.hasRTC = true
	m.lastRTCWallSec = nowUnix()
	return m
}

// HasRTC reports whether this MBC3 instance exposes RTC registers.
func (m *MBC3) HasRTC() bool { return m.hasRTC }

func (m *MBC3) Read(addr uint16) byte {
	m.syncRTC()
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.hasRTC && m.rtcSelect {
			m.syncRTC()
			return m.readRTCReg()
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		off := int(m.ramBank&0x03)*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) readRTCReg() byte {
	switch m.rtcIndex {
	case 0x08:
		return m.latchSec
	case 0x09:
		return m.latchMin
	case 0x0A:
		return m.latchHour
	case 0x0B:
		return byte(m.latchDay & 0xFF)
	case 0x0C:
		v := byte((m.latchDay >> 8) & 0x01)
		if m.latchHalt {
			v |= 0x40
		}
		if m.latchCarry {
			v |= 0x80
		}
		return v
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	m.syncRTC()
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if value <= 0x03 {
			m.ramBank = value & 0x03
			m.rtcSelect = false
		} else if m.hasRTC && value >= 0x08 && value <= 0x0C {
			m.rtcIndex = value
			m.rtcSelect = true
		}
	case addr < 0x8000:
		if m.hasRTC {
			if m.lastLatchWrite == 0x00 && value == 0x01 {
				m.syncRTC()
				m.latchSec, m.latchMin, m.latchHour = m.rtcSec, m.rtcMin, m.rtcHour
				m.latchDay, m.latchHalt, m.latchCarry = m.rtcDay, m.rtcHalt, m.rtcCarry
			}
			m.lastLatchWrite = value & 0x01
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.hasRTC && m.rtcSelect {
			m.syncRTC()
			m.writeRTCReg(value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		off := int(m.ramBank&0x03)*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) writeRTCReg(value byte) {
	switch m.rtcIndex {
	case 0x08:
		m.rtcSec = value
	case 0x09:
		m.rtcMin = value
	case 0x0A:
		m.rtcHour = value
	case 0x0B:
		m.rtcDay = (m.rtcDay & 0x100) | uint16(value)
	case 0x0C:
		m.rtcDay = (m.rtcDay & 0xFF) | (uint16(value&0x01) << 8)
		m.rtcHalt = value&0x40 != 0
		m.rtcCarry = value&0x80 != 0
	}
	m.lastRTCWallSec = nowUnix()
}

// syncRTC folds elapsed wall-clock seconds into the live RTC registers,
// honoring the halt bit and the sticky day-carry flag.
func (m *MBC3) syncRTC() {
	if !m.hasRTC {
		return
	}
	now := nowUnix()
	elapsed := now - m.lastRTCWallSec
	m.lastRTCWallSec = now
	if elapsed <= 0 || m.rtcHalt {
		return
	}
	total := int64(m.rtcSec) + int64(m.rtcMin)*60 + int64(m.rtcHour)*3600 + int64(m.rtcDay)*86400 + elapsed
	days := total / 86400
	rem := total % 86400
	m.rtcHour = byte(rem / 3600)
	rem %= 3600
	m.rtcMin = byte(rem / 60)
	m.rtcSec = byte(rem % 60)
	if days > 511 {
		m.rtcCarry = true
		days %= 512
	}
	m.rtcDay = uint16(days)
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// SaveRAM returns RAM bytes, followed by the RTC registers/latch/timestamp
// when this cartridge has an RTC, per the battery-file format in the spec.
func (m *MBC3) SaveRAM() []byte {
	m.syncRTC()
	out := append([]byte(nil), m.ram...)
	if !m.hasRTC {
		return out
	}
	w := savestate.NewWriter()
	w.U32(uint32(m.rtcSec))
	w.U32(uint32(m.rtcMin))
	w.U32(uint32(m.rtcHour))
	w.U32(uint32(m.rtcDay))
	w.U32(uint32(boolU32(m.rtcHalt)) | uint32(boolU32(m.rtcCarry))<<1)
	w.U32(uint32(m.latchSec))
	w.U32(uint32(m.latchMin))
	w.U32(uint32(m.latchHour))
	w.U32(uint32(m.latchDay))
	w.U32(uint32(boolU32(m.latchHalt)) | uint32(boolU32(m.latchCarry))<<1)
	w.I64(m.lastRTCWallSec)
	return append(out, w.Bytes()...)
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(m.ram) > 0 && len(data) >= len(m.ram) {
		copy(m.ram, data[:len(m.ram)])
	}
	if !m.hasRTC {
		return
	}
	rest := data
	if len(m.ram) > 0 {
		rest = data[len(m.ram):]
	}
	const rtcLen = 4*4 + 4 + 4*4 + 4 + 8
	if len(rest) < rtcLen {
		return
	}
	r := savestate.NewReader(rest)
	m.rtcSec = byte(r.U32())
	m.rtcMin = byte(r.U32())
	m.rtcHour = byte(r.U32())
	m.rtcDay = uint16(r.U32())
	flags := r.U32()
	m.rtcHalt = flags&1 != 0
	m.rtcCarry = flags&2 != 0
	m.latchSec = byte(r.U32())
	m.latchMin = byte(r.U32())
	m.latchHour = byte(r.U32())
	m.latchDay = uint16(r.U32())
	flags2 := r.U32()
	m.latchHalt = flags2&1 != 0
	m.latchCarry = flags2&2 != 0
	m.lastRTCWallSec = r.I64()
}

func (m *MBC3) SaveState(w *savestate.Writer) {
	w.Bool(m.ramEnabled)
	w.U8(m.romBank)
	w.U8(m.ramBank)
	w.Bool(m.rtcSelect)
	w.U8(m.rtcIndex)
	w.U32(uint32(len(m.ram)))
	w.Bytes8(m.ram)
	w.Bool(m.hasRTC)
	if m.hasRTC {
		w.Bytes8(m.SaveRAM()[len(m.ram):])
	}
}

func (m *MBC3) LoadState(r *savestate.Reader) {
	m.ramEnabled = r.Bool()
	m.romBank = r.U8()
	m.ramBank = r.U8()
	m.rtcSelect = r.Bool()
	m.rtcIndex = r.U8()
	n := r.U32()
	buf := make([]byte, n)
	r.Bytes(buf)
	if len(m.ram) == len(buf) {
		copy(m.ram, buf)
	}
	if r.Bool() {
		const rtcLen = 4*4 + 4 + 4*4 + 4 + 8
		rtcBuf := make([]byte, rtcLen)
		r.Bytes(rtcBuf)
		m.LoadRAM(append(append([]byte(nil), m.ram...), rtcBuf...))
	}
}
