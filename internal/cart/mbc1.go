package cart

import "github.com/dmgcore/gbcore/internal/savestate"

// MBC1 implements ROM banking up to 2 MiB and RAM banking up to 32 KiB.
// mode 0 (ROM banking, default): the upper 2 bits only apply to the
// switchable 0x4000-0x7FFF window; mode 1 (RAM banking) also remaps
// 0x0000-0x3FFF through the upper bits and selects the RAM bank.
type MBC1 struct {
	rom []byte
	ram []byte

	romBankLow5       byte // lower 5 bits of ROM bank number (0 -> 1 remapped)
	ramBankOrRomHigh2 byte // RAM bank (mode 1) or ROM bank high bits (mode 0)
	ramEnabled        bool
	modeSelect        byte // 0: ROM banking (default), 1: RAM banking
	romBankMask       int  // number of 16 KiB banks - 1, to wrap oversized bank numbers
}

func NewMBC1(rom []byte, ramSize int) *MBC1 {
	m := &MBC1{rom: rom, romBankLow5: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	banks := len(rom) / 0x4000
	if banks < 1 {
		banks = 1
	}
	m.romBankMask = banks - 1
	return m
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		bank := 0
		if m.modeSelect == 1 {
			bank = int(m.ramBankOrRomHigh2&0x03) << 5 & m.romBankMask
		}
		off := bank*0x4000 + int(addr)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.effectiveROMBank()) & m.romBankMask
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramOffset(addr)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		m.romBankLow5 = value & 0x1F
		if m.romBankLow5 == 0 {
			m.romBankLow5 = 1
		}
	case addr < 0x6000:
		m.ramBankOrRomHigh2 = value & 0x03
	case addr < 0x8000:
		m.modeSelect = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		off := m.ramOffset(addr)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC1) ramOffset(addr uint16) int {
	ramBank := 0
	if m.modeSelect == 1 {
		ramBank = int(m.ramBankOrRomHigh2 & 0x03)
	}
	return ramBank*0x2000 + int(addr-0xA000)
}

// effectiveROMBank combines the low-5 and high-2 bank registers; it is never
// coerced to a specific value here beyond the low5 0->1 remap already applied
// on write, per the invariant that bank 0 is never passed to address resolution.
func (m *MBC1) effectiveROMBank() byte {
	high := m.ramBankOrRomHigh2 & 0x03
	return m.romBankLow5 | (high << 5)
}

func (m *MBC1) SaveRAM() []byte {
	return append([]byte(nil), m.ram...)
}

func (m *MBC1) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}

func (m *MBC1) SaveState(w *savestate.Writer) {
	w.U8(m.romBankLow5)
	w.U8(m.ramBankOrRomHigh2)
	w.Bool(m.ramEnabled)
	w.U8(m.modeSelect)
	w.U32(uint32(len(m.ram)))
	w.Bytes8(m.ram)
}

func (m *MBC1) LoadState(r *savestate.Reader) {
	m.romBankLow5 = r.U8()
	m.ramBankOrRomHigh2 = r.U8()
	m.ramEnabled = r.Bool()
	m.modeSelect = r.U8()
	n := r.U32()
	buf := make([]byte, n)
	r.Bytes(buf)
	if len(m.ram) == len(buf) {
		copy(m.ram, buf)
	}
}
