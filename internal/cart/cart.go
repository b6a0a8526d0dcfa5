package cart

import "github.com/dmgcore/gbcore/internal/savestate"

// Cartridge defines the minimal interface the Bus needs for ROM/RAM banking.
// Implementations can be ROM-only or MBC variants. Addresses are CPU addresses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000-0x7FFF) and external RAM/RTC (0xA000-0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000-0x7FFF) and external RAM/RTC writes (0xA000-0xBFFF).
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize banking registers and RAM into a save-state stream.
	SaveState(w *savestate.Writer)
	LoadState(r *savestate.Reader)
}

// BatteryBacked is an optional interface for cartridges with external RAM (and,
// for RTC variants, clock state) to be persisted to a .sav-style file.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// HasRTC is implemented by cartridges that expose a real-time clock, so
// callers can distinguish "no RAM" from "no RTC" when formatting battery files.
type HasRTC interface {
	HasRTC() bool
}

// NewCartridge picks an implementation based on the ROM header, falling back
// to ROM-only for unrecognized cartridge-type bytes so a buggy or exotic
// header never refuses to load.
func NewCartridge(rom []byte) Cartridge {
	h, err := ParseHeader(rom)
	if err != nil {
		return NewROMOnly(rom)
	}
	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom)
	case 0x01, 0x02, 0x03: // MBC1, MBC1+RAM, MBC1+RAM+BATTERY
		return NewMBC1(rom, h.RAMSizeBytes)
	case 0x0F, 0x10: // MBC3+TIMER(+RAM)+BATTERY
		return NewMBC3RTC(rom, h.RAMSizeBytes)
	case 0x11, 0x12, 0x13: // MBC3(+RAM)(+BATTERY), no RTC
		return NewMBC3(rom, h.RAMSizeBytes)
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E: // MBC5 variants
		return NewMBC5(rom, h.RAMSizeBytes)
	default:
		return NewROMOnly(rom)
	}
}
