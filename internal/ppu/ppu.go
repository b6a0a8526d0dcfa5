package ppu

import (
	"github.com/dmgcore/gbcore/internal/savestate"
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT, etc.).
type InterruptRequester func(bit int)

// RGB is one resolved framebuffer pixel.
type RGB struct {
	R, G, B byte
}

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, and basic timing.
// It exposes CPU-facing Read/Write for VRAM/OAM and PPU IO regs.
type PPU struct {
	// memory
	vram  [0x2000]byte // 0x8000–0x9FFF
	vram1 [0x2000]byte // CGB: VRAM bank 1 (0x8000–0x9FFF)
	oam   [0xA0]byte   // 0xFE00–0xFE9F
	vbk   byte         // FF4F: VRAM bank select (bit0)

	// CGB color palettes (CRAM)
	bgPal  [64]byte // 8 palettes * 4 colors * 2 bytes
	objPal [64]byte // same for OBJ
	bcps   byte     // FF68: BG palette index (bits0-5 addr, bit7 auto-inc)
	ocps   byte     // FF6A: OBJ palette index

	cgbMode bool

	// regs
	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int // dots within current line [0..455]

	req InterruptRequester

	// Per-scanline register snapshot captured at start of each visible line (mode 2)
	lineRegs [154]LineRegs

	// Internal window line counter (increments each line when window is active)
	winLineCounter byte

	fb         [144][160]RGB
	frameReady bool
}

// SetCGBMode switches between DMG grayscale shading and CGB palette-RAM
// colors; it also gates the VRAM bank-1 / attribute-aware renderers.
func (p *PPU) SetCGBMode(on bool) { p.cgbMode = on }

// CGBMode reports whether the PPU is rendering in CGB mode.
func (p *PPU) CGBMode() bool { return p.cgbMode }

func New(req InterruptRequester) *PPU {
	p := &PPU{req: req}
	// Initialize CGB palettes to white so colors are visible before games set them.
	// Each palette has 4 colors; color stored as RGB555 little-endian. White = 0x7FFF => lo=FF hi=7F.
	for i := 0; i < 64; i += 2 {
		p.bgPal[i] = 0xFF
		p.bgPal[i+1] = 0x7F
		p.objPal[i] = 0xFF
		p.objPal[i+1] = 0x7F
	}
	return p
}

// LineRegs represents the PPU-visible registers relevant for rendering a scanline.
type LineRegs struct {
	LCDC    byte
	SCY     byte
	SCX     byte
	BGP     byte
	OBP0    byte
	OBP1    byte
	WY      byte
	WX      byte
	WinLine byte
}

// CPURead returns bytes for VRAM, OAM, and PPU IO registers. Returns 0xFF for others.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		// VRAM is inaccessible to CPU during mode 3 (return 0xFF)
		if (p.stat & 0x03) == 3 {
			return 0xFF
		}
		if p.cgbMode && p.vbk&1 != 0 {
			return p.vram1[addr-0x8000]
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		// OAM is inaccessible during modes 2 and 3
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		// On DMG, bit7 reads as 1; bit6..3 are enables; bit2 coincidence; bit1..0 mode
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	case addr == 0xFF68: // BCPS/BGPI
		return 0x40 | (p.bcps & 0xBF)
	case addr == 0xFF69: // BCPD/BGPD
		idx := int(p.bcps & 0x3F)
		return p.bgPal[idx]
	case addr == 0xFF6A: // OCPS/OBPI
		return 0x40 | (p.ocps & 0xBF)
	case addr == 0xFF6B: // OCPD/OBPD
		idx := int(p.ocps & 0x3F)
		return p.objPal[idx]
	case addr == 0xFF4F: // VBK
		return 0xFE | (p.vbk & 1)
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs. Others are ignored here.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return
		}
		if p.cgbMode && p.vbk&1 != 0 {
			p.vram1[addr-0x8000] = value
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			// Turning LCD off resets LY/mode
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			// Turning LCD on: start at LY=0, mode 2 (OAM)
			p.ly = 0
			p.dot = 0
			p.winLineCounter = 0
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.winLineCounter = 0
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	case addr == 0xFF68: // BCPS/BGPI
		p.bcps = value & 0xBF // bit6 reads/writes as 0; keep bit7 as auto-inc flag
	case addr == 0xFF69: // BCPD/BGPD
		// Ignore writes during Mode 3 (approximation)
		if (p.stat & 0x03) == 3 {
			return
		}
		idx := int(p.bcps & 0x3F)
		p.bgPal[idx] = value
		if (p.bcps & 0x80) != 0 { // auto-increment
			p.bcps = (p.bcps & 0xC0) | byte((idx+1)&0x3F)
		}
	case addr == 0xFF6A: // OCPS/OBPI
		p.ocps = value & 0xBF
	case addr == 0xFF6B: // OCPD/OBPD
		if (p.stat & 0x03) == 3 {
			return
		}
		idx := int(p.ocps & 0x3F)
		p.objPal[idx] = value
		if (p.ocps & 0x80) != 0 {
			p.ocps = (p.ocps & 0xC0) | byte((idx+1)&0x3F)
		}
	case addr == 0xFF4F: // VBK
		p.vbk = value & 1
	}
}

// Tick advances PPU state by the given number of dots (CPU cycles).
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if (p.lcdc & 0x80) == 0 { // LCD off
			continue
		}
		p.dot++
		// Mode scheduling
		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < 80:
				mode = 2
			case p.dot < 80+172:
				mode = 3
			default:
				mode = 0
			}
		}
		p.setMode(mode)

		if p.dot >= 456 {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				// Enter VBlank
				if p.req != nil {
					p.req(0)
				} // VBlank IF
				if (p.stat & (1 << 4)) != 0 {
					if p.req != nil {
						p.req(1)
					}
				} // STAT VBlank
			} else if p.ly > 153 {
				p.ly = 0
				p.winLineCounter = 0
			}
			p.updateLYC()
			// Set mode for new line start (dot=0)
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
				// Update window line counter for THIS line based on visibility
				// On DMG, window display requires both BG (bit0) and window (bit5) enabled.
				windowVisible := (p.lcdc&0x20) != 0 && (p.lcdc&0x01) != 0 && p.ly >= p.wy && p.wx <= 166
				if windowVisible {
					if p.ly == p.wy {
						p.winLineCounter = 0
					} else if p.ly > p.wy {
						p.winLineCounter++
					}
				}
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0: // HBlank
		p.renderScanline(p.ly)
		if (p.stat & (1 << 3)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 2: // OAM
		if (p.stat & (1 << 5)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 3: // Entering mode 3: latch per-line regs for rendering
		p.captureLineRegs()
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	} else {
		p.stat &^= 1 << 2
	}
}

func (p *PPU) captureLineRegs() {
	if p.ly < 144 {
		p.lineRegs[p.ly] = LineRegs{
			LCDC:    p.lcdc,
			SCY:     p.scy,
			SCX:     p.scx,
			BGP:     p.bgp,
			OBP0:    p.obp0,
			OBP1:    p.obp1,
			WY:      p.wy,
			WX:      p.wx,
			WinLine: p.winLineCounter,
		}
	}
}

// LineRegs returns the captured register snapshot for a given scanline (0..153).
func (p *PPU) LineRegs(y int) LineRegs {
	if y < 0 || y >= len(p.lineRegs) {
		return LineRegs{}
	}
	return p.lineRegs[y]
}

// RawVRAM returns VRAM bytes without CPU access restrictions; for renderer use only.
func (p *PPU) RawVRAM(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return p.vram[addr-0x8000]
	}
	return 0xFF
}

// RawVRAMBank returns a byte from the specified VRAM bank (0 or 1) without access restrictions.
func (p *PPU) RawVRAMBank(bank int, addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	off := addr - 0x8000
	if bank == 0 {
		return p.vram[off]
	}
	return p.vram1[off]
}

// Read implements VRAMReader by exposing VRAM bank 0 unconditionally, for
// use by the DMG scanline/fetcher renderers.
func (p *PPU) Read(addr uint16) byte { return p.RawVRAM(addr) }

// ReadBank implements BankedVRAMReader, for use by the CGB renderers.
func (p *PPU) ReadBank(bank int, addr uint16) byte { return p.RawVRAMBank(bank, addr) }

// RawOAM returns OAM bytes without CPU access restrictions; for renderer use only.
func (p *PPU) RawOAM(addr uint16) byte {
	if addr >= 0xFE00 && addr <= 0xFE9F {
		return p.oam[addr-0xFE00]
	}
	return 0xFF
}

// RawOAMWrite writes OAM without CPU access restrictions, for OAM DMA.
func (p *PPU) RawOAMWrite(addr uint16, value byte) {
	if addr <= 0xFE9F-0xFE00 {
		p.oam[addr] = value
	}
}

// RawVRAMWrite writes VRAM without CPU access restrictions, honoring VBK so
// CGB HDMA/GDMA transfers land in the bank the CPU currently has selected.
func (p *PPU) RawVRAMWrite(addr uint16, value byte) {
	if addr < 0x8000 || addr > 0x9FFF {
		return
	}
	off := addr - 0x8000
	if p.cgbMode && p.vbk&1 != 0 {
		p.vram1[off] = value
	} else {
		p.vram[off] = value
	}
}

// --- CGB palette helpers ---
// decodeRGB555 converts little-endian 15-bit color to 8-bit per channel (simple scale).
func decodeRGB555(lo, hi byte) (r, g, b byte) {
	v := uint16(lo) | (uint16(hi) << 8)
	r5 := byte(v & 0x1F)
	g5 := byte((v >> 5) & 0x1F)
	b5 := byte((v >> 10) & 0x1F)
	// scale 5-bit to 8-bit by left shift and OR with upper bits for a simple approximation
	r = (r5 << 3) | (r5 >> 2)
	g = (g5 << 3) | (g5 >> 2)
	b = (b5 << 3) | (b5 >> 2)
	return
}

// BGColorRGB returns the RGB color for given BG palette index (0..7) and color index (0..3).
func (p *PPU) BGColorRGB(palIdx, colorIdx byte) (r, g, b byte) {
	pi := int(palIdx&7)*8 + int(colorIdx&3)*2
	lo := p.bgPal[pi]
	hi := p.bgPal[pi+1]
	return decodeRGB555(lo, hi)
}

// OBJColorRGB returns the RGB color for given OBJ palette index (0..7) and color index (1..3; 0 transparent).
func (p *PPU) OBJColorRGB(palIdx, colorIdx byte) (r, g, b byte) {
	pi := int(palIdx&7)*8 + int(colorIdx&3)*2
	lo := p.objPal[pi]
	hi := p.objPal[pi+1]
	return decodeRGB555(lo, hi)
}

// Expose palettes and scroll for renderer convenience (optional helpers)
func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }

// dmgShade maps a 2-bit DMG color index through a palette register (BGP,
// OBP0, or OBP1) to one of the four fixed grayscale shades.
func dmgShade(palReg, colorIdx byte) (r, g, b byte) {
	switch (palReg >> (colorIdx * 2)) & 0x03 {
	case 0:
		return 0xFF, 0xFF, 0xFF
	case 1:
		return 0xAA, 0xAA, 0xAA
	case 2:
		return 0x55, 0x55, 0x55
	default:
		return 0x00, 0x00, 0x00
	}
}

// collectSpritesForLine scans OAM in index order and returns up to 10
// objects visible on ly, preserving OAM order for both the DMG X-then-index
// tie-break and the CGB pure-OAM-order priority rule.
func (p *PPU) collectSpritesForLine(ly byte, tall bool) []Sprite {
	height := 8
	if tall {
		height = 16
	}
	var out []Sprite
	for i := 0; i < 40 && len(out) < 10; i++ {
		base := i * 4
		y := int(p.oam[base]) - 16
		x := int(p.oam[base+1]) - 8
		if int(ly) < y || int(ly) >= y+height {
			continue
		}
		out = append(out, Sprite{X: x, Y: y, Tile: p.oam[base+2], Attr: p.oam[base+3], OAMIndex: i})
	}
	return out
}

// renderScanline composes the background, window, and sprite layers for ly
// using the register snapshot latched when that line entered mode 3, and
// writes the resolved RGB row into the framebuffer.
func (p *PPU) renderScanline(ly byte) {
	if ly >= 144 {
		return
	}
	regs := p.lineRegs[ly]

	bgMapBase := uint16(0x9800)
	if regs.LCDC&0x08 != 0 {
		bgMapBase = 0x9C00
	}
	winMapBase := uint16(0x9800)
	if regs.LCDC&0x40 != 0 {
		winMapBase = 0x9C00
	}
	tileData8000 := regs.LCDC&0x10 != 0
	bgEnabled := regs.LCDC&0x01 != 0
	windowEnabled := regs.LCDC&0x20 != 0 && regs.LCDC&0x01 != 0
	spriteEnabled := regs.LCDC&0x02 != 0
	tall := regs.LCDC&0x04 != 0

	var ci, pal [160]byte
	var pri [160]bool

	if bgEnabled {
		if p.cgbMode {
			ci, pal, pri = RenderBGScanlineCGB(p, bgMapBase, bgMapBase, tileData8000, regs.SCX, regs.SCY, ly)
		} else {
			ci = renderBGScanlineUsingFetcher(p, bgMapBase, tileData8000, regs.SCX, regs.SCY, ly)
		}
	}

	if windowEnabled && int(ly) >= int(regs.WY) && regs.WX <= 166 {
		wxStart := int(regs.WX) - 7
		if wxStart < 0 {
			wxStart = 0
		}
		if p.cgbMode {
			wci, wpal, wpri := RenderWindowScanlineCGB(p, winMapBase, winMapBase, tileData8000, regs.WinLine, 0)
			for x := wxStart; x < 160; x++ {
				ci[x], pal[x], pri[x] = wci[x-wxStart], wpal[x-wxStart], wpri[x-wxStart]
			}
		} else {
			wrow := RenderWindowScanlineUsingFetcher(p, winMapBase, tileData8000, byte(wxStart), regs.WinLine)
			for x := wxStart; x < 160; x++ {
				ci[x] = wrow[x]
			}
		}
	}

	var sci, spal [160]byte
	if spriteEnabled {
		sprites := p.collectSpritesForLine(ly, tall)
		if p.cgbMode {
			sci, spal = ComposeSpriteLineCGB(p, sprites, int(ly), ci, tall)
		} else {
			sci, spal = ComposeSpriteLineExt(p, sprites, int(ly), ci, tall)
		}
	}

	for x := 0; x < 160; x++ {
		var r, g, b byte
		spriteWins := sci[x] != 0 && !(p.cgbMode && pri[x] && ci[x] != 0)
		switch {
		case spriteWins && p.cgbMode:
			r, g, b = p.OBJColorRGB(spal[x], sci[x])
		case spriteWins:
			op := regs.OBP0
			if spal[x] == 1 {
				op = regs.OBP1
			}
			r, g, b = dmgShade(op, sci[x])
		case p.cgbMode:
			r, g, b = p.BGColorRGB(pal[x], ci[x])
		default:
			r, g, b = dmgShade(regs.BGP, ci[x])
		}
		p.fb[ly][x] = RGB{r, g, b}
	}
	if ly == 143 {
		p.frameReady = true
	}
}

// Framebuffer returns the most recently composed 160x144 frame.
func (p *PPU) Framebuffer() *[144][160]RGB { return &p.fb }

// FrameReady reports whether a full frame has been composed since the last ConsumeFrame.
func (p *PPU) FrameReady() bool { return p.frameReady }

// ConsumeFrame clears the frame-ready flag after the host has read Framebuffer.
func (p *PPU) ConsumeFrame() { p.frameReady = false }

// SaveState serializes PPU memory and registers in the shared binary format.
func (p *PPU) SaveState(w *savestate.Writer) {
	w.Bytes8(p.vram[:])
	w.Bytes8(p.vram1[:])
	w.Bytes8(p.oam[:])
	w.U8(p.vbk)
	w.Bytes8(p.bgPal[:])
	w.Bytes8(p.objPal[:])
	w.U8(p.bcps)
	w.U8(p.ocps)
	w.Bool(p.cgbMode)
	w.U8(p.lcdc)
	w.U8(p.stat)
	w.U8(p.scy)
	w.U8(p.scx)
	w.U8(p.ly)
	w.U8(p.lyc)
	w.U8(p.bgp)
	w.U8(p.obp0)
	w.U8(p.obp1)
	w.U8(p.wy)
	w.U8(p.wx)
	w.U32(uint32(p.dot))
	w.U8(p.winLineCounter)
	for i := range p.lineRegs {
		lr := p.lineRegs[i]
		w.U8(lr.LCDC)
		w.U8(lr.SCY)
		w.U8(lr.SCX)
		w.U8(lr.BGP)
		w.U8(lr.OBP0)
		w.U8(lr.OBP1)
		w.U8(lr.WY)
		w.U8(lr.WX)
		w.U8(lr.WinLine)
	}
}

// LoadState restores PPU memory and registers from the shared binary format.
func (p *PPU) LoadState(r *savestate.Reader) {
	r.Bytes(p.vram[:])
	r.Bytes(p.vram1[:])
	r.Bytes(p.oam[:])
	p.vbk = r.U8()
	r.Bytes(p.bgPal[:])
	r.Bytes(p.objPal[:])
	p.bcps = r.U8()
	p.ocps = r.U8()
	p.cgbMode = r.Bool()
	p.lcdc = r.U8()
	p.stat = r.U8()
	p.scy = r.U8()
	p.scx = r.U8()
	p.ly = r.U8()
	p.lyc = r.U8()
	p.bgp = r.U8()
	p.obp0 = r.U8()
	p.obp1 = r.U8()
	p.wy = r.U8()
	p.wx = r.U8()
	p.dot = int(r.U32())
	p.winLineCounter = r.U8()
	for i := range p.lineRegs {
		p.lineRegs[i] = LineRegs{
			LCDC: r.U8(), SCY: r.U8(), SCX: r.U8(), BGP: r.U8(),
			OBP0: r.U8(), OBP1: r.U8(), WY: r.U8(), WX: r.U8(), WinLine: r.U8(),
		}
	}
}
