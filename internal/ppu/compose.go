package ppu

// BankedVRAMReader is VRAMReader plus the ability to pick a VRAM bank
// directly, used by the CGB background/window/sprite compositors which
// read tile data from bank 0 or 1 depending on per-tile attributes.
type BankedVRAMReader interface {
	ReadBank(bank int, addr uint16) byte
}

// Sprite is the OAM-derived description of one 8x8 or 8x16 object, with Y
// already adjusted to the object's top screen row (OAM's raw Y minus 16).
type Sprite struct {
	X        int
	Y        int
	Tile     byte
	Attr     byte
	OAMIndex int
}

// RenderBGScanlineCGB renders 160 background pixels along with their CGB
// palette number and BG-to-OBJ priority bit, reading tile indices from bank
// 0 of mapBase and attribute bytes from bank 1 of attrBase at the same
// tile-row offset.
func RenderBGScanlineCGB(v BankedVRAMReader, mapBase, attrBase uint16, tileData8000 bool, scx, scy, ly byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	fineYBase := byte(bgY & 7)
	mapY := (bgY >> 3) & 31
	for x := 0; x < 160; x++ {
		bgX := uint16(x) + uint16(scx)
		tileX := (bgX >> 3) & 31
		fineX := byte(bgX & 7)
		offset := mapY*32 + tileX
		tileNum := v.ReadBank(0, mapBase+offset)
		attr := v.ReadBank(1, attrBase+offset)
		c, p, pr := decodeCGBTilePixel(v, attr, tileNum, tileData8000, fineYBase, fineX)
		ci[x], pal[x], pri[x] = c, p, pr
	}
	return
}

// RenderWindowScanlineCGB is RenderBGScanlineCGB's window counterpart: the
// window is never scrolled by SCX/SCY, only positioned by WX/WY, so the
// caller supplies the window-local line directly. fineXDiscard supports the
// WX<7 edge case where the first few window columns are clipped.
func RenderWindowScanlineCGB(v BankedVRAMReader, mapBase, attrBase uint16, tileData8000 bool, winLine byte, fineXDiscard byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	mapY := uint16(winLine>>3) & 31
	fineYBase := winLine & 7
	for x := 0; x < 160; x++ {
		col := uint16(x) + uint16(fineXDiscard)
		tileX := (col >> 3) & 31
		fineX := byte(col & 7)
		offset := mapY*32 + tileX
		tileNum := v.ReadBank(0, mapBase+offset)
		attr := v.ReadBank(1, attrBase+offset)
		c, p, pr := decodeCGBTilePixel(v, attr, tileNum, tileData8000, fineYBase, fineX)
		ci[x], pal[x], pri[x] = c, p, pr
	}
	return
}

func decodeCGBTilePixel(v BankedVRAMReader, attr, tileNum byte, tileData8000 bool, fineYBase, fineX byte) (ci, pal byte, pri bool) {
	bank := 0
	if attr&0x10 != 0 {
		bank = 1
	}
	xflip := attr&0x20 != 0
	yflip := attr&0x40 != 0
	pal = attr & 0x07
	pri = attr&0x80 != 0

	fineY := fineYBase
	if yflip {
		fineY = 7 - fineY
	}
	var base uint16
	if tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
	}
	lo := v.ReadBank(bank, base)
	hi := v.ReadBank(bank, base+1)
	bit := fineX
	if !xflip {
		bit = 7 - fineX
	}
	ci = ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
	return
}

// RenderWindowScanlineUsingFetcher renders the DMG-mode window row starting
// at screen column wxStart, fetching whole tiles sequentially from mapBase;
// columns before wxStart are left at color index 0 (the caller composites
// the BG there instead).
func RenderWindowScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, wxStart byte, fineY byte) [160]byte {
	var out [160]byte
	var q fifo
	f := newBGFetcher(mem, &q)
	tileX := uint16(0)
	x := int(wxStart)
	for x < 160 {
		f.Configure(mapBase, tileData8000, mapBase+tileX, fineY)
		f.Fetch()
		for q.Len() > 0 && x < 160 {
			px, _ := q.Pop()
			out[x] = px
			x++
		}
		tileX++
	}
	return out
}

func rowWithinSprite(ly, spriteY int, tall bool) (row int, ok bool) {
	height := 8
	if tall {
		height = 16
	}
	row = ly - spriteY
	if row < 0 || row >= height {
		return 0, false
	}
	return row, true
}

// ComposeSpriteLine returns the 160-pixel sprite color-index row for one
// scanline: transparent (0) where no visible object covers that pixel.
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly int, bgci [160]byte, tall bool) [160]byte {
	ci, _ := composeSprites(mem, sprites, ly, bgci, tall)
	return ci
}

// ComposeSpriteLineExt additionally returns, per pixel, which DMG palette
// (0 = OBP0, 1 = OBP1) the winning object selected.
func ComposeSpriteLineExt(mem VRAMReader, sprites []Sprite, ly int, bgci [160]byte, tall bool) (ci [160]byte, pal [160]byte) {
	return composeSprites(mem, sprites, ly, bgci, tall)
}

// ComposeSpriteLineCGB is the CGB-mode sprite compositor: priority is purely
// OAM order (no X comparison), tile data may come from either VRAM bank via
// attribute bit4, and the palette is the object's own 3-bit CGB palette
// number rather than a DMG OBP0/OBP1 selection.
func ComposeSpriteLineCGB(mem BankedVRAMReader, sprites []Sprite, ly int, bgci [160]byte, tall bool) (ci [160]byte, pal [160]byte) {
	var claimed [160]bool
	for _, s := range sprites {
		row, ok := rowWithinSprite(ly, s.Y, tall)
		if !ok {
			continue
		}
		tileNum := s.Tile
		height := 8
		if tall {
			height = 16
			tileNum &^= 1
		}
		if s.Attr&0x40 != 0 {
			row = height - 1 - row
		}
		tile := uint16(tileNum)
		if tall && row >= 8 {
			tile++
			row -= 8
		}
		bank := 0
		if s.Attr&0x10 != 0 {
			bank = 1
		}
		base := uint16(0x8000) + tile*16 + uint16(row)*2
		lo := mem.ReadBank(bank, base)
		hi := mem.ReadBank(bank, base+1)
		xflip := s.Attr&0x20 != 0
		behindBG := s.Attr&0x80 != 0
		palSel := s.Attr & 0x07

		for px := 0; px < 8; px++ {
			screenX := s.X + px
			if screenX < 0 || screenX >= 160 || claimed[screenX] {
				continue
			}
			bit := byte(7 - px)
			if xflip {
				bit = byte(px)
			}
			colorIdx := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if colorIdx == 0 {
				continue
			}
			if behindBG && bgci[screenX] != 0 {
				continue
			}
			claimed[screenX] = true
			ci[screenX] = colorIdx
			pal[screenX] = palSel
		}
	}
	return
}

// composeSprites implements the OBJ priority rule: the lowest-X sprite wins
// a pixel; ties break by ascending OAM index (the order sprites normally
// arrive in after the per-line 10-sprite selection).
func composeSprites(mem VRAMReader, sprites []Sprite, ly int, bgci [160]byte, tall bool) (ci [160]byte, pal [160]byte) {
	type winner struct {
		x, idx int
		has    bool
	}
	var chosen [160]winner

	for _, s := range sprites {
		row, ok := rowWithinSprite(ly, s.Y, tall)
		if !ok {
			continue
		}
		tileNum := s.Tile
		height := 8
		if tall {
			height = 16
			tileNum &^= 1
		}
		if s.Attr&0x40 != 0 { // Y flip
			row = height - 1 - row
		}
		tile := uint16(tileNum)
		if tall && row >= 8 {
			tile++
			row -= 8
		}
		base := uint16(0x8000) + tile*16 + uint16(row)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)
		xflip := s.Attr&0x20 != 0
		behindBG := s.Attr&0x80 != 0
		palSel := byte(0)
		if s.Attr&0x10 != 0 {
			palSel = 1
		}

		for px := 0; px < 8; px++ {
			screenX := s.X + px
			if screenX < 0 || screenX >= 160 {
				continue
			}
			bit := byte(7 - px)
			if xflip {
				bit = byte(px)
			}
			colorIdx := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if colorIdx == 0 {
				continue
			}
			if behindBG && bgci[screenX] != 0 {
				continue
			}
			cur := chosen[screenX]
			isWinner := !cur.has || s.X < cur.x || (s.X == cur.x && s.OAMIndex < cur.idx)
			if isWinner {
				chosen[screenX] = winner{x: s.X, idx: s.OAMIndex, has: true}
				ci[screenX] = colorIdx
				pal[screenX] = palSel
			}
		}
	}
	return
}
