package ui

import (
	"encoding/binary"

	"github.com/dmgcore/gbcore/internal/emu"
)

const sampleRate = 44100

// apuStream implements io.Reader, pulling converted float samples from the
// Machine and re-encoding them as 16-bit little-endian stereo frames for
// ebiten's audio player.
type apuStream struct {
	m    *emu.Machine
	mono bool
}

func (s *apuStream) Read(p []byte) (int, error) {
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	frames := len(p) / 4
	samples := s.m.AudioSamples(frames)

	n := 0
	for i := 0; i+1 < len(samples); i += 2 {
		l, r := samples[i], samples[i+1]
		li, ri := floatToInt16(l), floatToInt16(r)
		if s.mono {
			mono := floatToInt16((l + r) / 2)
			li, ri = mono, mono
		}
		binary.LittleEndian.PutUint16(p[n:], uint16(li))
		binary.LittleEndian.PutUint16(p[n+2:], uint16(ri))
		n += 4
	}
	// Pad any remainder with silence rather than stall the player on an
	// empty buffer; a transient underrun is inaudible at this frame size.
	for ; n+3 < len(p); n += 4 {
		binary.LittleEndian.PutUint16(p[n:], 0)
		binary.LittleEndian.PutUint16(p[n+2:], 0)
	}
	return len(p), nil
}

func floatToInt16(f float32) int16 {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int16(f * 32767)
}
