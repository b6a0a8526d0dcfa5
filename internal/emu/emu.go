// Package emu wires Bus and CPU together into a Machine: the single type
// a host (internal/ui, cmd/gbemu, or a test) drives via Step and the
// save-state/battery/joypad surface in spec §6.4.
package emu

import (
	"fmt"
	"io"
	"os"

	"github.com/dmgcore/gbcore/internal/apu"
	"github.com/dmgcore/gbcore/internal/bus"
	"github.com/dmgcore/gbcore/internal/cart"
	"github.com/dmgcore/gbcore/internal/cpu"
	"github.com/dmgcore/gbcore/internal/joypad"
	"github.com/dmgcore/gbcore/internal/ppu"
	"github.com/dmgcore/gbcore/internal/savestate"
)

// sampleRate is the APU's PCM output rate; hosts resample if their audio
// device wants something else.
const sampleRate = 44100

// endToEndCycleCap is the cycle cap the spec's seed scenarios use for
// Blargg-style ROMs that report pass/fail over serial.
const endToEndCycleCap = 200_000_000

// Machine owns one loaded cartridge's Bus+CPU+APU and drives it one
// instruction at a time via Step.
type Machine struct {
	cfg Config

	bus     *bus.Bus
	cpu     *cpu.CPU
	au      *apu.APU
	header  *cart.Header
	romPath string

	cgbCapable bool
}

// New constructs a Machine with no cartridge loaded; call LoadCartridge
// (or LoadCartridgeFromFile) before Step.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// LoadCartridge parses rom's header and wires a fresh Bus/CPU/APU triple
// around it, replacing anything previously loaded. On a header-parse
// failure the Machine is left exactly as it was before the call.
func (m *Machine) LoadCartridge(rom []byte) error {
	header, err := cart.ParseHeader(rom)
	if err != nil {
		return fmt.Errorf("load cartridge: %w", err)
	}

	c := cart.NewCartridge(rom)
	au := apu.New(sampleRate)
	b := bus.New(c, au)
	cp := cpu.New(b)

	cgbCapable := header.CGBFlag&0x80 != 0
	b.SetCGBMode(m.cfg.UseCGB && cgbCapable)

	m.bus, m.cpu, m.au, m.header, m.cgbCapable = b, cp, au, header, cgbCapable
	return nil
}

// LoadCartridgeFromFile reads path and calls LoadCartridge.
func (m *Machine) LoadCartridgeFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read ROM: %w", err)
	}
	if err := m.LoadCartridge(data); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path LoadCartridgeFromFile loaded, or "" if the
// cartridge was loaded from an in-memory image or nothing is loaded yet.
func (m *Machine) ROMPath() string { return m.romPath }

// Header returns the loaded cartridge's parsed header, or nil.
func (m *Machine) Header() *cart.Header { return m.header }

// CGBCapable reports whether the loaded cartridge advertises CGB support
// (header byte 0x0143 bit 7), independent of whether color mode is
// actually enabled on this Machine's Bus.
func (m *Machine) CGBCapable() bool { return m.cgbCapable }

// HasRTC reports whether the loaded cartridge exposes a real-time clock.
func (m *Machine) HasRTC() bool {
	if m.bus == nil {
		return false
	}
	hr, ok := m.bus.Cart().(cart.HasRTC)
	return ok && hr.HasRTC()
}

// Step executes one instruction (or one halt/interrupt-dispatch step) and
// returns the number of machine cycles it consumed. Returns 0 if no
// cartridge is loaded.
func (m *Machine) Step() int {
	if m.cpu == nil {
		return 0
	}
	return m.cpu.Step()
}

// RunUntilTestResult steps the Machine until the Bus's serial Passed/Failed
// latch fires or cfg.MaxCycles (or the 200M-cycle end-to-end default, if
// MaxCycles is 0) machine cycles elapse, whichever comes first.
func (m *Machine) RunUntilTestResult() bus.TestResult {
	if m.bus == nil {
		return bus.TestPending
	}
	limit := m.cfg.MaxCycles
	if limit <= 0 {
		limit = endToEndCycleCap
	}
	cycles := 0
	for cycles < limit {
		cycles += m.Step()
		if r := m.bus.TestResult(); r != bus.TestPending {
			return r
		}
	}
	return bus.TestPending
}

// FrameReady reports, and consumes, the Bus's one-shot "a frame just
// completed" flag.
func (m *Machine) FrameReady() bool {
	if m.bus == nil || !m.bus.PPU().FrameReady() {
		return false
	}
	m.bus.PPU().ConsumeFrame()
	return true
}

// Framebuffer returns the most recently rendered 160x144 pixel grid. The
// returned pointer aliases Machine's internal state and is overwritten
// scanline-by-scanline as Step advances the PPU.
func (m *Machine) Framebuffer() *[144][160]ppu.RGB {
	if m.bus == nil {
		return nil
	}
	return m.bus.PPU().Framebuffer()
}

// AudioSamples returns up to max completed stereo frames as interleaved
// L,R float32 samples in [-1,1], draining the APU's ring buffer.
func (m *Machine) AudioSamples(max int) []float32 {
	if m.au == nil {
		return nil
	}
	frames := m.au.PullStereo(max)
	out := make([]float32, len(frames))
	for i, s := range frames {
		out[i] = float32(s) / 32768
	}
	return out
}

// ClearAudioSamples drops every buffered audio frame, used to resync
// output after a pause or a save-state load.
func (m *Machine) ClearAudioSamples() {
	if m.au != nil {
		m.au.ClearStereoBuffer()
	}
}

// Press and Release forward joypad edges to the Bus's joypad latch; see
// joypad.Button for the eight button identities.
func (m *Machine) Press(b joypad.Button) {
	if m.bus != nil {
		m.bus.Joypad().Press(b)
	}
}

func (m *Machine) Release(b joypad.Button) {
	if m.bus != nil {
		m.bus.Joypad().Release(b)
	}
}

// SetSerialWriter connects w to receive every byte transferred over the
// serial port (FF01/FF02), independent of the TestResult latch.
func (m *Machine) SetSerialWriter(w io.Writer) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// TestResult reports the Bus's serial Passed/Failed latch without driving
// any further steps.
func (m *Machine) TestResult() bus.TestResult {
	if m.bus == nil {
		return bus.TestPending
	}
	return m.bus.TestResult()
}

// Registers returns the CPU's 16-bit register pairs, for hosts that want
// to log or compare state (tracing, save-state round-trip tests).
func (m *Machine) Registers() (af, bc, de, hl, sp, pc uint16) {
	if m.cpu == nil {
		return 0, 0, 0, 0, 0, 0
	}
	c := m.cpu
	af = uint16(c.A)<<8 | uint16(c.F)
	bc = uint16(c.B)<<8 | uint16(c.C)
	de = uint16(c.D)<<8 | uint16(c.E)
	hl = uint16(c.H)<<8 | uint16(c.L)
	return af, bc, de, hl, c.SP, c.PC
}

// SaveState serializes CPU and Bus state into a GBSS-framed byte stream
// suitable for LoadState or writing to disk.
func (m *Machine) SaveState() ([]byte, bool) {
	if m.bus == nil || m.cpu == nil {
		return nil, false
	}
	w := savestate.NewWriter()
	m.cpu.SaveState(w)
	m.bus.SaveState(w)
	return savestate.WrapHeader(w.Bytes()), true
}

// LoadState validates data's magic and version before applying it. On a
// magic/version mismatch it returns false and leaves the Machine
// untouched; the cartridge currently loaded must match the one the state
// was captured from (LoadState does not itself re-load a cartridge).
func (m *Machine) LoadState(data []byte) bool {
	if m.bus == nil || m.cpu == nil {
		return false
	}
	payload, err := savestate.UnwrapHeader(data)
	if err != nil {
		return false
	}
	r := savestate.NewReader(payload)
	m.cpu.LoadState(r)
	m.bus.LoadState(r)
	return r.Err() == nil
}

// SaveStateToFile writes SaveState's output to path.
func (m *Machine) SaveStateToFile(path string) error {
	data, ok := m.SaveState()
	if !ok {
		return fmt.Errorf("save state: no cartridge loaded")
	}
	return os.WriteFile(path, data, 0644)
}

// LoadStateFromFile reads path and calls LoadState.
func (m *Machine) LoadStateFromFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	return m.LoadState(data), nil
}

// SaveRAM returns the cartridge's battery-backed RAM (and RTC state, for
// MBC3 variants), or ok=false if the cartridge has no battery RAM.
func (m *Machine) SaveRAM() (data []byte, ok bool) {
	if m.bus == nil {
		return nil, false
	}
	bb, isBattery := m.bus.Cart().(cart.BatteryBacked)
	if !isBattery {
		return nil, false
	}
	data = bb.SaveRAM()
	return data, len(data) > 0
}

// LoadRAM restores previously saved battery-backed RAM (and RTC state)
// into the loaded cartridge.
func (m *Machine) LoadRAM(data []byte) bool {
	if m.bus == nil {
		return false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}
