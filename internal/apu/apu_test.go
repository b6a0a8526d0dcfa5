package apu

import (
	"testing"

	"github.com/dmgcore/gbcore/internal/savestate"
)

func TestNR50NR51NR52RoundTrip(t *testing.T) {
	a := New(48000)

	a.Write(0xFF24, 0x73)
	if got := a.Read(0xFF24); got != 0x73 {
		t.Fatalf("NR50 got %#02x want 0x73", got)
	}
	a.Write(0xFF25, 0xF0)
	if got := a.Read(0xFF25); got != 0xF0 {
		t.Fatalf("NR51 got %#02x want 0xF0", got)
	}
	if got := a.Read(0xFF26); got&0x80 == 0 {
		t.Fatalf("NR52 power bit not set after New: %#02x", got)
	}
}

func TestCh1TriggerEnablesChannelAndSetsFrequency(t *testing.T) {
	a := New(48000)
	a.Write(0xFF12, 0xF0) // NR12: max volume, DAC on
	a.Write(0xFF13, 0x34) // NR13: freq lo
	a.Write(0xFF14, 0x87) // NR14: trigger, freq hi = 7

	if !a.ch1.enabled {
		t.Fatal("expected CH1 enabled after trigger with DAC on")
	}
	if a.ch1.freq != 0x0734 {
		t.Fatalf("CH1 freq got %#04x want 0x0734", a.ch1.freq)
	}
}

func TestNR12DACOffDisablesChannel(t *testing.T) {
	a := New(48000)
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF14, 0x80) // trigger
	if !a.ch1.enabled {
		t.Fatal("expected CH1 enabled before DAC-off write")
	}
	a.Write(0xFF12, 0x00) // upper 5 bits zero -> DAC off, channel disabled
	if a.ch1.enabled {
		t.Fatal("expected CH1 disabled after DAC-off NR12 write")
	}
}

func TestLengthCounterSilencesChannelAtFrameSequencer(t *testing.T) {
	a := New(48000)
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF11, 0x3F) // length = 64-63 = 1
	a.Write(0xFF14, 0xC0) // length-enable, no trigger yet
	a.Write(0xFF14, 0xC7) // trigger with length-enable set

	if !a.ch1.enabled {
		t.Fatal("expected CH1 enabled after trigger")
	}

	// Drive the 512 Hz frame sequencer through enough steps that the length
	// clock (steps 0,2,4,6) fires at least once and exhausts length=1. The
	// sequencer starts at step 0 and only clocks length on the transition
	// into an even step, so this needs two full periods.
	a.Tick(2*(cpuHz/512) + 1)
	if a.ch1.enabled {
		t.Fatal("expected CH1 disabled once its length counter reaches 0")
	}
}

func TestWaveRAMReadWrite(t *testing.T) {
	a := New(48000)
	a.Write(0xFF30, 0xAB)
	a.Write(0xFF3F, 0xCD)
	if got := a.Read(0xFF30); got != 0xAB {
		t.Fatalf("wave RAM[0] got %#02x want 0xAB", got)
	}
	if got := a.Read(0xFF3F); got != 0xCD {
		t.Fatalf("wave RAM[15] got %#02x want 0xCD", got)
	}
}

func TestPowerOffResetsRegisters(t *testing.T) {
	a := New(48000)
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF14, 0x80)
	a.Write(0xFF26, 0x00) // power off
	if a.ch1.enabled {
		t.Fatal("expected CH1 disabled after power-off")
	}
	if a.enabled {
		t.Fatal("expected APU disabled after power-off")
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	a := New(48000)
	a.Write(0xFF24, 0x77)
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF13, 0x55)
	a.Write(0xFF14, 0x83)
	a.Write(0xFF30, 0x9A)

	w := savestate.NewWriter()
	a.SaveState(w)

	b := New(48000)
	b.LoadState(savestate.NewReader(w.Bytes()))

	if b.nr50 != a.nr50 {
		t.Fatalf("nr50 mismatch after load: got %#02x want %#02x", b.nr50, a.nr50)
	}
	if b.ch1.freq != a.ch1.freq {
		t.Fatalf("ch1.freq mismatch: got %#04x want %#04x", b.ch1.freq, a.ch1.freq)
	}
	if b.ch3.ram != a.ch3.ram {
		t.Fatal("wave RAM mismatch after save/load round trip")
	}
}
