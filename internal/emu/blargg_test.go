package emu

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmgcore/gbcore/internal/bus"
)

// findROMs recursively collects .gb/.gbc files under dir.
func findROMs(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		low := strings.ToLower(d.Name())
		if strings.HasSuffix(low, ".gb") || strings.HasSuffix(low, ".gbc") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// moduleRoot resolves the directory containing go.mod, for locating
// testroms/ relative to the repository rather than the caller's cwd.
func moduleRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found above " + file)
		}
		dir = parent
	}
}

// runSerialTestROM loads romPath and drives it via RunUntilTestResult,
// requiring the Bus's Passed/Failed latch to report Passed.
func runSerialTestROM(t *testing.T, romPath string) {
	t.Helper()
	m := New(Config{MaxCycles: endToEndCycleCap})
	require.NoError(t, m.LoadCartridgeFromFile(romPath))

	result := m.RunUntilTestResult()
	require.Equal(t, bus.TestPassed, result,
		"%s did not report Passed (got %v)", filepath.Base(romPath), result)
}

// TestBlarggSerialROMs scans testroms/blargg (or BLARGG_DIR) and runs every
// .gb/.gbc found, per the cpu_instrs/instr_timing/mem_timing/halt_bug
// end-to-end scenarios.
func TestBlarggSerialROMs(t *testing.T) {
	if os.Getenv("RUN_BLARGG") == "" {
		t.Skip("set RUN_BLARGG=1 and place ROMs under testroms/blargg or set BLARGG_DIR to run")
	}

	base := os.Getenv("BLARGG_DIR")
	if base == "" {
		base = filepath.Join(moduleRoot(t), "testroms", "blargg")
	}
	if _, err := os.Stat(base); err != nil {
		t.Skipf("blargg ROM dir missing: %s", base)
	}

	roms, err := findROMs(base)
	require.NoError(t, err)
	if len(roms) == 0 {
		t.Skipf("no ROMs found in %s", base)
	}

	for _, rom := range roms {
		rom := rom
		name := strings.TrimSuffix(filepath.Base(rom), filepath.Ext(rom))
		t.Run(name, func(t *testing.T) { runSerialTestROM(t, rom) })
	}
}

// TestHaltBugROM runs halt_bug.gb if present, covering the seed scenario
// that specifically exercises the HALT-with-IME-0 PC-freeze quirk.
func TestHaltBugROM(t *testing.T) {
	if os.Getenv("RUN_BLARGG") == "" {
		t.Skip("set RUN_BLARGG=1 and place halt_bug.gb under testroms/blargg to run")
	}
	base := os.Getenv("BLARGG_DIR")
	if base == "" {
		base = filepath.Join(moduleRoot(t), "testroms", "blargg")
	}
	path := filepath.Join(base, "halt_bug.gb")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("halt_bug.gb missing: %s", path)
	}
	runSerialTestROM(t, path)
}

// TestSaveStateRoundTrip covers seed scenario 4: run, save, continue,
// reset+load, continue; the two continuations must land on identical
// registers and framebuffers.
func TestSaveStateRoundTrip(t *testing.T) {
	base := os.Getenv("BLARGG_DIR")
	if base == "" {
		base = filepath.Join(moduleRoot(t), "testroms", "blargg")
	}
	path := filepath.Join(base, "cpu_instrs", "individual", "01-special.gb")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("01-special.gb missing: %s", path)
	}

	m := New(Config{})
	require.NoError(t, m.LoadCartridgeFromFile(path))

	runFor := func(cycles int) {
		acc := 0
		for acc < cycles {
			acc += m.Step()
		}
	}

	runFor(100_000)
	state, ok := m.SaveState()
	require.True(t, ok)

	runFor(10_000)
	wantAF, wantBC, wantDE, wantHL, wantSP, wantPC := m.Registers()
	wantFB := *m.Framebuffer()

	require.NoError(t, m.LoadCartridgeFromFile(path))
	require.True(t, m.LoadState(state))
	runFor(10_000)
	gotAF, gotBC, gotDE, gotHL, gotSP, gotPC := m.Registers()

	require.Equal(t, wantAF, gotAF)
	require.Equal(t, wantBC, gotBC)
	require.Equal(t, wantDE, gotDE)
	require.Equal(t, wantHL, gotHL)
	require.Equal(t, wantSP, gotSP)
	require.Equal(t, wantPC, gotPC)
	require.Equal(t, wantFB, *m.Framebuffer())
}
