package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/dmgcore/gbcore/internal/bus"
	"github.com/dmgcore/gbcore/internal/cart"
	"github.com/dmgcore/gbcore/internal/emu"
	"github.com/dmgcore/gbcore/internal/ui"
	"github.com/dmgcore/gbcore/internal/ui/textchooser"
)

func main() {
	app := cli.NewApp()
	app.Name = "gbemu"
	app.Usage = "gbemu [options] <ROM file or directory>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "fullscreen, f", Usage: "start the window fullscreen"},
		cli.IntFlag{Name: "scale", Value: 3, Usage: "integer window upscaling factor"},
		cli.StringFlag{Name: "title", Value: "gbemu", Usage: "window title"},
		cli.BoolFlag{Name: "mono", Usage: "fold audio output to mono"},
		cli.BoolFlag{Name: "cgb", Usage: "enable color-mode hardware for CGB-capable cartridges"},
		cli.BoolFlag{Name: "trace", Usage: "set emu.Config.Trace (no per-Step trace is printed)"},
		cli.BoolFlag{Name: "test", Usage: "run the positional path as a pass/fail test suite instead of opening a window"},
		cli.StringFlag{Name: "savepaths", Value: "savepaths.yaml", Usage: "YAML file of per-ROM save-directory overrides"},
		cli.StringFlag{Name: "roms-dir", Value: "roms", Usage: "directory to browse when no ROM path is given"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	arg := c.String("roms-dir")
	if c.NArg() >= 1 {
		arg = c.Args().Get(0)
	}

	romPath, err := resolveROMPath(arg)
	if err != nil {
		return err
	}

	cfg := emu.Config{Trace: c.Bool("trace"), UseCGB: c.Bool("cgb")}
	if c.Bool("test") {
		cfg.MaxCycles = 0 // fall back to the 200M end-to-end cap
		return runTestSuite(cfg, romPath)
	}

	if rom, err := os.ReadFile(romPath); err == nil {
		if !cart.LogoValid(rom) {
			log.Printf("%s: Nintendo logo check failed (continuing)", romPath)
		}
		if !cart.HeaderChecksumOK(rom) {
			log.Printf("%s: header checksum mismatch (continuing)", romPath)
		}
	}

	m := emu.New(cfg)
	if err := m.LoadCartridgeFromFile(romPath); err != nil {
		return err
	}
	if cfg.UseCGB && !m.CGBCapable() {
		log.Printf("%s: DMG-only cartridge running under color hardware", romPath)
	}

	sp, err := ui.LoadSavePaths(c.String("savepaths"))
	if err != nil {
		log.Printf("load savepaths: %v (continuing without overrides)", err)
		sp = &ui.SavePaths{Overrides: map[string]string{}}
	}
	if data, err := os.ReadFile(savRAMPath(sp, romPath)); err == nil {
		m.LoadRAM(data)
	}

	uiCfg := ui.Config{
		Title:       c.String("title"),
		Scale:       c.Int("scale"),
		Fullscreen:  c.Bool("fullscreen"),
		AudioStereo: !c.Bool("mono"),
	}
	app := ui.NewApp(uiCfg, m, sp)
	runErr := app.Run()
	app.Close()
	return runErr
}

// savRAMPath mirrors ui.App.resolvePaths' .sav naming so a pre-existing
// battery save is found before the window (and App's own load) opens.
func savRAMPath(sp *ui.SavePaths, romPath string) string {
	dir := filepath.Dir(romPath)
	if d := sp.DirFor(romPath); d != "" {
		dir = d
	}
	base := romPath[:len(romPath)-len(filepath.Ext(romPath))]
	return filepath.Join(dir, filepath.Base(base)+".sav")
}

// resolveROMPath returns path unchanged if it names a file, or launches
// the terminal chooser if it names a directory.
func resolveROMPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}
	return textchooser.Choose(path)
}

// runTestSuite runs every ROM at romPath (a single file, or every
// .gb/.gbc file under a directory) to completion via RunUntilTestResult
// and reports pass/fail, matching the --test CLI surface.
func runTestSuite(cfg emu.Config, romPath string) error {
	roms, err := collectROMs(romPath)
	if err != nil {
		return err
	}

	failed := 0
	for _, rom := range roms {
		m := emu.New(cfg)
		if err := m.LoadCartridgeFromFile(rom); err != nil {
			log.Printf("FAIL %s: %v", rom, err)
			failed++
			continue
		}
		if m.RunUntilTestResult() == bus.TestPassed {
			log.Printf("PASS %s", rom)
		} else {
			log.Printf("FAIL %s", rom)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d/%d test ROMs failed", failed, len(roms))
	}
	return nil
}

func collectROMs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var out []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(p)
		if ext == ".gb" || ext == ".gbc" {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}
