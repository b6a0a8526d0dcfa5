package ui

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/dmgcore/gbcore/internal/emu"
	"github.com/dmgcore/gbcore/internal/joypad"
	"github.com/dmgcore/gbcore/internal/ppu"
)

// keyBinding maps a keyboard key to the button it drives.
type keyBinding struct {
	key ebiten.Key
	btn joypad.Button
}

var defaultKeys = []keyBinding{
	{ebiten.KeyArrowRight, joypad.Right},
	{ebiten.KeyArrowLeft, joypad.Left},
	{ebiten.KeyArrowUp, joypad.Up},
	{ebiten.KeyArrowDown, joypad.Down},
	{ebiten.KeyZ, joypad.A},
	{ebiten.KeyX, joypad.B},
	{ebiten.KeyEnter, joypad.Start},
	{ebiten.KeyShiftRight, joypad.Select},
}

// App drives one Machine inside an ebiten window. Keyboard edges feed the
// joypad directly; Machine.Step fills the framebuffer and audio ring
// buffer, which Draw/the audio player pull from every tick.
type App struct {
	cfg Config
	m   *emu.Machine
	sp  *SavePaths

	tex    *ebiten.Image
	paused bool
	fast   bool

	audioCtx    *audio.Context
	audioPlayer *audio.Player

	statePath string
	ramPath   string
}

// NewApp sizes and titles the window per cfg, loads any existing battery
// RAM for m's cartridge, and starts audio playback.
func NewApp(cfg Config, m *emu.Machine, sp *SavePaths) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	ebiten.SetFullscreen(cfg.Fullscreen)

	a := &App{cfg: cfg, m: m, sp: sp}
	a.statePath, a.ramPath = a.resolvePaths()

	if data, err := os.ReadFile(a.ramPath); err == nil {
		if m.LoadRAM(data) {
			log.Printf("loaded battery RAM: %s (%d bytes)", a.ramPath, len(data))
		}
	}

	a.audioCtx = audio.NewContext(sampleRate)
	if p, err := a.audioCtx.NewPlayer(&apuStream{m: m, mono: !cfg.AudioStereo}); err == nil {
		a.audioPlayer = p
		a.audioPlayer.Play()
	} else {
		log.Printf("audio disabled: %v", err)
	}
	return a
}

// resolvePaths derives the .savestate and .sav paths for m's cartridge,
// honoring sp's per-ROM directory override when one is configured.
func (a *App) resolvePaths() (statePath, ramPath string) {
	rom := a.m.ROMPath()
	dir := filepath.Dir(rom)
	if d := a.sp.DirFor(rom); d != "" {
		dir = d
	}
	base := strings.TrimSuffix(filepath.Base(rom), filepath.Ext(rom))
	return filepath.Join(dir, base+".savestate"), filepath.Join(dir, base+".sav")
}

func (a *App) Run() error { return ebiten.RunGame(a) }

// Close persists battery RAM; callers invoke it after Run returns.
func (a *App) Close() {
	if data, ok := a.m.SaveRAM(); ok {
		if err := os.WriteFile(a.ramPath, data, 0644); err != nil {
			log.Printf("write %s: %v", a.ramPath, err)
		} else {
			log.Printf("wrote %s", a.ramPath)
		}
	}
}

func (a *App) Update() error {
	for _, kb := range defaultKeys {
		if ebiten.IsKeyPressed(kb.key) {
			a.m.Press(kb.btn)
		} else {
			a.m.Release(kb.btn)
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if err := a.m.SaveStateToFile(a.statePath); err != nil {
			log.Printf("save state: %v", err)
		} else {
			log.Printf("saved state: %s", a.statePath)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if ok, err := a.m.LoadStateFromFile(a.statePath); err != nil {
			log.Printf("load state: %v", err)
		} else if ok {
			a.m.ClearAudioSamples()
			log.Printf("loaded state: %s", a.statePath)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		a.cfg.Fullscreen = !a.cfg.Fullscreen
		ebiten.SetFullscreen(a.cfg.Fullscreen)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		if err := a.saveScreenshot(); err != nil {
			log.Printf("screenshot: %v", err)
		}
	}

	switch {
	case a.paused:
		if inpututil.IsKeyJustPressed(ebiten.KeyN) {
			a.runToNextFrame()
		}
	case a.fast:
		for i := 0; i < 4; i++ {
			a.runToNextFrame()
		}
	default:
		a.runToNextFrame()
	}
	return nil
}

// runToNextFrame steps the Machine until FrameReady fires or the CPU has
// nothing left to run (no cartridge loaded).
func (a *App) runToNextFrame() {
	for !a.m.FrameReady() {
		if a.m.Step() == 0 {
			return
		}
	}
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	if fb := a.m.Framebuffer(); fb != nil {
		a.tex.WritePixels(framebufferToRGBA(fb))
	}
	screen.DrawImage(a.tex, nil)
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) { return 160, 144 }

// framebufferToRGBA converts the PPU's resolved pixel grid into the
// interleaved RGBA bytes ebiten.Image.WritePixels expects.
func framebufferToRGBA(fb *[144][160]ppu.RGB) []byte {
	buf := make([]byte, 144*160*4)
	i := 0
	for y := 0; y < 144; y++ {
		for x := 0; x < 160; x++ {
			px := fb[y][x]
			buf[i], buf[i+1], buf[i+2], buf[i+3] = px.R, px.G, px.B, 0xFF
			i += 4
		}
	}
	return buf
}

func (a *App) saveScreenshot() error {
	fb := a.m.Framebuffer()
	if fb == nil {
		return fmt.Errorf("no cartridge loaded")
	}
	img := &image.RGBA{
		Pix:    framebufferToRGBA(fb),
		Stride: 4 * 160,
		Rect:   image.Rect(0, 0, 160, 144),
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
