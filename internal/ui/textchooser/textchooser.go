// Package textchooser lets a user pick a ROM file from a directory using
// a full-screen terminal list, for the CLI's "positional argument is a
// directory" case.
package textchooser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
)

// ErrCancelled is returned when the user quits the chooser without
// picking a ROM.
var ErrCancelled = fmt.Errorf("chooser cancelled")

// Choose lists every .gb/.gbc file directly under dir and lets the user
// pick one with the arrow keys and Enter, Escape/q to cancel.
func Choose(dir string) (string, error) {
	roms, err := listROMs(dir)
	if err != nil {
		return "", err
	}
	if len(roms) == 0 {
		return "", fmt.Errorf("no .gb/.gbc files found under %s", dir)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return "", fmt.Errorf("init terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return "", fmt.Errorf("init terminal: %w", err)
	}
	defer screen.Fini()
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))

	sel := 0
	for {
		draw(screen, dir, roms, sel)
		switch ev := screen.PollEvent().(type) {
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyUp:
				if sel > 0 {
					sel--
				}
			case ev.Key() == tcell.KeyDown:
				if sel < len(roms)-1 {
					sel++
				}
			case ev.Key() == tcell.KeyEnter:
				return roms[sel], nil
			case ev.Key() == tcell.KeyEscape || ev.Rune() == 'q':
				return "", ErrCancelled
			}
		}
	}
}

func listROMs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		low := strings.ToLower(e.Name())
		if strings.HasSuffix(low, ".gb") || strings.HasSuffix(low, ".gbc") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func draw(screen tcell.Screen, dir string, roms []string, sel int) {
	screen.Clear()
	titleStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	normalStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	selStyle := tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)

	title := fmt.Sprintf(" Choose a ROM in %s (Up/Down, Enter, Esc to cancel) ", dir)
	putString(screen, 0, 0, title, titleStyle)

	for i, rom := range roms {
		style := normalStyle
		if i == sel {
			style = selStyle
		}
		putString(screen, 1, i+2, filepath.Base(rom), style)
	}
	screen.Show()
}

func putString(screen tcell.Screen, x, y int, s string, style tcell.Style) {
	for i, r := range s {
		screen.SetContent(x+i, y, r, nil, style)
	}
}
