package ui

// Config contains window/input/audio settings the host glue needs; none
// of it affects core emulation semantics.
type Config struct {
	Title       string // window title
	Scale       int    // integer upscaling factor
	Fullscreen  bool
	AudioStereo bool // if true, output true stereo; if false, fold to mono
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "gbemu"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
}
