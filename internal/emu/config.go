package emu

// Config contains settings that affect how a Machine is driven, but not
// its observable register/memory semantics.
type Config struct {
	Trace    bool // stored for hosts; Machine never logs, and the bundled hosts print no per-Step trace
	LimitFPS bool // host paces StepFrame-style loops to ~60Hz; unused by Machine itself
	UseCGB   bool // expose color-mode hardware when the loaded cartridge supports it

	// MaxCycles bounds RunUntilTestResult; 0 falls back to the 200M-cycle
	// cap used by the end-to-end Blargg scenarios.
	MaxCycles int
}
