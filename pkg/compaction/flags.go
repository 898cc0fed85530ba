package compaction

import "sync/atomic"

// Options configure a single compaction attempt.
type Options struct {
	Policy SplitPolicy
	// InjectTools attaches the tool schemas to the model call with tool
	// choice forced to none.
	InjectTools bool
	// Verbose raises per-attempt logging and dumps the rendered prompt.
	Verbose bool
}

func DefaultOptions() Options {
	return Options{Policy: DefaultSplitPolicy()}
}

// DebugSettings is a plain copy of the debug flags.
type DebugSettings struct {
	InjectTools bool `json:"inject_tools" yaml:"inject_tools"`
	Verbose     bool `json:"verbose" yaml:"verbose"`
}

// DebugFlags is the process-wide holder for administrative overrides. Core
// code never reads it; callers snapshot it into Options per attempt.
type DebugFlags struct {
	injectTools atomic.Bool
	verbose     atomic.Bool
}

var processFlags DebugFlags

// Flags returns the process-wide debug flags.
func Flags() *DebugFlags { return &processFlags }

func (f *DebugFlags) InjectTools() bool     { return f.injectTools.Load() }
func (f *DebugFlags) SetInjectTools(v bool) { f.injectTools.Store(v) }
func (f *DebugFlags) Verbose() bool         { return f.verbose.Load() }
func (f *DebugFlags) SetVerbose(v bool)     { f.verbose.Store(v) }

func (f *DebugFlags) Snapshot() DebugSettings {
	return DebugSettings{InjectTools: f.InjectTools(), Verbose: f.Verbose()}
}

func (f *DebugFlags) Set(s DebugSettings) {
	f.SetInjectTools(s.InjectTools)
	f.SetVerbose(s.Verbose)
}

// Apply overlays the current flag values onto o.
func (f *DebugFlags) Apply(o Options) Options {
	s := f.Snapshot()
	o.InjectTools = s.InjectTools
	o.Verbose = s.Verbose
	return o
}
