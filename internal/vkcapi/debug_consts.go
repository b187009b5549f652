// Package vkcapi holds small cross-cutting helpers shared by the compiler's
// internal packages: a generic object pool and the debug/print switches.
// Centralizing these avoids "where do we toggle tracing?" hunts when
// iterating on the scheduler or emitter.
package vkcapi

// These consts gate verbose tracing. They must stay false by default;
// flip them locally while debugging a specific pipeline stage.
const (
	SchedulerLoggingEnabled = false
	PrunerLoggingEnabled    = false
	EmitterLoggingEnabled   = false
	GraphLoggingEnabled     = false
)

// GraphValidationEnabled gates the O(n) sanity pass run after building the
// dependency graph (every strict/weak edge has both endpoints known, no
// self edges). Cheap enough to leave on; matches the teacher's habit of
// defaulting its SSA/regalloc validations on until proven safe to disable.
const GraphValidationEnabled = true
