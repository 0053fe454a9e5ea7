// Package engine abstracts the external programs that measure the shift
// between a target raster and its reference. Engines only measure and write
// the aligned primary raster; deciding what to do with the measurement is
// the caller's job.
package engine

import (
	"context"

	"georeg/internal/coreg"
)

// Request describes one coregistration call.
type Request struct {
	// ReferencePath is the raster everything is aligned against.
	ReferencePath string
	// TargetPath is the raster being measured.
	TargetPath string
	// OutputPath is where the engine writes the aligned copy of the target.
	OutputPath string
	Settings   coreg.EngineSettings
}

// Engine measures the shift of a target raster against a reference.
type Engine interface {
	Name() string
	IsAvailable() bool
	// Coregister runs one measurement. Engines report their own failures as
	// success=false results; an error return means the engine itself could
	// not run or produced unreadable output.
	Coregister(ctx context.Context, req Request) (coreg.EngineResult, error)
}
