// Package propagate applies accepted shift measurements to the companion
// rasters of a scene. The engine only aligns the primary multispectral band;
// the other rasters sharing the scene's footprint (cloud masks, panchromatic
// and short wave infrared bands, Planet usable data masks) are moved by
// exactly the same translation so the whole stack stays pixel aligned.
package propagate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"georeg/internal/coreg"
	"georeg/internal/fsutil"
	"georeg/internal/raster"
)

// BandStatus classifies the outcome for one companion raster.
type BandStatus string

const (
	// StatusShifted means the companion was written with the scene's shift.
	StatusShifted BandStatus = "shifted"
	// StatusMissing means the companion does not exist in the source tree.
	StatusMissing BandStatus = "missing"
	// StatusFailed means the raster tooling rejected the companion.
	StatusFailed BandStatus = "failed"
)

// BandResult reports what happened to a single companion raster.
type BandResult struct {
	Band   string
	Source string
	Dest   string
	Status BandStatus
	Err    error
}

// SceneResult collects the band outcomes for one scene.
type SceneResult struct {
	Filename  string
	Satellite string
	Bands     []BandResult
}

// Counts returns how many bands were shifted, missing and failed.
func (r SceneResult) Counts() (shifted, missing, failed int) {
	for _, b := range r.Bands {
		switch b.Status {
		case StatusShifted:
			shifted++
		case StatusMissing:
			missing++
		case StatusFailed:
			failed++
		}
	}
	return
}

// Failed reports whether any band failed outright. Missing companions are
// gaps, not failures: sessions routinely lack a band for some scenes.
func (r SceneResult) Failed() bool {
	for _, b := range r.Bands {
		if b.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Propagator moves companion rasters by the shifts measured on primary
// bands. Source rasters are only ever read.
type Propagator struct {
	ops raster.Ops
	log *slog.Logger
}

// New returns a propagator backed by the given raster tooling.
func New(ops raster.Ops, log *slog.Logger) *Propagator {
	if log == nil {
		log = slog.Default()
	}
	return &Propagator{ops: ops, log: log}
}

// Scene shifts every companion band of one session scene into the
// coregistered tree. The record must carry pixel shifts. Scenes that were
// reprojected during alignment get their companions warped into the same
// CRS first, with the intermediate kept under a new_crs folder beside the
// shifted outputs.
//
// A missing or rejected companion is reported in the result and never stops
// the remaining bands.
func (p *Propagator) Scene(ctx context.Context, sess fsutil.SessionLayout, out fsutil.CoregLayout, rec coreg.ShiftRecord) (SceneResult, error) {
	res := SceneResult{Filename: rec.Filename, Satellite: rec.Satellite}
	if rec.ShiftX == nil || rec.ShiftY == nil {
		return res, fmt.Errorf("record for %s carries no shift", rec.Filename)
	}
	dx, dy := *rec.ShiftX, *rec.ShiftY

	for _, band := range fsutil.CompanionBands(rec.Satellite) {
		name := fsutil.CompanionName(rec.Filename, band)
		if name == "" {
			res.Bands = append(res.Bands, BandResult{Band: band, Status: StatusFailed,
				Err: fmt.Errorf("cannot derive %s filename from %s", band, rec.Filename)})
			continue
		}
		src := filepath.Join(sess.BandDir(rec.Satellite, band), name)
		dst := filepath.Join(out.BandDir(rec.Satellite, band), name)
		crsDir := out.NewCRSDir(rec.Satellite, band)
		res.Bands = append(res.Bands, p.shiftCompanion(ctx, band, src, dst, crsDir, rec, dx, dy))
	}
	return res, nil
}

func (p *Propagator) shiftCompanion(ctx context.Context, band, src, dst, crsDir string, rec coreg.ShiftRecord, dx, dy float64) BandResult {
	result := BandResult{Band: band, Source: src, Dest: dst}
	if !fsutil.Exists(src) {
		result.Status = StatusMissing
		p.log.Warn("companion raster missing", "band", band, "file", filepath.Base(src))
		return result
	}
	if err := fsutil.EnsureDir(filepath.Dir(dst)); err != nil {
		result.Status = StatusFailed
		result.Err = err
		return result
	}

	workSrc := src
	crs := ""
	if rec.CRS != nil {
		crs = *rec.CRS
	}
	if crs != "" {
		if err := fsutil.EnsureDir(crsDir); err != nil {
			result.Status = StatusFailed
			result.Err = err
			return result
		}
		reprojected := filepath.Join(crsDir, filepath.Base(src))
		if err := p.ops.Reproject(ctx, src, reprojected, crs); err != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("failed to reproject %s: %w", filepath.Base(src), err)
			return result
		}
		workSrc = reprojected
	}

	if err := p.ops.ApplyShift(ctx, workSrc, dst, dx, dy); err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("failed to shift %s: %w", filepath.Base(src), err)
		return result
	}
	result.Status = StatusShifted
	p.log.Debug("shifted companion", "band", band, "file", filepath.Base(dst), "dx", dx, "dy", dy)
	return result
}

// PlanetScene shifts the usable data mask matching one Planet scene. Planet
// deliveries are flat directories and alignment never reprojects them, so
// the mask only needs the translation.
func (p *Propagator) PlanetScene(ctx context.Context, srcDir, dstDir string, rec coreg.ShiftRecord) (SceneResult, error) {
	res := SceneResult{Filename: rec.Filename, Satellite: rec.Satellite}
	if rec.ShiftX == nil || rec.ShiftY == nil {
		return res, fmt.Errorf("record for %s carries no shift", rec.Filename)
	}
	name := fsutil.PlanetCompanionName(rec.Filename)
	if name == "" {
		return res, fmt.Errorf("%s does not look like a Planet analytic scene", rec.Filename)
	}

	src := filepath.Join(srcDir, name)
	result := BandResult{Band: "udm2", Source: src, Dest: filepath.Join(dstDir, name)}
	switch {
	case !fsutil.Exists(src):
		result.Status = StatusMissing
		p.log.Warn("usable data mask missing", "file", name)
	case fsutil.EnsureDir(dstDir) != nil:
		result.Status = StatusFailed
		result.Err = fmt.Errorf("failed to create %s", dstDir)
	default:
		if err := p.ops.ApplyShift(ctx, src, result.Dest, *rec.ShiftX, *rec.ShiftY); err != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("failed to shift %s: %w", name, err)
		} else {
			result.Status = StatusShifted
		}
	}
	res.Bands = append(res.Bands, result)
	return res, nil
}
