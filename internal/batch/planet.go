package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"georeg/internal/coreg"
	"georeg/internal/engine"
	"georeg/internal/filter"
	"georeg/internal/fsutil"
	"georeg/internal/storage"
)

// PlanetDirName is the default output folder of a PlanetScope bulk run.
const PlanetDirName = "coregistered_planet"

// PlanetRequest aligns every PlanetScope analytic scene in a flat folder.
type PlanetRequest struct {
	// RunID identifies the run in logs and history; empty generates one.
	RunID         string
	TargetDir     string
	ReferencePath string
	// OutputDir receives the aligned rasters. Empty means a
	// coregistered_planet folder inside the target directory.
	OutputDir string
	Engine    string
	Settings  coreg.RunSettings
}

// RunPlanet coregisters a folder of PlanetScope analytic rasters. The layout
// stays flat: aligned primaries, shifted udm2 masks and the result documents
// all land directly in the output folder.
func (r *Runner) RunPlanet(ctx context.Context, req PlanetRequest) (*Summary, error) {
	start := time.Now()
	if !fsutil.Exists(req.TargetDir) {
		return nil, fmt.Errorf("target directory does not exist: %s", req.TargetDir)
	}
	if !fsutil.Exists(req.ReferencePath) {
		return nil, fmt.Errorf("reference raster does not exist: %s", req.ReferencePath)
	}
	if err := req.Settings.EngineSettings.Validate(); err != nil {
		return nil, err
	}
	if err := req.Settings.FilterSettings.Validate(); err != nil {
		return nil, err
	}
	eng, err := r.engines.Select(req.Engine)
	if err != nil {
		return nil, err
	}
	if req.OutputDir == "" {
		req.OutputDir = filepath.Join(req.TargetDir, PlanetDirName)
	}
	out := fsutil.PlanetLayout{Root: req.OutputDir}
	if err := fsutil.EnsureDir(out.Root); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	names, err := fsutil.ListFiles(req.TargetDir, ".tif", fsutil.PlanetPrimaryPattern)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no PlanetScope analytic scenes in %s", req.TargetDir)
	}

	docSettings := req.Settings
	docSettings.ReferencePath = req.ReferencePath

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	settingsJSON, _ := json.Marshal(docSettings)
	_ = r.store.RecordRunQueued(storage.RunRecord{
		ID: runID, RunType: "planet", Status: "queued",
		SessionDir: req.TargetDir, Engine: eng.Name(),
		SettingsJSON: string(settingsJSON),
	})
	_ = r.store.RecordRunStart(runID)
	fail := func(err error) (*Summary, error) {
		_ = r.store.RecordRunResult(runID, "failed", 0, 0, 0, err.Error())
		return nil, err
	}

	r.log.Info("starting planet run",
		"run_id", runID, "engine", eng.Name(), "scenes", len(names))

	doc := coreg.NewResultsDocument(false)
	doc.SetSettings(docSettings)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		target := filepath.Join(req.TargetDir, name)
		result, err := eng.Coregister(ctx, engine.Request{
			ReferencePath: req.ReferencePath,
			TargetPath:    target,
			OutputPath:    filepath.Join(out.Root, name),
			Settings:      req.Settings.EngineSettings,
		})
		if err != nil {
			r.log.Warn("coregistration failed", "file", name, "error", err)
			doc.Add(coreg.FailedRecord(name, "", nil, false))
			continue
		}
		xRes, yRes := r.resolution(ctx, target)
		doc.Add(coreg.NewRecord(name, "", result, xRes, yRes))
	}
	if err := doc.WriteFile(out.ResultsPath()); err != nil {
		return fail(fmt.Errorf("failed to save results: %w", err))
	}

	records := doc.Records()
	verdict := filter.Apply(records, req.Settings.FilterSettings)
	for _, w := range verdict.Warnings {
		r.log.Warn(w)
	}
	if err := verdict.WriteCSV(out.CSVPath()); err != nil {
		return fail(fmt.Errorf("failed to write verdict table: %w", err))
	}

	for _, o := range verdict.Outcomes {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if o.Passed {
			res, err := r.prop.PlanetScene(ctx, req.TargetDir, out.Root, o.Record)
			if err != nil {
				r.log.Warn("shift propagation failed", "file", o.Filename, "error", err)
				continue
			}
			for _, b := range res.Bands {
				if b.Err != nil {
					r.log.Warn("companion band failed", "file", o.Filename, "band", b.Band, "error", b.Err)
				}
			}
		} else {
			r.routeFailedPlanetScene(req.TargetDir, out, o)
		}
	}

	passed, failed := verdict.Counts()
	sum := &Summary{
		RunID:       runID,
		RunType:     "planet",
		Engine:      eng.Name(),
		OutputDir:   out.Root,
		ResultsPath: out.ResultsPath(),
		CSVPath:     out.CSVPath(),
		Total:       len(records),
		Passed:      passed,
		Failed:      failed,
		Warnings:    verdict.Warnings,
		Elapsed:     time.Since(start),
	}
	r.recordVerdicts(runID, verdict)
	_ = r.store.RecordRunResult(runID, "completed", sum.Total, sum.Passed, sum.Failed, "")
	r.log.Info("planet run complete",
		"run_id", runID, "total", sum.Total, "passed", passed, "failed", failed,
		"elapsed", sum.Elapsed.Round(time.Millisecond))
	return sum, nil
}

// routeFailedPlanetScene moves the aligned primary of a rejected scene into
// the failed folder and copies its udm2 mask beside it. The source folder is
// never modified.
func (r *Runner) routeFailedPlanetScene(targetDir string, out fsutil.PlanetLayout, o filter.Outcome) {
	failedDir := out.FailedDir()
	if err := fsutil.EnsureDir(failedDir); err != nil {
		r.log.Warn("failed to create failed-scene directory", "error", err)
		return
	}

	aligned := filepath.Join(out.Root, o.Filename)
	if fsutil.Exists(aligned) {
		if err := fsutil.MoveFile(aligned, filepath.Join(failedDir, o.Filename)); err != nil {
			r.log.Warn("failed to move rejected scene", "file", o.Filename, "error", err)
		}
	}

	if mask := fsutil.PlanetCompanionName(o.Filename); mask != "" {
		src := filepath.Join(targetDir, mask)
		if fsutil.Exists(src) {
			if err := fsutil.CopyFile(src, filepath.Join(failedDir, mask)); err != nil {
				r.log.Warn("failed to copy mask of rejected scene", "file", mask, "error", err)
			}
		}
	}
}
