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

// SingleResultsName is the document written beside a single aligned raster.
const SingleResultsName = "coreg_result.json"

// SingleRequest aligns one target raster against a reference.
type SingleRequest struct {
	// RunID identifies the run in logs and history; empty generates one.
	RunID         string
	ReferencePath string
	TargetPath    string
	// OutputDir receives the aligned raster and its result document.
	// Empty means a coregistered folder beside the target.
	OutputDir string
	Engine    string
	Settings  coreg.RunSettings
}

// RunSingle coregisters one raster and writes a flat result document into
// the output folder. No filtering is applied; the engine verdict stands.
func (r *Runner) RunSingle(ctx context.Context, req SingleRequest) (*Summary, error) {
	start := time.Now()
	if !fsutil.Exists(req.ReferencePath) {
		return nil, fmt.Errorf("reference raster does not exist: %s", req.ReferencePath)
	}
	if !fsutil.Exists(req.TargetPath) {
		return nil, fmt.Errorf("target raster does not exist: %s", req.TargetPath)
	}
	if err := req.Settings.EngineSettings.Validate(); err != nil {
		return nil, err
	}
	eng, err := r.engines.Select(req.Engine)
	if err != nil {
		return nil, err
	}
	if req.OutputDir == "" {
		req.OutputDir = filepath.Join(filepath.Dir(req.TargetPath), fsutil.CoregDirName)
	}
	if err := fsutil.EnsureDir(req.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	docSettings := req.Settings
	docSettings.ReferencePath = req.ReferencePath

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	settingsJSON, _ := json.Marshal(docSettings)
	_ = r.store.RecordRunQueued(storage.RunRecord{
		ID: runID, RunType: "single", Status: "queued",
		SessionDir: filepath.Dir(req.TargetPath), Engine: eng.Name(),
		SettingsJSON: string(settingsJSON),
	})
	_ = r.store.RecordRunStart(runID)

	name := filepath.Base(req.TargetPath)
	sat := fsutil.DetectSatellite(name)
	r.log.Info("coregistering single raster", "run_id", runID, "file", name, "engine", eng.Name())

	var rec coreg.ShiftRecord
	result, err := eng.Coregister(ctx, engine.Request{
		ReferencePath: req.ReferencePath,
		TargetPath:    req.TargetPath,
		OutputPath:    filepath.Join(req.OutputDir, name),
		Settings:      req.Settings.EngineSettings,
	})
	if err != nil {
		r.log.Warn("coregistration failed", "file", name, "error", err)
		rec = coreg.FailedRecord(name, sat, nil, false)
	} else {
		xRes, yRes := r.resolution(ctx, req.TargetPath)
		rec = coreg.NewRecord(name, sat, result, xRes, yRes)
	}

	doc := coreg.NewResultsDocument(false)
	doc.SetSettings(docSettings)
	doc.Add(rec)
	resultsPath := filepath.Join(req.OutputDir, SingleResultsName)
	if err := doc.WriteFile(resultsPath); err != nil {
		err = fmt.Errorf("failed to save result: %w", err)
		_ = r.store.RecordRunResult(runID, "failed", 0, 0, 0, err.Error())
		return nil, err
	}

	sum := &Summary{
		RunID:       runID,
		RunType:     "single",
		Engine:      eng.Name(),
		OutputDir:   req.OutputDir,
		ResultsPath: resultsPath,
		Total:       1,
		Elapsed:     time.Since(start),
	}
	reason := filter.ReasonNone
	if rec.Success {
		sum.Passed = 1
	} else {
		sum.Failed = 1
		reason = filter.ReasonSuccess
	}
	_ = r.store.RecordScene(storage.SceneRecord{
		RunID:            runID,
		Filename:         name,
		Satellite:        sat,
		Success:          rec.Success,
		FilterPassed:     rec.Success,
		FailureReason:    string(reason),
		ShiftX:           rec.ShiftX,
		ShiftY:           rec.ShiftY,
		ShiftXMeters:     rec.ShiftXMeters,
		ShiftYMeters:     rec.ShiftYMeters,
		ShiftReliability: rec.ShiftReliability,
	})
	_ = r.store.RecordRunResult(runID, "completed", sum.Total, sum.Passed, sum.Failed, "")
	r.log.Info("single run complete", "run_id", runID, "file", name, "success", rec.Success)
	return sum, nil
}
