// Package batch orchestrates coregistration runs: it drives the engine
// across every scene of a session, filters the shift measurements, and
// turns the verdicts into an output tree of aligned imagery.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"georeg/internal/coreg"
	"georeg/internal/engine"
	"georeg/internal/filter"
	"georeg/internal/fsutil"
	"georeg/internal/preview"
	"georeg/internal/propagate"
	"georeg/internal/raster"
	"georeg/internal/session"
	"georeg/internal/storage"
)

// Runner executes coregistration runs. Per-scene problems become failed
// records; only infrastructure faults (unreadable config, unwritable output
// tree) abort a run.
type Runner struct {
	engines  *engine.Manager
	raster   raster.Ops
	prop     *propagate.Propagator
	previews preview.Generator
	store    *storage.Store
	log      *slog.Logger
}

// New wires a runner from its collaborators. previews and store may be nil,
// which disables preview rendering and run history.
func New(engines *engine.Manager, ops raster.Ops, previews preview.Generator, store *storage.Store, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		engines:  engines,
		raster:   ops,
		prop:     propagate.New(ops, log),
		previews: previews,
		store:    store,
		log:      log,
	}
}

// SessionRequest describes one run over a downloaded session tree.
type SessionRequest struct {
	// RunID identifies the run in logs and history. Empty means a fresh
	// id is generated; callers that queue runs ahead of time pass the id
	// they already announced.
	RunID      string
	SessionDir string
	// ReferencePath is the raster every scene is aligned against. It
	// overrides any template recorded in the settings.
	ReferencePath string
	// ROIID selects the region of interest; empty picks the first usable
	// one from the session config.
	ROIID string
	// Engine names the coregistration engine; empty picks the default.
	Engine       string
	Settings     coreg.RunSettings
	SkipPreviews bool
}

// Summary is what a finished run reports back.
type Summary struct {
	RunID       string
	RunType     string
	Engine      string
	OutputDir   string
	ResultsPath string
	CSVPath     string
	Satellites  []string
	Total       int
	Passed      int
	Failed      int
	Warnings    []string
	Elapsed     time.Duration
}

// RunSession coregisters every scene of a session: measure shifts per
// satellite, filter the batch, route rejected scenes to the failed tree and
// propagate accepted shifts to companion bands, metadata and previews.
func (r *Runner) RunSession(ctx context.Context, req SessionRequest) (*Summary, error) {
	start := time.Now()
	if !fsutil.Exists(req.SessionDir) {
		return nil, fmt.Errorf("session directory does not exist: %s", req.SessionDir)
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

	sess := fsutil.SessionLayout{Root: req.SessionDir}
	cfg, err := session.Load(sess.ConfigPath())
	if err != nil {
		return nil, err
	}
	roiID, err := cfg.ResolveROI(req.ROIID)
	if err != nil {
		return nil, err
	}
	allSats, err := cfg.Satellites(roiID)
	if err != nil {
		return nil, err
	}
	sats := dropL7(allSats, r.log)
	if len(sats) == 0 {
		return nil, fmt.Errorf("ROI %s lists no satellites that can be coregistered", roiID)
	}

	out := fsutil.NewCoregLayout(req.SessionDir)
	if err := out.Create(sats); err != nil {
		return nil, fmt.Errorf("failed to create output tree: %w", err)
	}
	if fsutil.Exists(sess.GeoJSONPath()) {
		if err := fsutil.CopyFile(sess.GeoJSONPath(), out.GeoJSONPath()); err != nil {
			return nil, fmt.Errorf("failed to copy config_gdf.geojson: %w", err)
		}
	}

	docSettings := req.Settings
	docSettings.ReferencePath = req.ReferencePath

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	settingsJSON, _ := json.Marshal(docSettings)
	_ = r.store.RecordRunQueued(storage.RunRecord{
		ID: runID, RunType: "session", Status: "queued",
		SessionDir: req.SessionDir, ROIID: roiID, Engine: eng.Name(),
		SettingsJSON: string(settingsJSON),
	})
	_ = r.store.RecordRunStart(runID)
	fail := func(err error) (*Summary, error) {
		_ = r.store.RecordRunResult(runID, "failed", 0, 0, 0, err.Error())
		return nil, err
	}

	r.log.Info("starting session run",
		"run_id", runID, "roi", roiID, "engine", eng.Name(), "satellites", sats)

	// Scenes without a surviving preprocessing preview are skipped, the same
	// way downstream shoreline tooling skips them. A session without any
	// preview tree processes everything.
	var dates map[string]map[string]bool
	jpgGate := false
	if fsutil.Exists(sess.RGBJpgDir()) {
		dates, err = fsutil.FilteredDates(sess.RGBJpgDir())
		if err != nil {
			return fail(err)
		}
		jpgGate = true
	}

	doc := coreg.NewResultsDocument(true)
	doc.SetSettings(docSettings)
	for _, sat := range sats {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		var allowed map[string]bool
		if jpgGate {
			allowed = dates[sat]
			if allowed == nil {
				allowed = map[string]bool{}
			}
		}
		scenes, err := fsutil.SceneFiles(sess.MSDir(sat), allowed)
		if err != nil {
			r.log.Warn("failed to list scenes", "satellite", sat, "error", err)
			continue
		}
		r.log.Info("coregistering satellite", "satellite", sat, "scenes", len(scenes))
		for _, name := range scenes {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			doc.Add(r.coregisterScene(ctx, eng, sess, out, sat, name, req))
		}
		// Persist after every satellite so an interrupted run loses at most
		// one satellite's worth of measurements.
		if err := doc.WriteFile(out.ResultsPath()); err != nil {
			return fail(fmt.Errorf("failed to save results: %w", err))
		}
	}

	if err := cfg.RewriteForCoregistered(out.ConfigPath(), docSettings); err != nil {
		return fail(err)
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
			r.finishPassedScene(ctx, sess, out, o, req.SkipPreviews)
		} else {
			r.routeFailedScene(sess, out, o)
		}
	}

	if err := writeReadme(out.ReadmePath(), records, verdict, docSettings); err != nil {
		r.log.Warn("failed to write readme", "error", err)
	}

	passed, failed := verdict.Counts()
	sum := &Summary{
		RunID:       runID,
		RunType:     "session",
		Engine:      eng.Name(),
		OutputDir:   out.Root,
		ResultsPath: out.ResultsPath(),
		CSVPath:     out.CSVPath(),
		Satellites:  sats,
		Total:       len(records),
		Passed:      passed,
		Failed:      failed,
		Warnings:    verdict.Warnings,
		Elapsed:     time.Since(start),
	}
	r.recordVerdicts(runID, verdict)
	_ = r.store.RecordRunResult(runID, "completed", sum.Total, sum.Passed, sum.Failed, "")
	r.log.Info("session run complete",
		"run_id", runID, "total", sum.Total, "passed", passed, "failed", failed,
		"elapsed", sum.Elapsed.Round(time.Millisecond))
	return sum, nil
}

// coregisterScene runs the engine for one scene. Engine faults degrade to a
// failed record so the batch keeps going.
func (r *Runner) coregisterScene(ctx context.Context, eng engine.Engine, sess fsutil.SessionLayout, out fsutil.CoregLayout, sat, name string, req SessionRequest) coreg.ShiftRecord {
	target := filepath.Join(sess.MSDir(sat), name)
	result, err := eng.Coregister(ctx, engine.Request{
		ReferencePath: req.ReferencePath,
		TargetPath:    target,
		OutputPath:    filepath.Join(out.MSDir(sat), name),
		Settings:      req.Settings.EngineSettings,
	})
	if err != nil {
		r.log.Warn("coregistration failed", "file", name, "error", err)
		return coreg.FailedRecord(name, sat, nil, false)
	}
	xRes, yRes := r.resolution(ctx, target)
	return coreg.NewRecord(name, sat, result, xRes, yRes)
}

// resolution reads the signed pixel size of a raster, best effort. Without
// it the record simply carries no derived meter shifts.
func (r *Runner) resolution(ctx context.Context, path string) (float64, float64) {
	info, err := r.raster.ReadInfo(ctx, path)
	if err != nil {
		r.log.Warn("failed to read raster info", "file", filepath.Base(path), "error", err)
		return 0, 0
	}
	return info.GeoTransform.XRes(), info.GeoTransform.YRes()
}

// finishPassedScene propagates the accepted shift to companion bands, copies
// the metadata sidecar and renders the preview.
func (r *Runner) finishPassedScene(ctx context.Context, sess fsutil.SessionLayout, out fsutil.CoregLayout, o filter.Outcome, skipPreviews bool) {
	res, err := r.prop.Scene(ctx, sess, out, o.Record)
	if err != nil {
		r.log.Warn("shift propagation failed", "file", o.Filename, "error", err)
	} else {
		for _, b := range res.Bands {
			if b.Err != nil {
				r.log.Warn("companion band failed", "file", o.Filename, "band", b.Band, "error", b.Err)
			}
		}
	}

	if metaName := fsutil.MetaName(o.Filename); metaName != "" {
		src := filepath.Join(sess.MetaDir(o.Satellite), metaName)
		if fsutil.Exists(src) {
			if err := fsutil.CopyFile(src, filepath.Join(out.MetaDir(o.Satellite), metaName)); err != nil {
				r.log.Warn("failed to copy metadata", "file", metaName, "error", err)
			}
		}
	}

	if skipPreviews || r.previews == nil {
		return
	}
	jpgName := fsutil.PreviewName(o.Filename)
	alignedPath := filepath.Join(out.MSDir(o.Satellite), o.Filename)
	if jpgName == "" || !fsutil.Exists(alignedPath) {
		return
	}
	if err := r.previews.Generate(ctx, alignedPath, filepath.Join(out.RGBJpgDir(), jpgName)); err != nil {
		r.log.Warn("failed to render preview", "file", o.Filename, "error", err)
	}
}

// routeFailedScene gathers everything belonging to a rejected scene under
// failed_coregistration/<satellite>: the aligned primary is moved out of the
// ms folder, companions and metadata are copied from the session tree, which
// is never modified.
func (r *Runner) routeFailedScene(sess fsutil.SessionLayout, out fsutil.CoregLayout, o filter.Outcome) {
	failedDir := out.FailedDir(o.Satellite)
	if err := fsutil.EnsureDir(failedDir); err != nil {
		r.log.Warn("failed to create failed-scene directory", "satellite", o.Satellite, "error", err)
		return
	}

	aligned := filepath.Join(out.MSDir(o.Satellite), o.Filename)
	if fsutil.Exists(aligned) {
		if err := fsutil.MoveFile(aligned, filepath.Join(failedDir, o.Filename)); err != nil {
			r.log.Warn("failed to move rejected scene", "file", o.Filename, "error", err)
		}
	}

	for _, band := range fsutil.CompanionBands(o.Satellite) {
		name := fsutil.CompanionName(o.Filename, band)
		if name == "" {
			continue
		}
		src := filepath.Join(sess.BandDir(o.Satellite, band), name)
		if !fsutil.Exists(src) {
			continue
		}
		if err := fsutil.CopyFile(src, filepath.Join(failedDir, name)); err != nil {
			r.log.Warn("failed to copy companion of rejected scene", "file", name, "error", err)
		}
	}

	if metaName := fsutil.MetaName(o.Filename); metaName != "" {
		src := filepath.Join(sess.MetaDir(o.Satellite), metaName)
		if fsutil.Exists(src) {
			if err := fsutil.CopyFile(src, filepath.Join(failedDir, metaName)); err != nil {
				r.log.Warn("failed to copy metadata of rejected scene", "file", metaName, "error", err)
			}
		}
	}
}

func (r *Runner) recordVerdicts(runID string, verdict *filter.Verdict) {
	for _, o := range verdict.Outcomes {
		rec := o.Record
		_ = r.store.RecordScene(storage.SceneRecord{
			RunID:            runID,
			Filename:         o.Filename,
			Satellite:        o.Satellite,
			Success:          rec.Success,
			FilterPassed:     o.Passed,
			FailureReason:    string(o.Reason),
			ShiftX:           rec.ShiftX,
			ShiftY:           rec.ShiftY,
			ShiftXMeters:     rec.ShiftXMeters,
			ShiftYMeters:     rec.ShiftYMeters,
			ShiftReliability: rec.ShiftReliability,
		})
	}
}

// dropL7 removes Landsat 7 from the processing list. Its scan line corrector
// failed in 2003 and the striped imagery breaks window based shift detection.
func dropL7(sats []string, log *slog.Logger) []string {
	out := make([]string, 0, len(sats))
	for _, s := range sats {
		if s == fsutil.SatL7 {
			log.Warn("skipping L7 scenes, striped imagery cannot be coregistered")
			continue
		}
		out = append(out, s)
	}
	return out
}
