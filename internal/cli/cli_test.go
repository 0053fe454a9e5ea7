package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"georeg/internal/batch"
	"georeg/internal/config"
	"georeg/internal/coreg"
	"georeg/internal/engine"
	"georeg/internal/pipeline"
	"georeg/internal/storage"
	"georeg/internal/watch"
)

func TestCommandsDispatchJobTypes(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	temp := t.TempDir()
	ref := filepath.Join(temp, "ref.tif")
	touch(t, ref)

	cases := []struct {
		name       string
		build      func(*Root) *cobra.Command
		args       []string
		expectType pipeline.JobType
	}{
		{"run", newRunCmd, []string{temp, "--reference", ref}, pipeline.JobSession},
		{"single", newSingleCmd, []string{filepath.Join(temp, "scene_ms.tif"), "--reference", ref}, pipeline.JobSingle},
		{"planet", newPlanetCmd, []string{temp, "--reference", ref}, pipeline.JobPlanet},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fakePipe.reset()
			_ = captureOutput(t, func() {
				if err := execute(tc.build(root), tc.args...); err != nil {
					t.Fatalf("command failed: %v", err)
				}
			})
			if len(fakePipe.jobs) != 1 {
				t.Fatalf("expected one job, got %d", len(fakePipe.jobs))
			}
			if fakePipe.jobs[0].Type != tc.expectType {
				t.Fatalf("expected type %s, got %s", tc.expectType, fakePipe.jobs[0].Type)
			}
		})
	}
}

func TestRunCommandAppliesFlags(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	temp := t.TempDir()

	args := []string{temp, "--reference", "/data/ref.tif", "--roi", "zih2", "--engine", "stub",
		"--window-size", "128", "--max-shift", "64", "--min-reliability", "55",
		"--max-shift-meters", "400", "--no-z-filter", "--skip-previews"}
	_ = captureOutput(t, func() {
		if err := execute(newRunCmd(root), args...); err != nil {
			t.Fatalf("run command failed: %v", err)
		}
	})

	if len(fakePipe.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(fakePipe.jobs))
	}
	req := fakePipe.jobs[0].Session
	if req.SessionDir != temp {
		t.Fatalf("expected session dir %s, got %s", temp, req.SessionDir)
	}
	if req.ReferencePath != "/data/ref.tif" {
		t.Fatalf("expected reference /data/ref.tif, got %s", req.ReferencePath)
	}
	if req.ROIID != "zih2" {
		t.Fatalf("expected roi zih2, got %s", req.ROIID)
	}
	if req.Engine != "stub" {
		t.Fatalf("expected engine stub, got %s", req.Engine)
	}
	if !req.SkipPreviews {
		t.Fatalf("expected previews skipped")
	}
	es := req.Settings.EngineSettings
	if es.WindowSize != [2]int{128, 128} {
		t.Fatalf("expected window 128x128, got %v", es.WindowSize)
	}
	if es.MaxShiftPx != 64 {
		t.Fatalf("expected max shift 64, got %d", es.MaxShiftPx)
	}
	fs := req.Settings.FilterSettings
	if fs.ShiftReliabilityMin != 55 {
		t.Fatalf("expected reliability 55, got %g", fs.ShiftReliabilityMin)
	}
	if fs.MaxShiftMeters != 400 {
		t.Fatalf("expected max shift 400m, got %g", fs.MaxShiftMeters)
	}
	if fs.FilterZScore {
		t.Fatalf("expected z-score stage disabled")
	}
}

func TestRunCommandPresetWithFlagOverride(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	temp := t.TempDir()

	preset := filepath.Join(temp, "strict.yaml")
	if err := os.WriteFile(preset, []byte("shift_reliability: 70\nmax_shift_meters: 120\n"), 0o644); err != nil {
		t.Fatalf("failed to write preset: %v", err)
	}

	args := []string{temp, "--reference", "ref.tif", "--preset", preset, "--max-shift-meters", "400"}
	_ = captureOutput(t, func() {
		if err := execute(newRunCmd(root), args...); err != nil {
			t.Fatalf("run command failed: %v", err)
		}
	})

	fs := fakePipe.jobs[0].Session.Settings.FilterSettings
	if fs.ShiftReliabilityMin != 70 {
		t.Fatalf("expected preset reliability 70, got %g", fs.ShiftReliabilityMin)
	}
	if fs.MaxShiftMeters != 400 {
		t.Fatalf("expected flag to override preset, got %g", fs.MaxShiftMeters)
	}
	if fs.WindowSizeMin != 50 {
		t.Fatalf("expected default window minimum kept, got %d", fs.WindowSizeMin)
	}
}

func TestRunCommandRequiresArgument(t *testing.T) {
	root, _ := newTestRoot(t)
	if err := execute(newRunCmd(root)); err == nil {
		t.Fatalf("expected error for missing session directory")
	}
}

func TestFilterCommandWritesVerdictAndCSV(t *testing.T) {
	root, _ := newTestRoot(t)
	temp := t.TempDir()

	doc := coreg.NewResultsDocument(true)
	good := coreg.ShiftRecord{
		Filename: "2024-01-05-18-46-12_L8_site_ms.tif", Satellite: "L8", Success: true,
		ShiftX: fp(0.5), ShiftY: fp(-0.4), ShiftXMeters: fp(15), ShiftYMeters: fp(-12),
		ShiftReliability: fp(90), WindowSize: [2]int{256, 256},
	}
	weak := coreg.ShiftRecord{
		Filename: "2024-02-11-18-40-02_L9_site_ms.tif", Satellite: "L9", Success: true,
		ShiftX: fp(0.3), ShiftY: fp(0.2), ShiftXMeters: fp(9), ShiftYMeters: fp(6),
		ShiftReliability: fp(10), WindowSize: [2]int{256, 256},
	}
	doc.Add(good)
	doc.Add(weak)
	resultsPath := filepath.Join(temp, "transformation_results.json")
	if err := doc.WriteFile(resultsPath); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	output := captureOutput(t, func() {
		if err := execute(newFilterCmd(root), resultsPath, "--no-z-filter"); err != nil {
			t.Fatalf("filter command failed: %v", err)
		}
	})
	if !strings.Contains(output, "PASS") || !strings.Contains(output, "FAIL") {
		t.Fatalf("expected verdict lines in output %q", output)
	}
	if !strings.Contains(output, "1 passed") || !strings.Contains(output, "1 failed") {
		t.Fatalf("expected counts in output %q", output)
	}

	csvPath := filepath.Join(temp, "filtered_files.csv")
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("expected CSV next to input: %v", err)
	}
	if !strings.Contains(string(data), weak.Filename) {
		t.Fatalf("expected rejected scene in CSV, got %q", string(data))
	}
}

func TestStatusCommandShowsEnginesAndRuns(t *testing.T) {
	root, _ := newTestRoot(t)

	rec := storage.RunRecord{ID: "run-status-1", RunType: "session", Status: "queued", SessionDir: "/data/s1"}
	if err := root.store.RecordRunQueued(rec); err != nil {
		t.Fatalf("failed to seed run: %v", err)
	}
	if err := root.store.RecordRunResult("run-status-1", "completed", 3, 2, 1, ""); err != nil {
		t.Fatalf("failed to finalize run: %v", err)
	}

	output := captureOutput(t, func() {
		if err := execute(newStatusCmd(root)); err != nil {
			t.Fatalf("status command failed: %v", err)
		}
	})
	if !strings.Contains(output, "stub") {
		t.Fatalf("expected engine listed in output %q", output)
	}
	if !strings.Contains(output, "gdalinfo") {
		t.Fatalf("expected gdal tools in output %q", output)
	}
	if !strings.Contains(output, "run-stat") {
		t.Fatalf("expected recent run in output %q", output)
	}
	if !strings.Contains(output, "2/3 scenes passed") {
		t.Fatalf("expected scene counts in output %q", output)
	}
}

func TestServeCommandUsesInjectedFunction(t *testing.T) {
	root, _ := newTestRoot(t)
	var gotAddr, gotWatchDir string
	root.serveFn = func(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient,
		watchDir string, debounce time.Duration, submit watch.SubmitFunc, log *slog.Logger) error {
		gotAddr = addr
		gotWatchDir = watchDir
		return nil
	}

	if err := execute(newServeCmd(root), "--addr", ":9999"); err != nil {
		t.Fatalf("serve command failed: %v", err)
	}
	if gotAddr != ":9999" {
		t.Fatalf("expected addr :9999, got %s", gotAddr)
	}
	if gotWatchDir != "" {
		t.Fatalf("expected no watch dir, got %s", gotWatchDir)
	}
}

func TestServeCommandRequiresReferenceForWatching(t *testing.T) {
	root, _ := newTestRoot(t)
	root.serveFn = func(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient,
		watchDir string, debounce time.Duration, submit watch.SubmitFunc, log *slog.Logger) error {
		t.Fatalf("serve function must not run without a reference")
		return nil
	}
	if err := execute(newServeCmd(root), "--watch-dir", t.TempDir()); err == nil {
		t.Fatalf("expected error for watch dir without reference")
	}
}

func TestWatchCommandValidatesArguments(t *testing.T) {
	root, _ := newTestRoot(t)
	if err := execute(newWatchCmd(root), "--reference", "ref.tif"); err == nil {
		t.Fatalf("expected error for missing inbox directory")
	}
	if err := execute(newWatchCmd(root), t.TempDir()); err == nil {
		t.Fatalf("expected error for missing reference")
	}
}

func TestWatchSubmitQueuesSession(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	submit := root.watchSubmit("/data/ref.tif")

	if err := submit("/data/inbox/session-1"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(fakePipe.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(fakePipe.jobs))
	}
	job := fakePipe.jobs[0]
	if job.Type != pipeline.JobSession {
		t.Fatalf("expected session job, got %s", job.Type)
	}
	if job.Session.SessionDir != "/data/inbox/session-1" {
		t.Fatalf("expected session dir propagated, got %s", job.Session.SessionDir)
	}
	if job.Session.ReferencePath != "/data/ref.tif" {
		t.Fatalf("expected reference propagated, got %s", job.Session.ReferencePath)
	}
}

func TestConfigCommands(t *testing.T) {
	root, _ := newTestRoot(t)

	showOut := captureOutput(t, func() {
		if err := execute(newConfigCmd(root), "show"); err != nil {
			t.Fatalf("config show failed: %v", err)
		}
	})
	if !strings.Contains(showOut, "Configuration") {
		t.Fatalf("expected configuration output, got %q", showOut)
	}
	if !strings.Contains(showOut, ":8080") {
		t.Fatalf("expected server address in output, got %q", showOut)
	}

	cfgPath := os.Getenv("GEOREG_CONFIG")
	initOut := captureOutput(t, func() {
		if err := execute(newConfigCmd(root), "init"); err != nil {
			t.Fatalf("config init failed: %v", err)
		}
	})
	if !strings.Contains(initOut, cfgPath) {
		t.Fatalf("expected written path in output, got %q", initOut)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("expected config file written: %v", err)
	}
	if err := execute(newConfigCmd(root), "init"); err == nil {
		t.Fatalf("expected error for existing config file")
	}
}

func TestVersionCommand(t *testing.T) {
	root, _ := newTestRoot(t)
	var buf bytes.Buffer
	cmd := newVersionCmd(root)
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "georeg v1.0.0-dev") {
		t.Fatalf("expected version string, got %q", buf.String())
	}
}

func TestEnqueueAndWaitPropagatesErrors(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	fakePipe.jobErrors["err-job"] = context.DeadlineExceeded

	job := pipeline.Job{ID: "err-job", Type: pipeline.JobSession}
	if _, err := root.enqueueAndWait(context.Background(), job); err == nil {
		t.Fatalf("expected error from pipeline result")
	}
}

func TestEnqueueAndWaitReturnsSummary(t *testing.T) {
	root, _ := newTestRoot(t)

	job := pipeline.Job{Type: pipeline.JobSession, Session: batch.SessionRequest{SessionDir: "/data/s1"}}
	sum, err := root.enqueueAndWait(context.Background(), job)
	if err != nil {
		t.Fatalf("enqueueAndWait failed: %v", err)
	}
	if sum == nil {
		t.Fatalf("expected summary")
	}
	if sum.RunID == "" {
		t.Fatalf("expected run id assigned by pipeline")
	}
}

// Test helpers

func newTestRoot(t *testing.T) (*Root, *fakePipeline) {
	t.Helper()

	tmp := t.TempDir()
	t.Setenv("GEOREG_CONFIG", filepath.Join(tmp, "config.json"))
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg.Paths.DatabasePath = filepath.Join(tmp, "georeg.db")

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	pipe := newFakePipeline()

	root := &Root{
		pipeline: pipe,
		cfg:      cfg,
		log:      logger,
		store:    store,
		engines: func(*config.Config) *engine.Manager {
			m := engine.NewManager("stub")
			m.Register(&stubEngine{name: "stub", available: true})
			return m
		},
		serveFn: defaultServe,
	}
	return root, pipe
}

func execute(cmd *cobra.Command, args ...string) error {
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

type fakePipeline struct {
	mu        sync.Mutex
	jobs      []pipeline.Job
	subs      map[int]chan pipeline.Result
	nextSubID int
	nextJobID int
	jobErrors map[string]error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		subs:      make(map[int]chan pipeline.Result),
		jobErrors: make(map[string]error),
	}
}

func (f *fakePipeline) Submit(job pipeline.Job) (string, error) {
	f.mu.Lock()
	if job.ID == "" {
		f.nextJobID++
		job.ID = fmt.Sprintf("job-%d", f.nextJobID)
	}
	f.jobs = append(f.jobs, job)
	subs := make([]chan pipeline.Result, 0, len(f.subs))
	for _, ch := range f.subs {
		subs = append(subs, ch)
	}
	err := f.errorFor(job)
	f.mu.Unlock()

	go func() {
		res := pipeline.Result{Job: job, Error: err}
		if err == nil {
			res.Summary = &batch.Summary{
				RunID:   job.ID,
				RunType: string(job.Type),
				Engine:  "stub",
				Total:   2,
				Passed:  2,
			}
		}
		for _, ch := range subs {
			ch <- res
		}
	}()
	return job.ID, nil
}

func (f *fakePipeline) Subscribe() (<-chan pipeline.Result, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSubID
	f.nextSubID++
	ch := make(chan pipeline.Result, 2)
	f.subs[id] = ch
	unsub := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			close(c)
			delete(f.subs, id)
		}
	}
	return ch, unsub
}

func (f *fakePipeline) errorFor(job pipeline.Job) error {
	if err, ok := f.jobErrors[job.ID]; ok {
		return err
	}
	if err, ok := f.jobErrors[string(job.Type)]; ok {
		return err
	}
	return nil
}

func (f *fakePipeline) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = nil
	f.jobErrors = make(map[string]error)
}

type stubEngine struct {
	name      string
	available bool
}

func (e *stubEngine) Name() string { return e.name }

func (e *stubEngine) IsAvailable() bool { return e.available }

func (e *stubEngine) Coregister(ctx context.Context, req engine.Request) (coreg.EngineResult, error) {
	return coreg.EngineResult{Success: true, ShiftX: fp(0), ShiftY: fp(0)}, nil
}

func fp(v float64) *float64 { return &v }

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func touch(t *testing.T, path string) {
	t.Helper()
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("failed to touch %s: %v", path, err)
	}
}
