// Package cli implements the georeg command line interface. Commands queue
// runs through the pipeline and render the summary once the run finishes.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"

	"georeg/internal/batch"
	"georeg/internal/config"
	"georeg/internal/coreg"
	"georeg/internal/engine"
	"georeg/internal/filter"
	"georeg/internal/logging"
	"georeg/internal/pipeline"
	"georeg/internal/raster"
	"georeg/internal/server"
	"georeg/internal/storage"
	"georeg/internal/watch"
)

type pipelineClient interface {
	Submit(job pipeline.Job) (string, error)
	Subscribe() (<-chan pipeline.Result, func())
}

type engineFactory func(cfg *config.Config) *engine.Manager

type serverFunc func(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient,
	watchDir string, debounce time.Duration, submit watch.SubmitFunc, log *slog.Logger) error

func defaultServe(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient,
	watchDir string, debounce time.Duration, submit watch.SubmitFunc, log *slog.Logger) error {
	real, ok := pipe.(*pipeline.Pipeline)
	if !ok {
		return fmt.Errorf("pipeline does not support server operation")
	}
	for _, st := range raster.Detect() {
		logging.LogToolStatus(log, st.Name, st.Available, st.Version, st.Path, st.Error)
	}
	srv, err := server.NewServer(addr, store, real, watchDir, debounce, submit, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(ctx)
}

// Root wires CLI commands to the pipeline.
type Root struct {
	pipeline pipelineClient
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	engines  engineFactory
	serveFn  serverFunc
}

// NewRoot constructs the CLI root command.
func NewRoot(pl *pipeline.Pipeline, cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{
		pipeline: pl,
		cfg:      cfg,
		log:      logger,
		store:    store,
		engines:  BuildEngineManager,
		serveFn:  defaultServe,
	}
}

// BuildEngineManager assembles the engine registry from configuration. Every
// configured command becomes a selectable engine; availability is checked
// when a run selects it.
func BuildEngineManager(cfg *config.Config) *engine.Manager {
	m := engine.NewManager(cfg.Engines.Default)
	for _, ec := range cfg.Engines.Commands {
		m.Register(engine.NewExecEngine(ec.Name, ec.Command, ec.Args...))
	}
	return m
}

func (r *Root) newEngineManager() *engine.Manager {
	if r.engines != nil {
		return r.engines(r.cfg)
	}
	return BuildEngineManager(r.cfg)
}

// enqueueAndWait submits a job and blocks until its result arrives.
func (r *Root) enqueueAndWait(ctx context.Context, job pipeline.Job) (*batch.Summary, error) {
	resCh, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()

	id, err := r.pipeline.Submit(job)
	if err != nil {
		return nil, err
	}
	r.log.Info("run queued", "type", job.Type, "id", id, "input", job.InputPath())

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res, ok := <-resCh:
			if !ok {
				return nil, fmt.Errorf("pipeline stopped before completion")
			}
			if res.Job.ID != id {
				continue
			}
			if res.Error != nil {
				return res.Summary, res.Error
			}
			return res.Summary, nil
		}
	}
}

// runSettings assembles the run settings for a submission: defaults, then the
// configured filter preset, then per-command flag overrides via apply.
func (r *Root) runSettings(preset string, apply func(*coreg.RunSettings)) (coreg.RunSettings, error) {
	rs := coreg.RunSettings{
		EngineSettings: coreg.DefaultEngineSettings(),
		FilterSettings: coreg.DefaultFilterSettings(),
	}

	if preset == "" {
		preset = r.cfg.Run.FilterPreset
	}
	if preset != "" {
		fs, err := coreg.LoadFilterSettings(preset)
		if err != nil {
			return rs, fmt.Errorf("failed to load filter preset: %w", err)
		}
		rs.FilterSettings = fs
	}

	if apply != nil {
		apply(&rs)
	}
	return rs, nil
}

func (r *Root) defaultEngine(override string) string {
	if override != "" {
		return override
	}
	return r.cfg.Run.Engine
}

func (r *Root) defaultReference(override string) string {
	if override != "" {
		return override
	}
	return r.cfg.Paths.DefaultReference
}

// watchSubmit builds the submission callback for inbox watching. Settled
// sessions are queued as regular session runs against the given reference.
func (r *Root) watchSubmit(reference string) watch.SubmitFunc {
	return func(sessionDir string) error {
		settings, err := r.runSettings("", nil)
		if err != nil {
			return err
		}
		job := pipeline.Job{
			Type: pipeline.JobSession,
			Session: batch.SessionRequest{
				SessionDir:    sessionDir,
				ReferencePath: reference,
				Engine:        r.defaultEngine(""),
				Settings:      settings,
				SkipPreviews:  r.cfg.Run.SkipPreviews,
			},
		}
		id, err := r.pipeline.Submit(job)
		if err != nil {
			return err
		}
		r.log.Info("queued watched session", "id", id, "session", sessionDir)
		return nil
	}
}

func printSummary(sum *batch.Summary) {
	if sum == nil {
		return
	}
	passed := color.New(color.FgGreen).Sprintf("%d passed", sum.Passed)
	failed := color.New(color.FgRed).Sprintf("%d failed", sum.Failed)

	fmt.Printf("\nRun %s finished\n", sum.RunID)
	fmt.Printf("  Engine:  %s\n", sum.Engine)
	fmt.Printf("  Scenes:  %d total, %s, %s\n", sum.Total, passed, failed)
	if len(sum.Satellites) > 0 {
		fmt.Printf("  Satellites: %s\n", strings.Join(sum.Satellites, ", "))
	}
	fmt.Printf("  Output:  %s\n", sum.OutputDir)
	fmt.Printf("  Results: %s\n", sum.ResultsPath)
	if sum.CSVPath != "" {
		fmt.Printf("  Rejected scene list: %s\n", sum.CSVPath)
	}
	for _, w := range sum.Warnings {
		fmt.Printf("  %s %s\n", color.New(color.FgYellow).Sprint("warning:"), w)
	}
	fmt.Printf("  Elapsed: %s\n", sum.Elapsed.Round(time.Millisecond))
}

// printVerdict renders a per-scene pass/fail table in batch order.
func printVerdict(records []coreg.ShiftRecord, v *filter.Verdict) {
	passMark := color.New(color.FgGreen).Sprint("PASS")
	failMark := color.New(color.FgRed).Sprint("FAIL")

	for _, rec := range records {
		o, ok := v.Outcome(rec.Filename)
		if !ok {
			continue
		}
		if o.Passed {
			fmt.Printf("  %s  %s\n", passMark, rec.Filename)
		} else {
			fmt.Printf("  %s  %s  (%s)\n", failMark, rec.Filename, o.Reason)
		}
	}

	passed, failed := v.Counts()
	fmt.Printf("\n%s, %s\n",
		color.New(color.FgGreen).Sprintf("%d passed", passed),
		color.New(color.FgRed).Sprintf("%d failed", failed))
	for _, w := range v.Warnings {
		fmt.Printf("%s %s\n", color.New(color.FgYellow).Sprint("warning:"), w)
	}
}

func statusMark(ok bool) string {
	if ok {
		return color.New(color.FgGreen).Sprint("available")
	}
	return color.New(color.FgRed).Sprint("missing")
}

func runStatusMark(status string) string {
	switch status {
	case "completed":
		return color.New(color.FgGreen).Sprint(status)
	case "failed":
		return color.New(color.FgRed).Sprint(status)
	default:
		return color.New(color.FgYellow).Sprint(status)
	}
}
