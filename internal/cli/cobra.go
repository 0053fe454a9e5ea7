package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"georeg/internal/batch"
	"georeg/internal/config"
	"georeg/internal/coreg"
	"georeg/internal/filter"
	"georeg/internal/pipeline"
	"georeg/internal/raster"
	"georeg/internal/storage"
	"georeg/internal/watch"
)

const version = "1.0.0-dev"

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, pipe *pipeline.Pipeline) *cobra.Command {
	root := NewRoot(pipe, cfg, log, store)

	rootCmd := &cobra.Command{
		Use:   "georeg",
		Short: "georeg aligns satellite imagery batches against a reference raster",
		Long: `georeg runs coregistration engines over downloaded satellite sessions,
filters out unreliable shift measurements, and applies the surviving shifts
to every companion band of each scene.`,
	}

	rootCmd.AddCommand(newRunCmd(root))
	rootCmd.AddCommand(newSingleCmd(root))
	rootCmd.AddCommand(newPlanetCmd(root))
	rootCmd.AddCommand(newFilterCmd(root))
	rootCmd.AddCommand(newStatusCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newRunCmd(root *Root) *cobra.Command {
	var (
		reference      string
		roiID          string
		engineName     string
		preset         string
		windowSize     int
		maxShift       int
		minReliability float64
		minWindow      int
		maxShiftMeters float64
		zThreshold     float64
		noZFilter      bool
		zPassedOnly    bool
		skipPreviews   bool
	)

	cmd := &cobra.Command{
		Use:   "run <session_directory>",
		Short: "Coregister every scene of a download session",
		Long: `Run coregistration over a full download session: every multispectral scene
of every satellite folder is aligned against the reference raster, unreliable
shifts are filtered out, and the surviving shifts are applied to the
companion bands.

Examples:
  # Align a session against a Sentinel-2 reference
  georeg run /data/ID_zih2_datetime11-04-24__04_30_52 --reference /data/ref/S2_zih2.tif

  # Stricter filtering through a preset file
  georeg run /data/session --reference ref.tif --preset strict.yaml

  # Loosen the shift ceiling for a mountainous site
  georeg run /data/session --reference ref.tif --max-shift-meters 400`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := cmd.Flags()
			settings, err := root.runSettings(preset, func(rs *coreg.RunSettings) {
				if fl.Changed("window-size") {
					rs.EngineSettings.WindowSize = [2]int{windowSize, windowSize}
				}
				if fl.Changed("max-shift") {
					rs.EngineSettings.MaxShiftPx = maxShift
				}
				if fl.Changed("min-reliability") {
					rs.FilterSettings.ShiftReliabilityMin = minReliability
				}
				if fl.Changed("min-window") {
					rs.FilterSettings.WindowSizeMin = minWindow
				}
				if fl.Changed("max-shift-meters") {
					rs.FilterSettings.MaxShiftMeters = maxShiftMeters
				}
				if fl.Changed("z-threshold") {
					rs.FilterSettings.ZScoreThreshold = zThreshold
				}
				if noZFilter {
					rs.FilterSettings.FilterZScore = false
				}
				if zPassedOnly {
					rs.FilterSettings.FilterZScorePassedOnly = true
				}
			})
			if err != nil {
				return err
			}

			job := pipeline.Job{
				Type: pipeline.JobSession,
				Session: batch.SessionRequest{
					SessionDir:    args[0],
					ReferencePath: root.defaultReference(reference),
					ROIID:         roiID,
					Engine:        root.defaultEngine(engineName),
					Settings:      settings,
					SkipPreviews:  skipPreviews || root.cfg.Run.SkipPreviews,
				},
			}

			sum, err := root.enqueueAndWait(cmd.Context(), job)
			printSummary(sum)
			return err
		},
	}

	cmd.Flags().StringVarP(&reference, "reference", "r", "", "reference raster the session is aligned against")
	cmd.Flags().StringVar(&roiID, "roi", "", "ROI id to process when the session config lists several")
	cmd.Flags().StringVar(&engineName, "engine", "", "coregistration engine to use, config default if empty")
	cmd.Flags().StringVar(&preset, "preset", "", "filter settings preset file (YAML or JSON)")
	cmd.Flags().IntVar(&windowSize, "window-size", 256, "matching window size in pixels (square)")
	cmd.Flags().IntVar(&maxShift, "max-shift", 100, "maximum shift the engine searches, in pixels")
	cmd.Flags().Float64Var(&minReliability, "min-reliability", 40, "minimum shift reliability percentage")
	cmd.Flags().IntVar(&minWindow, "min-window", 50, "minimum matching window size accepted by the filter")
	cmd.Flags().Float64Var(&maxShiftMeters, "max-shift-meters", 250, "maximum absolute shift in meters accepted by the filter")
	cmd.Flags().Float64Var(&zThreshold, "z-threshold", 2, "z-score threshold for the outlier stage")
	cmd.Flags().BoolVar(&noZFilter, "no-z-filter", false, "disable the z-score outlier stage")
	cmd.Flags().BoolVar(&zPassedOnly, "z-passed-only", false, "compute z-scores over scenes that passed earlier stages only")
	cmd.Flags().BoolVar(&skipPreviews, "skip-previews", false, "skip JPEG preview regeneration")

	return cmd
}

func newSingleCmd(root *Root) *cobra.Command {
	var (
		reference  string
		output     string
		engineName string
		windowSize int
		maxShift   int
	)

	cmd := &cobra.Command{
		Use:   "single <target_raster>",
		Short: "Coregister one raster against a reference",
		Long: `Align a single raster against the reference and write the aligned result
plus a result document into the output directory. No filtering is applied;
the engine verdict stands.

Examples:
  georeg single scene_ms.tif --reference ref.tif
  georeg single scene_ms.tif --reference ref.tif --output /data/aligned`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := cmd.Flags()
			settings, err := root.runSettings("", func(rs *coreg.RunSettings) {
				if fl.Changed("window-size") {
					rs.EngineSettings.WindowSize = [2]int{windowSize, windowSize}
				}
				if fl.Changed("max-shift") {
					rs.EngineSettings.MaxShiftPx = maxShift
				}
			})
			if err != nil {
				return err
			}

			job := pipeline.Job{
				Type: pipeline.JobSingle,
				Single: batch.SingleRequest{
					ReferencePath: root.defaultReference(reference),
					TargetPath:    args[0],
					OutputDir:     output,
					Engine:        root.defaultEngine(engineName),
					Settings:      settings,
				},
			}

			sum, err := root.enqueueAndWait(cmd.Context(), job)
			printSummary(sum)
			return err
		},
	}

	cmd.Flags().StringVarP(&reference, "reference", "r", "", "reference raster")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory, <target_dir>/coregistered if empty")
	cmd.Flags().StringVar(&engineName, "engine", "", "coregistration engine to use, config default if empty")
	cmd.Flags().IntVar(&windowSize, "window-size", 256, "matching window size in pixels (square)")
	cmd.Flags().IntVar(&maxShift, "max-shift", 100, "maximum shift the engine searches, in pixels")

	return cmd
}

func newPlanetCmd(root *Root) *cobra.Command {
	var (
		reference      string
		output         string
		engineName     string
		preset         string
		windowSize     int
		maxShift       int
		minReliability float64
		maxShiftMeters float64
		noZFilter      bool
	)

	cmd := &cobra.Command{
		Use:   "planet <scene_directory>",
		Short: "Coregister a folder of PlanetScope analytic scenes",
		Long: `Align every PlanetScope analytic scene in a directory against the
reference raster and shift the matching usable-data masks along. Rejected
scenes are moved into a failed_coregistration folder inside the output.

Examples:
  georeg planet /data/planet/2023-07 --reference ref.tif
  georeg planet /data/planet/2023-07 --reference ref.tif --output /data/planet-aligned`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := cmd.Flags()
			settings, err := root.runSettings(preset, func(rs *coreg.RunSettings) {
				if fl.Changed("window-size") {
					rs.EngineSettings.WindowSize = [2]int{windowSize, windowSize}
				}
				if fl.Changed("max-shift") {
					rs.EngineSettings.MaxShiftPx = maxShift
				}
				if fl.Changed("min-reliability") {
					rs.FilterSettings.ShiftReliabilityMin = minReliability
				}
				if fl.Changed("max-shift-meters") {
					rs.FilterSettings.MaxShiftMeters = maxShiftMeters
				}
				if noZFilter {
					rs.FilterSettings.FilterZScore = false
				}
			})
			if err != nil {
				return err
			}

			job := pipeline.Job{
				Type: pipeline.JobPlanet,
				Planet: batch.PlanetRequest{
					TargetDir:     args[0],
					ReferencePath: root.defaultReference(reference),
					OutputDir:     output,
					Engine:        root.defaultEngine(engineName),
					Settings:      settings,
				},
			}

			sum, err := root.enqueueAndWait(cmd.Context(), job)
			printSummary(sum)
			return err
		},
	}

	cmd.Flags().StringVarP(&reference, "reference", "r", "", "reference raster the scenes are aligned against")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory, <scene_dir>/coregistered_planet if empty")
	cmd.Flags().StringVar(&engineName, "engine", "", "coregistration engine to use, config default if empty")
	cmd.Flags().StringVar(&preset, "preset", "", "filter settings preset file (YAML or JSON)")
	cmd.Flags().IntVar(&windowSize, "window-size", 256, "matching window size in pixels (square)")
	cmd.Flags().IntVar(&maxShift, "max-shift", 100, "maximum shift the engine searches, in pixels")
	cmd.Flags().Float64Var(&minReliability, "min-reliability", 40, "minimum shift reliability percentage")
	cmd.Flags().Float64Var(&maxShiftMeters, "max-shift-meters", 250, "maximum absolute shift in meters accepted by the filter")
	cmd.Flags().BoolVar(&noZFilter, "no-z-filter", false, "disable the z-score outlier stage")

	return cmd
}

func newFilterCmd(root *Root) *cobra.Command {
	var (
		preset         string
		output         string
		minReliability float64
		minWindow      int
		maxShiftMeters float64
		zThreshold     float64
		noZFilter      bool
		zPassedOnly    bool
	)

	cmd := &cobra.Command{
		Use:   "filter <results_json>",
		Short: "Re-filter an existing results document",
		Long: `Apply the outlier filter to a previously written results document and
write the rejected-scene CSV without re-running any coregistration. Settings
embedded in the document are the baseline; a preset file and flags override
them.

Examples:
  georeg filter /data/session/coregistered/transformation_results.json
  georeg filter results.json --preset strict.yaml --output rejects.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := coreg.ReadResultsDocument(args[0])
			if err != nil {
				return err
			}

			settings := coreg.DefaultFilterSettings()
			if s := doc.Settings(); s != nil {
				settings = s.FilterSettings
			}
			if preset != "" {
				settings, err = coreg.LoadFilterSettings(preset)
				if err != nil {
					return fmt.Errorf("failed to load filter preset: %w", err)
				}
			}
			fl := cmd.Flags()
			if fl.Changed("min-reliability") {
				settings.ShiftReliabilityMin = minReliability
			}
			if fl.Changed("min-window") {
				settings.WindowSizeMin = minWindow
			}
			if fl.Changed("max-shift-meters") {
				settings.MaxShiftMeters = maxShiftMeters
			}
			if fl.Changed("z-threshold") {
				settings.ZScoreThreshold = zThreshold
			}
			if noZFilter {
				settings.FilterZScore = false
			}
			if zPassedOnly {
				settings.FilterZScorePassedOnly = true
			}
			if err := settings.Validate(); err != nil {
				return err
			}

			verdict := filter.Apply(doc.Records(), settings)
			printVerdict(doc.Records(), verdict)

			if output == "" {
				output = filepath.Join(filepath.Dir(args[0]), "filtered_files.csv")
			}
			if err := verdict.WriteCSV(output); err != nil {
				return err
			}
			fmt.Printf("Rejected scene list written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "filter settings preset file (YAML or JSON)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV output path, filtered_files.csv next to the input if empty")
	cmd.Flags().Float64Var(&minReliability, "min-reliability", 40, "minimum shift reliability percentage")
	cmd.Flags().IntVar(&minWindow, "min-window", 50, "minimum matching window size accepted by the filter")
	cmd.Flags().Float64Var(&maxShiftMeters, "max-shift-meters", 250, "maximum absolute shift in meters accepted by the filter")
	cmd.Flags().Float64Var(&zThreshold, "z-threshold", 2, "z-score threshold for the outlier stage")
	cmd.Flags().BoolVar(&noZFilter, "no-z-filter", false, "disable the z-score outlier stage")
	cmd.Flags().BoolVar(&zPassedOnly, "z-passed-only", false, "compute z-scores over scenes that passed earlier stages only")

	return cmd
}

func newStatusCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine availability and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := root.newEngineManager()

			fmt.Println("Coregistration engines:")
			engines := mgr.Engines()
			if len(engines) == 0 {
				fmt.Println("  none configured")
			}
			for _, e := range engines {
				fmt.Printf("  %-14s %s\n", e.Name(), statusMark(e.IsAvailable()))
			}

			fmt.Println("\nGDAL tools:")
			for _, st := range raster.Detect() {
				if st.Available {
					fmt.Printf("  %-14s %s  %s\n", st.Name, statusMark(true), st.Version)
				} else {
					fmt.Printf("  %-14s %s\n", st.Name, statusMark(false))
				}
			}

			runs, err := root.store.RecentRuns(limit)
			if err != nil {
				return err
			}
			fmt.Println("\nRecent runs:")
			if len(runs) == 0 {
				fmt.Println("  none")
			}
			for _, run := range runs {
				id := run.ID
				if len(id) > 8 {
					id = id[:8]
				}
				fmt.Printf("  %-8s  %-8s  %-18s  %d/%d scenes passed  %s\n",
					id, run.RunType, runStatusMark(run.Status),
					run.PassedScenes, run.TotalScenes,
					run.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent runs to show")

	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr      string
		watchDir  string
		reference string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP status server",
		Long: `Start an HTTP server exposing run history, an SSE stream and a websocket
feed of finished runs, plus a small dashboard page. With --watch-dir the
server also monitors a session inbox and queues settled sessions.

Examples:
  # Status server only
  georeg serve --addr :8080

  # Status server plus inbox watching
  georeg serve --addr :8080 --watch-dir /data/inbox --reference /data/ref/S2.tif`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = root.cfg.Server.Addr
			}
			if watchDir == "" && root.cfg.Watch.Enabled {
				watchDir = root.cfg.Watch.Dir
			}
			ref := reference
			if ref == "" {
				ref = root.cfg.Watch.Reference
			}
			if watchDir != "" && ref == "" {
				return fmt.Errorf("inbox watching requires a reference raster")
			}

			debounce := time.Duration(root.cfg.Watch.DebounceSeconds) * time.Second

			root.log.Info("starting server", "addr", addr, "watch_dir", watchDir)
			return root.serveFn(ctx, addr, root.store, root.pipeline, watchDir, debounce, root.watchSubmit(ref), root.log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, config default if empty")
	cmd.Flags().StringVar(&watchDir, "watch-dir", "", "session inbox directory to monitor")
	cmd.Flags().StringVarP(&reference, "reference", "r", "", "reference raster for watched sessions")

	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	var (
		reference string
		debounce  int
	)

	cmd := &cobra.Command{
		Use:   "watch [inbox_directory]",
		Short: "Watch a session inbox and queue settled sessions",
		Long: `Monitor an inbox directory for download sessions. Once a session's
config.json exists and its tree has been quiet for the debounce window, the
session is queued as a regular run. Runs until interrupted.

Examples:
  georeg watch /data/inbox --reference /data/ref/S2.tif
  georeg watch --reference ref.tif --debounce 60`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root.cfg.Watch.Dir
			if len(args) > 0 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no inbox directory given and none configured")
			}
			ref := reference
			if ref == "" {
				ref = root.cfg.Watch.Reference
			}
			ref = root.defaultReference(ref)
			if ref == "" {
				return fmt.Errorf("inbox watching requires a reference raster")
			}
			if debounce <= 0 {
				debounce = root.cfg.Watch.DebounceSeconds
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := watch.New(dir, time.Duration(debounce)*time.Second, root.watchSubmit(ref), root.log)
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&reference, "reference", "r", "", "reference raster for watched sessions")
	cmd.Flags().IntVar(&debounce, "debounce", 0, "seconds a session must stay quiet before it is queued")

	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("georeg v%s\n", version)
			cmd.Printf("Built with Go %s\n", runtime.Version())
		},
	}
}
