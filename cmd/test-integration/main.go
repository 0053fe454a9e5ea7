package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"georeg/internal/batch"
	"georeg/internal/coreg"
	"georeg/internal/engine"
	"georeg/internal/pipeline"
	"georeg/internal/preview"
	"georeg/internal/raster"
	"georeg/internal/storage"
	"georeg/internal/watch"
)

func main() {
	fmt.Println("🔍 Testing inbox watcher + pipeline integration")

	inbox := "./inbox"
	reference := "./reference.tif"
	if len(os.Args) > 1 {
		inbox = os.Args[1]
	}
	if len(os.Args) > 2 {
		reference = os.Args[2]
	}

	// Setup storage
	store, err := storage.New("test_integration.db")
	if err != nil {
		log.Fatal("Failed to create storage:", err)
	}
	defer store.Close()

	fmt.Println("✅ Run history database ready")

	if !raster.Available() {
		fmt.Println("⚠️ GDAL utilities missing; coregistration runs will fail")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	engines := engine.NewManager("arosics")
	engines.Register(engine.NewExecEngine("arosics", "arosics-coreg"))
	runner := batch.New(engines, raster.NewGDAL(), preview.NewMagick(90), store, logger)

	// Monitor for 30 seconds
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pipe := pipeline.New(ctx, 1, logger, store, runner)
	defer pipe.Stop()

	fmt.Println("\n🚀 Setting up inbox watcher...")

	settings := coreg.RunSettings{
		EngineSettings: coreg.DefaultEngineSettings(),
		FilterSettings: coreg.DefaultFilterSettings(),
	}
	submit := func(sessionDir string) error {
		job := pipeline.Job{Type: pipeline.JobSession, Session: batch.SessionRequest{
			SessionDir:    sessionDir,
			ReferencePath: reference,
			Settings:      settings,
		}}
		id, err := pipe.Submit(job)
		if err != nil {
			return err
		}
		fmt.Printf("📦 Queued session %s as run %s\n", sessionDir, id)
		return nil
	}

	watcher, err := watch.New(inbox, 5*time.Second, submit, logger)
	if err != nil {
		log.Fatal("Failed to create watcher:", err)
	}
	if err := watcher.Start(); err != nil {
		log.Fatal("Failed to start watcher:", err)
	}
	defer watcher.Stop()

	fmt.Println("✅ Watcher running on", inbox)
	fmt.Println("🎯 Starting 30-second monitoring test...")

	results, unsub := pipe.Subscribe()
	defer unsub()
	resultCount := 0

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n✅ Test completed. Captured %d results.\n", resultCount)
			return
		case res := <-results:
			resultCount++
			if res.Error != nil {
				fmt.Printf("❌ Run %s failed: %v\n", res.Job.ID, res.Error)
				continue
			}
			fmt.Printf("📸 Run %s: %d scenes, %d passed, %d failed\n",
				res.Job.ID, res.Summary.Total, res.Summary.Passed, res.Summary.Failed)
		case <-time.After(10 * time.Second):
			fmt.Println("⏳ No results in last 10 seconds...")
		}
	}
}
