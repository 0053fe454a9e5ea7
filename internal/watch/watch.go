// Package watch monitors an inbox of download sessions and queues a
// coregistration run once a session has settled.
package watch

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"georeg/internal/fsutil"
)

// SubmitFunc queues a run for one settled session directory.
type SubmitFunc func(sessionDir string) error

// Watcher monitors an inbox directory for download sessions. A session is
// submitted once its config.json exists and nothing in its tree has been
// written for the debounce window, so half-finished downloads are never
// picked up.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	submit   SubmitFunc
	log      *slog.Logger

	mu        sync.Mutex
	pending   map[string]bool
	submitted map[string]bool

	done chan struct{}
}

// New creates a watcher over the inbox directory.
func New(dir string, debounce time.Duration, submit SubmitFunc, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		watcher:   fsw,
		dir:       dir,
		debounce:  debounce,
		submit:    submit,
		log:       log,
		pending:   make(map[string]bool),
		submitted: make(map[string]bool),
		done:      make(chan struct{}),
	}, nil
}

// Start begins monitoring. Sessions already sitting in the inbox are picked
// up too, so a restart loses nothing.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			w.pending[e.Name()] = true
		}
	}
	w.mu.Unlock()

	w.log.Info("watching session inbox", "dir", w.dir, "debounce", w.debounce)
	go w.run()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	tick := w.debounce / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.observe(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("inbox watcher error", "error", err)
		case <-ticker.C:
			w.flush()
		case <-w.done:
			return
		}
	}
}

// observe marks the session a filesystem event belongs to as pending.
func (w *Watcher) observe(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	rel, err := filepath.Rel(w.dir, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	session := rel
	if i := strings.IndexByte(rel, filepath.Separator); i >= 0 {
		session = rel[:i]
	}
	if strings.HasPrefix(session, ".") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitted[session] {
		return
	}
	w.pending[session] = true
}

// flush submits every pending session that has settled.
func (w *Watcher) flush() {
	w.mu.Lock()
	names := make([]string, 0, len(w.pending))
	for name := range w.pending {
		names = append(names, name)
	}
	w.mu.Unlock()

	for _, name := range names {
		sessionDir := filepath.Join(w.dir, name)
		if !fsutil.Exists(sessionDir) {
			w.forget(name)
			continue
		}
		settled, err := w.settled(sessionDir)
		if err != nil {
			w.log.Warn("failed to inspect session", "session", name, "error", err)
			continue
		}
		if !settled {
			continue
		}

		w.log.Info("session settled, queueing run", "session", name)
		if err := w.submit(sessionDir); err != nil {
			// Kept pending; the next tick retries.
			w.log.Warn("failed to queue session run", "session", name, "error", err)
			continue
		}
		w.mu.Lock()
		w.submitted[name] = true
		delete(w.pending, name)
		w.mu.Unlock()
	}
}

func (w *Watcher) forget(name string) {
	w.mu.Lock()
	delete(w.pending, name)
	w.mu.Unlock()
}

// settled reports whether a session looks complete: its config exists and
// no file in the tree has been modified within the debounce window. The
// watcher only gets events for the inbox itself, so the tree is walked for
// modification times instead.
func (w *Watcher) settled(sessionDir string) (bool, error) {
	sess := fsutil.SessionLayout{Root: sessionDir}
	if !fsutil.Exists(sess.ConfigPath()) {
		return false, nil
	}

	var newest time.Time
	err := filepath.WalkDir(sessionDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == fsutil.CoregDirName {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return time.Since(newest) >= w.debounce, nil
}
