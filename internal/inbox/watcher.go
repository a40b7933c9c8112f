// Package inbox analyzes documents dropped into a directory and writes each
// decision next to its document.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"titanflow/internal/agent"
	"titanflow/internal/pipeline"
	"titanflow/internal/queue"
)

// Output files written next to <name>.
const (
	DecisionSuffix = ".decision.json"
	ErrorSuffix    = ".error.txt"
)

// debounceDelay coalesces the burst of write events a copy produces.
var debounceDelay = 250 * time.Millisecond

// newWatcherFunc creates an fsnotify watcher; tests may replace it to inject errors.
var newWatcherFunc = fsnotify.NewWatcher

// Analyzer runs one document through the reasoning loop.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, name string, data []byte, obs agent.Observer) (*pipeline.Report, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithParallelism caps concurrent runs. Zero means unlimited.
func WithParallelism(n int) Option {
	return func(w *Watcher) { w.parallel = n }
}

// WithBacklog controls whether documents already in the directory without
// an output file are analyzed on Start. Defaults to true.
func WithBacklog(enabled bool) Option {
	return func(w *Watcher) { w.backlog = enabled }
}

// Watcher turns every new document in dir into an independent run. Runs for
// the same file name are serialized; different files run concurrently.
type Watcher struct {
	dir      string
	analyzer Analyzer
	logger   *slog.Logger
	parallel int
	backlog  bool

	queue   *queue.LaneQueue
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	timers  map[string]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	runs    sync.WaitGroup
}

// New panics if analyzer is nil.
func New(dir string, analyzer Analyzer, opts ...Option) *Watcher {
	if analyzer == nil {
		panic("inbox: analyzer must not be nil")
	}
	w := &Watcher{dir: dir, analyzer: analyzer, backlog: true}
	for _, o := range opts {
		o(w)
	}
	w.queue = queue.NewLaneQueue(w.parallel)
	return w
}

func (w *Watcher) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}

// Start begins watching. Runs use a context derived from ctx that Stop
// cancels.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("inbox: already started")
	}

	fsw, err := newWatcherFunc()
	if err != nil {
		return fmt.Errorf("inbox: watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}
	w.watcher = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.timers = make(map[string]*time.Timer)
	w.running = true

	go w.eventLoop()
	if w.backlog {
		go w.scanBacklog()
	}
	w.log().Info("inbox watching", "dir", w.dir)
	return nil
}

// Stop ceases watching, cancels in-flight runs and waits for them to write
// their output. Safe to call when not started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	for _, t := range w.timers {
		t.Stop()
	}
	close(w.done)
	err := w.watcher.Close()
	w.cancel()
	w.mu.Unlock()

	w.runs.Wait()
	return err
}

// Wait blocks until every run submitted so far has finished.
func (w *Watcher) Wait() { w.runs.Wait() }

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if isDocument(event.Name) {
				w.schedule(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log().Warn("inbox watcher error", "error", err)
		}
	}
}

// isDocument filters out our own output, temp files and hidden files.
func isDocument(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") &&
		!strings.HasSuffix(base, DecisionSuffix) &&
		!strings.HasSuffix(base, ErrorSuffix)
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceDelay, func() { w.submit(path) })
}

func (w *Watcher) submit(path string) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	delete(w.timers, path)
	ctx := w.ctx
	w.runs.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.runs.Done()
		if err := w.queue.Do(ctx, filepath.Base(path), func() error { return w.process(ctx, path) }); err != nil {
			w.log().Error("inbox run failed", "document", path, "error", err)
		}
	}()
}

func (w *Watcher) scanBacklog() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log().Warn("inbox backlog scan failed", "error", err)
		return
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.IsDir() || !isDocument(path) || hasOutput(path) {
			continue
		}
		w.submit(path)
	}
}

func hasOutput(path string) bool {
	for _, suffix := range []string{DecisionSuffix, ErrorSuffix} {
		if _, err := os.Stat(path + suffix); err == nil {
			return true
		}
	}
	return false
}

// process analyzes one file and writes exactly one of its output files.
// Only output write failures and cancellation are returned.
func (w *Watcher) process(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return w.writeResult(path, nil, fmt.Errorf("read document: %w", err))
	}
	report, err := w.analyzer.AnalyzeDocument(ctx, filepath.Base(path), data, nil)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down: leave the document for the next backlog scan.
			return ctx.Err()
		}
		return w.writeResult(path, nil, err)
	}
	return w.writeResult(path, report, nil)
}

func (w *Watcher) writeResult(path string, report *pipeline.Report, runErr error) error {
	if runErr != nil {
		os.Remove(path + DecisionSuffix)
		w.log().Warn("inbox document failed", "document", path, "error", runErr)
		return writeAtomic(path+ErrorSuffix, []byte(runErr.Error()+"\n"))
	}
	data, err := json.MarshalIndent(report.Decision, "", "  ")
	if err != nil {
		return fmt.Errorf("inbox: encode decision: %w", err)
	}
	os.Remove(path + ErrorSuffix)
	w.log().Info("inbox document analyzed", "document", path, "status", report.Decision.Status, "run_id", report.RunID)
	return writeAtomic(path+DecisionSuffix, append(data, '\n'))
}

// writeAtomic writes through a hidden temp file so readers never see a
// partial output.
func writeAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*")
	if err != nil {
		return fmt.Errorf("inbox: create temp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("inbox: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("inbox: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("inbox: write %s: %w", path, err)
	}
	return nil
}
