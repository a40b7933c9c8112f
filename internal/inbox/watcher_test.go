package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"titanflow/internal/agent"
	"titanflow/internal/domain"
	"titanflow/internal/extract"
	"titanflow/internal/pipeline"
)

func init() {
	debounceDelay = 20 * time.Millisecond
}

// fakeAnalyzer declines documents containing "decline", fails on "fail"
// and approves everything else.
type fakeAnalyzer struct {
	mu    sync.Mutex
	names []string
	block chan struct{}
}

func (f *fakeAnalyzer) AnalyzeDocument(ctx context.Context, name string, data []byte, _ agent.Observer) (*pipeline.Report, error) {
	f.mu.Lock()
	f.names = append(f.names, name)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	text := string(data)
	if strings.Contains(text, "fail") {
		return nil, errors.New("run r1: agent: malformed final output")
	}
	status := domain.DecisionApproved
	if strings.Contains(text, "decline") {
		status = domain.DecisionDeclined
	}
	return &pipeline.Report{
		Document: extract.Document{Name: name, Kind: extract.KindText},
		Result:   &agent.Result{RunID: "r1", Decision: &domain.Decision{Status: status, ClientName: "Acme Corp"}},
	}, nil
}

func (f *fakeAnalyzer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func waitForFile(t *testing.T, path string) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s was not written", path)
	return nil
}

func startWatcher(t *testing.T, dir string, fa *fakeAnalyzer, opts ...Option) *Watcher {
	t.Helper()
	w := New(dir, fa, opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestWatcher_WhenDocumentCreated_ShouldWriteDecision(t *testing.T) {
	// Given
	dir := t.TempDir()
	fa := &fakeAnalyzer{}
	startWatcher(t, dir, fa)

	// When
	doc := filepath.Join(dir, "rfp.txt")
	if err := os.WriteFile(doc, []byte("Acme Corp needs an AI agent"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Then
	data := waitForFile(t, doc+DecisionSuffix)
	var d domain.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if d.Status != domain.DecisionApproved || d.ClientName != "Acme Corp" {
		t.Errorf("unexpected decision %+v", d)
	}
	if names := fa.seen(); len(names) != 1 || names[0] != "rfp.txt" {
		t.Errorf("want one run for rfp.txt, got %v", names)
	}
}

func TestWatcher_WhenRunFails_ShouldWriteErrorFile(t *testing.T) {
	dir := t.TempDir()
	startWatcher(t, dir, &fakeAnalyzer{})

	doc := filepath.Join(dir, "bad.txt")
	os.WriteFile(doc, []byte("this will fail"), 0o644)

	data := waitForFile(t, doc+ErrorSuffix)
	if !strings.Contains(string(data), "malformed final output") {
		t.Errorf("unexpected error file %q", data)
	}
	if _, err := os.Stat(doc + DecisionSuffix); err == nil {
		t.Error("decision file should not exist")
	}
}

func TestWatcher_WhenBacklogPresent_ShouldAnalyzeOnlyUnprocessedDocuments(t *testing.T) {
	// Given one processed and one pending document
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "done.txt"), []byte("old"), 0o644)
	os.WriteFile(filepath.Join(dir, "done.txt"+DecisionSuffix), []byte("{}"), 0o644)
	os.WriteFile(filepath.Join(dir, "pending.txt"), []byte("please decline"), 0o644)
	fa := &fakeAnalyzer{}

	// When
	startWatcher(t, dir, fa)

	// Then
	data := waitForFile(t, filepath.Join(dir, "pending.txt"+DecisionSuffix))
	if !strings.Contains(string(data), `"declined"`) {
		t.Errorf("unexpected decision %s", data)
	}
	for _, n := range fa.seen() {
		if n == "done.txt" {
			t.Error("processed document was analyzed again")
		}
	}
}

func TestWatcher_WhenBacklogDisabled_ShouldIgnoreExistingDocuments(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "old.txt"), []byte("x"), 0o644)
	fa := &fakeAnalyzer{}
	w := startWatcher(t, dir, fa, WithBacklog(false))

	time.Sleep(100 * time.Millisecond)
	w.Wait()

	if names := fa.seen(); len(names) != 0 {
		t.Errorf("want no runs, got %v", names)
	}
}

func TestWatcher_Stop_ShouldCancelInFlightRunsWithoutOutput(t *testing.T) {
	// Given a run that blocks until cancelled
	dir := t.TempDir()
	fa := &fakeAnalyzer{block: make(chan struct{})}
	w := New(dir, fa)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	doc := filepath.Join(dir, "slow.txt")
	os.WriteFile(doc, []byte("x"), 0o644)
	deadline := time.Now().Add(3 * time.Second)
	for len(fa.seen()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	// When
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Then no output was written, so the next start picks it up again
	for _, suffix := range []string{DecisionSuffix, ErrorSuffix} {
		if _, err := os.Stat(doc + suffix); err == nil {
			t.Errorf("unexpected %s after cancellation", suffix)
		}
	}
}

func TestWatcher_Start_WhenCalledTwice_ShouldReturnError(t *testing.T) {
	w := startWatcher(t, t.TempDir(), &fakeAnalyzer{})
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestWatcher_Start_WhenDirMissing_ShouldReturnError(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), &fakeAnalyzer{})
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Error("expected error for missing directory")
	}
}

func TestWatcher_Start_WhenWatcherCreationFails_ShouldReturnError(t *testing.T) {
	orig := newWatcherFunc
	t.Cleanup(func() { newWatcherFunc = orig })
	newWatcherFunc = func() (*fsnotify.Watcher, error) { return nil, errors.New("too many open files") }

	if err := New(t.TempDir(), &fakeAnalyzer{}).Start(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestWatcher_Stop_WhenNotStarted_ShouldReturnNil(t *testing.T) {
	if err := New(t.TempDir(), &fakeAnalyzer{}).Stop(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestIsDocument(t *testing.T) {
	tests := map[string]bool{
		"/in/rfp.pdf":                  true,
		"/in/rfp.pdf" + DecisionSuffix: false,
		"/in/rfp.pdf" + ErrorSuffix:    false,
		"/in/.rfp.pdf.decision.json.1": false,
		"/in/.DS_Store":                false,
	}
	for path, want := range tests {
		if got := isDocument(path); got != want {
			t.Errorf("isDocument(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestNew_WhenAnalyzerNil_ShouldPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New("dir", nil)
}
