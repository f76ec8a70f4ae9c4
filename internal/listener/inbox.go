package listener

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"memorial/internal/input"
	"memorial/internal/pipeline"
)

const (
	processedSubdir = "processed"
	failedSubdir    = "failed"
)

// inboxWatcher parses roster files dropped into INBOX_DIR. Files are parsed
// once their writes have been quiet for debounceDur, then moved to
// processed/ or failed/.
type inboxWatcher struct {
	svc         *Service
	dir         string
	watcher     *fsnotify.Watcher
	pending     map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
}

func newInboxWatcher(svc *Service) (*inboxWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &inboxWatcher{
		svc:         svc,
		dir:         svc.cfg.InboxDir,
		watcher:     watcher,
		pending:     make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start sweeps files already waiting in the inbox and begins watching it.
func (w *inboxWatcher) Start(ctx context.Context) error {
	for _, sub := range []string{"", processedSubdir, failedSubdir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0o755); err != nil {
			return err
		}
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.svc.logger.Info("watching inbox", zap.String("dir", w.dir))

	w.sweep()
	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the watcher.
func (w *inboxWatcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	if err := w.Close(); err != nil {
		w.svc.logger.Warn("close inbox watcher", zap.Error(err))
	}
}

func (w *inboxWatcher) Close() error {
	return w.watcher.Close()
}

func (w *inboxWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.svc.logger.Warn("inbox watcher error", zap.Error(err))
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *inboxWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !w.accepts(event.Name) {
		return
	}
	w.pending[event.Name] = time.Now()
}

// accepts reports whether path is a roster file sitting directly in the inbox.
func (w *inboxWatcher) accepts(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.dir) {
		return false
	}
	if _, err := input.KindOf(filepath.Base(path)); err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (w *inboxWatcher) flush(now time.Time) {
	var ready []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.debounceDur {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	for _, path := range ready {
		delete(w.pending, path)
		w.process(path)
	}
}

func (w *inboxWatcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.svc.logger.Warn("read inbox", zap.Error(err))
		return
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if w.accepts(path) {
			w.process(path)
		}
	}
}

func (w *inboxWatcher) process(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	run, err := w.svc.processInboxFile(path)
	dest := processedSubdir
	if err != nil {
		w.svc.logger.Error("inbox file failed", zap.String("path", path), zap.Error(err))
		dest = failedSubdir
	} else {
		w.svc.logger.Info("inbox file parsed", zap.String("path", path), zap.Int64("run", run.RunID), zap.Int("emitted", len(run.Records)))
	}
	target := filepath.Join(w.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		w.svc.logger.Warn("move inbox file", zap.String("path", path), zap.Error(err))
	}
}

func (s *Service) processInboxFile(path string) (pipeline.RunResult, error) {
	s.work.Lock()
	defer s.work.Unlock()

	run, err := s.processor.ProcessFile(path)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	if s.cfg.ListenerAutoExport {
		if _, _, err := pipeline.ExportRun(s.db, run.RunID, s.exportDir()); err != nil {
			return run, err
		}
	}
	return run, nil
}
