package fixtures

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskhive/taskhive/internal/storage"
)

// Inbox layout, relative to the fixtures root.
const (
	InboxDir     = "inbox"
	ProcessedDir = "inbox/processed"
	FailedDir    = "inbox/failed"
)

const settleDelay = 200 * time.Millisecond

// Handler processes one document dropped into the inbox.
type Handler func(ctx context.Context, doc *Document) error

// WatchInbox processes .md files dropped into the inbox folder until ctx is
// cancelled. Files present at start are processed first. Each file is handed
// to handle once per distinct content, then moved to inbox/processed (or
// inbox/failed when parsing or handling fails).
//
// Writes are debounced so that a file is read only after it stops changing.
func WatchInbox(ctx context.Context, store storage.Provider, logger *slog.Logger, handle Handler) error {
	dir, err := store.Abs(InboxDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fixtures: create inbox: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("fixtures: watch inbox: %w", err)
	}
	logger.Info("inbox: started", slog.String("dir", dir))

	in := &inbox{store: store, logger: logger, handle: handle, seen: map[string]struct{}{}}
	in.drain(ctx)

	pending := map[string]struct{}{}
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			for _, p := range paths {
				in.process(ctx, p)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule(filepath.Join(InboxDir, name))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: error", slog.String("error", watchErr.Error()))
		}
	}
}

type inbox struct {
	store  storage.Provider
	logger *slog.Logger
	handle Handler
	seen   map[string]struct{} // checksums already handled
}

func (in *inbox) drain(ctx context.Context) {
	files, err := in.store.List(InboxDir)
	if err != nil {
		in.logger.Warn("inbox: list failed", slog.String("error", err.Error()))
		return
	}
	for _, f := range files {
		in.process(ctx, f.Path)
	}
}

func (in *inbox) process(ctx context.Context, rel string) {
	data, err := in.store.Read(rel)
	if err != nil {
		// Already moved by an earlier pass.
		return
	}
	sum := storage.Checksum(data)
	name := filepath.Base(rel)

	if _, dup := in.seen[sum]; dup {
		in.logger.Info("inbox: duplicate skipped", slog.String("path", rel))
		in.move(rel, filepath.Join(ProcessedDir, archiveName(sum, name)))
		return
	}

	doc, err := Parse(data)
	if err == nil {
		doc.Path = rel
		err = in.handle(ctx, doc)
	}
	if err != nil {
		in.logger.Warn("inbox: processing failed", slog.String("path", rel), slog.String("error", err.Error()))
		in.move(rel, filepath.Join(FailedDir, archiveName(sum, name)))
		return
	}

	in.seen[sum] = struct{}{}
	in.logger.Info("inbox: processed", slog.String("path", rel), slog.String("kind", string(doc.Kind)))
	in.move(rel, filepath.Join(ProcessedDir, archiveName(sum, name)))
}

// archiveName prefixes name with a short content checksum so that files
// reusing a name never replace an earlier archived one.
func archiveName(sum, name string) string {
	return sum[:12] + "-" + name
}

func (in *inbox) move(from, to string) {
	if err := in.store.Move(from, to); err != nil {
		in.logger.Warn("inbox: move failed", slog.String("path", from), slog.String("error", err.Error()))
	}
}
