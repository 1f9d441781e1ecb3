package valuez

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher produces documents for a Binding. Implementations must send the
// current document as soon as Watch is called so that a store can be
// loaded before the first change, and must close the channel when ctx is
// canceled.
type Watcher interface {
	Watch(ctx context.Context) (<-chan []byte, error)
}

// ChannelWatcher adapts an existing channel of documents.
type ChannelWatcher struct {
	ch     <-chan []byte
	direct bool
}

// NewChannelWatcher forwards documents from ch through a goroutine that
// stops when the Watch context is canceled.
func NewChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch}
}

// NewSyncChannelWatcher hands ch to the Binding directly. Pair it with
// Binding.SyncMode in tests so that documents are applied in step.
func NewSyncChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch, direct: true}
}

// Watch implements Watcher.
func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	if w.direct {
		return w.ch, nil
	}
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case doc, ok := <-w.ch:
				if !ok {
					return
				}
				if !send(ctx, out, doc) {
					return
				}
			}
		}
	}()
	return out, nil
}

// FileWatcher sends a file's contents on start and again whenever it is
// written. The parent directory is watched so that editors which replace
// the file by rename are followed.
type FileWatcher struct {
	path string
}

// NewFileWatcher creates a FileWatcher for path.
func NewFileWatcher(path string) *FileWatcher {
	return &FileWatcher{path: path}
}

// Watch implements Watcher.
func (w *FileWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", w.path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("watch %s: %w", w.path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", w.path, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer fsw.Close()

		if data, err := os.ReadFile(abs); err == nil {
			if !send(ctx, out, data) {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				data, err := os.ReadFile(abs)
				if err != nil {
					continue
				}
				if !send(ctx, out, data) {
					return
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func send(ctx context.Context, out chan<- []byte, doc []byte) bool {
	select {
	case out <- doc:
		return true
	case <-ctx.Done():
		return false
	}
}
