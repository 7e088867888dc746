// Package jsonfile mirrors settled boards to JSON documents on disk and
// re-imports documents edited outside the application.
package jsonfile

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hylla/kollage/internal/app"
)

// settleDelay coalesces bursts of filesystem events for one file.
const settleDelay = 100 * time.Millisecond

// Importer applies an externally edited document to a board.
type Importer func(ctx context.Context, boardID string, raw []byte) error

// Mirror implements app.ChangeSink by writing one <board>.json per board.
type Mirror struct {
	dir string

	mu      sync.Mutex
	written map[string][sha256.Size]byte
}

// New creates the mirror directory when needed.
func New(dir string) (*Mirror, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("mirror directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mirror dir: %w", err)
	}
	return &Mirror{dir: dir, written: map[string][sha256.Size]byte{}}, nil
}

// Dir returns the mirror directory.
func (m *Mirror) Dir() string {
	return m.dir
}

// Path returns the document path for a board.
func (m *Mirror) Path(boardID string) string {
	return filepath.Join(m.dir, boardID+".json")
}

// Publish writes the settled document atomically.
func (m *Mirror) Publish(_ context.Context, note app.ChangeNotification) error {
	if strings.ContainsAny(note.BoardID, `/\`) || strings.TrimSpace(note.BoardID) == "" {
		return fmt.Errorf("invalid board id %q for mirror", note.BoardID)
	}
	tmp, err := os.CreateTemp(m.dir, "."+note.BoardID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create mirror temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(note.Document); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write mirror: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close mirror: %w", err)
	}

	m.mu.Lock()
	m.written[note.BoardID] = sha256.Sum256(note.Document)
	m.mu.Unlock()
	if err := os.Rename(tmpName, m.Path(note.BoardID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace mirror: %w", err)
	}
	return nil
}

// Watch re-imports documents changed by other programs until ctx ends.
// Files matching the last content this mirror wrote are ignored.
func (m *Mirror) Watch(ctx context.Context, importer Importer, onError func(error)) error {
	if importer == nil {
		return errors.New("mirror importer is required")
	}
	if onError == nil {
		onError = func(error) {}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create mirror watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(m.dir); err != nil {
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}

	debounce := time.NewTimer(settleDelay)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			boardID, relevant := boardIDFromPath(event.Name)
			if !relevant || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			pending[boardID] = struct{}{}
			debounce.Reset(settleDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onError(fmt.Errorf("mirror watcher: %w", err))
		case <-debounce.C:
			for boardID := range pending {
				delete(pending, boardID)
				if err := m.reimport(ctx, boardID, importer); err != nil {
					onError(err)
				}
			}
		}
	}
}

// reimport reads one document and hands it to importer when it differs from
// what the mirror last wrote.
func (m *Mirror) reimport(ctx context.Context, boardID string, importer Importer) error {
	raw, err := os.ReadFile(m.Path(boardID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read mirror %s: %w", boardID, err)
	}
	sum := sha256.Sum256(raw)
	m.mu.Lock()
	own := m.written[boardID] == sum
	m.mu.Unlock()
	if own {
		return nil
	}
	if err := importer(ctx, boardID, raw); err != nil {
		return fmt.Errorf("reimport %s: %w", boardID, err)
	}
	return nil
}

// boardIDFromPath extracts a board id from a mirror document path.
func boardIDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
		return "", false
	}
	id := strings.TrimSuffix(name, ".json")
	return id, id != ""
}
