package ledger

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-index/internal/model"
)

// FileBackend stores processed names in an append-only text file (one name
// per line) and the marker in a separate file holding a single YYYY-MM-DD
// date. The marker file is replaced atomically.
type FileBackend struct {
	processedPath string
	markerPath    string

	mu    sync.RWMutex
	names map[string]struct{}
}

// OpenFileBackend loads the processed-file set from processedPath. Missing
// files are treated as empty.
func OpenFileBackend(processedPath, markerPath string) (*FileBackend, error) {
	fb := &FileBackend{
		processedPath: processedPath,
		markerPath:    markerPath,
		names:         make(map[string]struct{}),
	}

	f, err := os.Open(processedPath)
	if errors.Is(err, os.ErrNotExist) {
		return fb, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: open %s", processedPath)
	}
	defer f.Close() //nolint:errcheck

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name != "" {
			fb.names[name] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "ledger: read %s", processedPath)
	}
	return fb, nil
}

func (fb *FileBackend) Contains(_ context.Context, name string) (bool, error) {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	_, ok := fb.names[name]
	return ok, nil
}

func (fb *FileBackend) Append(_ context.Context, name string) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if _, ok := fb.names[name]; ok {
		return nil
	}

	if dir := filepath.Dir(fb.processedPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "ledger: create dir %s", dir)
		}
	}

	f, err := os.OpenFile(fb.processedPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s", fb.processedPath)
	}
	if _, err := f.WriteString(name + "\n"); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "ledger: append %s", name)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "ledger: sync %s", fb.processedPath)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "ledger: close %s", fb.processedPath)
	}

	fb.names[name] = struct{}{}
	return nil
}

func (fb *FileBackend) Marker(_ context.Context) (time.Time, bool, error) {
	data, err := os.ReadFile(fb.markerPath)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrapf(err, "ledger: read %s", fb.markerPath)
	}

	s := strings.TrimSpace(string(data))
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err := model.ParseDay(s)
	if err != nil {
		return time.Time{}, false, eris.Wrapf(err, "ledger: parse %s", fb.markerPath)
	}
	return t, true, nil
}

func (fb *FileBackend) SetMarker(_ context.Context, t time.Time) error {
	if dir := filepath.Dir(fb.markerPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "ledger: create dir %s", dir)
		}
	}
	content := t.Format(model.DateLayout) + "\n"
	if err := atomic.WriteFile(fb.markerPath, strings.NewReader(content)); err != nil {
		return eris.Wrapf(err, "ledger: write %s", fb.markerPath)
	}
	return nil
}

func (fb *FileBackend) Len(_ context.Context) (int, error) {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	return len(fb.names), nil
}
