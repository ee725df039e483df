package runbook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Registry serves the current runbook snapshot and reloads it when the
// backing file changes. A failed reload keeps the previous good snapshot.
type Registry struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]
}

// NewRegistry loads the runbooks from path and returns a registry serving
// them.
func NewRegistry(path string, logger *zap.Logger) (*Registry, error) {
	r := &Registry{path: path, logger: logger}
	snap, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load runbooks: %w", err)
	}
	r.current.Store(snap)
	return r, nil
}

// Get returns the current immutable snapshot.
func (r *Registry) Get() *Snapshot {
	return r.current.Load()
}

// Reload re-reads the file and swaps the snapshot if it validates.
func (r *Registry) Reload() error {
	snap, err := loadFile(r.path)
	if err != nil {
		return fmt.Errorf("reload runbooks: %w", err)
	}
	r.current.Store(snap)
	return nil
}

// Watch reloads the runbooks on file-change events until ctx is done.
// Invalid content is logged and the previous snapshot stays in effect.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory so atomic rename-into-place is observed.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", r.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := r.Reload(); err != nil {
					r.logger.Error("runbook reload rejected, keeping previous snapshot",
						zap.String("path", r.path), zap.Error(err))
					continue
				}
				r.logger.Info("runbooks reloaded",
					zap.String("path", r.path),
					zap.String("hash", r.Get().Hash()),
					zap.Int("runbooks", len(r.Get().All())))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("runbook watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}

func loadFile(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse builds a validated snapshot from YAML bytes. The document is
// `runbooks: [...]`. The snapshot hash is the SHA-256 of the raw bytes, so
// reloading an unchanged file yields an identical hash.
func Parse(raw []byte) (*Snapshot, error) {
	var doc struct {
		Runbooks []*Runbook `yaml:"runbooks"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Runbooks) == 0 {
		return nil, fmt.Errorf("runbooks file defines no runbooks")
	}
	sum := sha256.Sum256(raw)
	return build(doc.Runbooks, hex.EncodeToString(sum[:]))
}
