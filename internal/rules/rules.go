// Package rules loads the tax ruleset document given to every agent
// invocation and hot-reloads it when the file changes on disk.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"finsight/internal/logging"
)

// Ruleset is the parsed tax-rules document (contribution limits, rates,
// deadlines). Agents receive it verbatim in their prompt payload.
type Ruleset map[string]any

// Provider serves the current ruleset and keeps it fresh.
type Provider struct {
	mu      sync.RWMutex
	path    string
	current Ruleset

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewProvider loads the ruleset from path. A missing file yields an empty
// ruleset rather than an error so the system can run without one.
func NewProvider(path string) (*Provider, error) {
	p := &Provider{path: path, current: Ruleset{}}
	if err := p.reload(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		logging.Get(logging.CategoryBoot).Warn("ruleset file missing, starting empty", zap.String("path", path))
	}
	return p, nil
}

// Current returns the ruleset as of the last successful load.
func (p *Provider) Current() Ruleset {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Provider) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	var rs Ruleset
	if err := json.Unmarshal(data, &rs); err != nil {
		return fmt.Errorf("failed to parse ruleset %s: %w", p.path, err)
	}
	p.mu.Lock()
	p.current = rs
	p.mu.Unlock()
	return nil
}

// Watch starts a filesystem watcher that reloads the ruleset whenever the
// file is rewritten. A parse failure keeps the previous ruleset in place.
func (p *Provider) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create ruleset watcher: %w", err)
	}
	// Watch the directory: editors replace files rather than writing in place.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(p.path), err)
	}

	p.watcher = watcher
	p.done = make(chan struct{})
	log := logging.Get(logging.CategoryBoot)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := p.reload(); err != nil {
					log.Warn("ruleset reload failed, keeping previous", zap.Error(err))
					continue
				}
				log.Info("ruleset reloaded", zap.String("path", p.path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("ruleset watcher error", zap.Error(err))
			case <-p.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (p *Provider) Close() {
	if p.watcher != nil {
		close(p.done)
		p.watcher.Close()
		p.watcher = nil
	}
}
