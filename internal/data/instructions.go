package data

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/conf"
)

// InstructionsRepo serves agent instructions from a YAML file and reloads
// them when the file changes. A reload that fails keeps the last good copy.
type InstructionsRepo struct {
	path    string
	mu      sync.RWMutex
	current domain.AgentInstructions
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
}

var _ repo.InstructionsRepo = (*InstructionsRepo)(nil)

// NewInstructionsRepo loads the file once and, when watch is set, follows changes
func NewInstructionsRepo(path string, watch bool) (*InstructionsRepo, error) {
	instr, err := conf.LoadInstructions(path)
	if err != nil {
		return nil, err
	}

	r := &InstructionsRepo{
		path:    path,
		current: instr,
		done:    make(chan struct{}),
		logger:  slog.With("component", "instructions"),
	}
	if !watch {
		return r, nil
	}
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		r.logger.Warn("instructions directory not found, hot reload disabled", "dir", dir)
		return r, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors replace files on save, so watch the directory rather than the file
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	r.watcher = w

	r.wg.Add(1)
	go r.run()
	return r, nil
}

// Current returns the latest loaded instructions
func (r *InstructionsRepo) Current() domain.AgentInstructions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload re-reads the file
func (r *InstructionsRepo) Reload() error {
	instr, err := conf.LoadInstructions(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.current = instr
	r.mu.Unlock()
	return nil
}

func (r *InstructionsRepo) run() {
	defer r.wg.Done()

	target := filepath.Clean(r.path)
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Warn("failed to reload instructions, keeping previous", "path", r.path, "error", err)
				continue
			}
			r.logger.Info("instructions reloaded", "path", r.path)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("instructions watcher error", "error", err)
		}
	}
}

// Close stops watching
func (r *InstructionsRepo) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	err := r.watcher.Close()
	r.wg.Wait()
	return err
}
