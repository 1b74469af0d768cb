package observer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// PlanChangeCallback is called with the plan path after it changed
type PlanChangeCallback func(planPath string)

// PlanWatcher monitors sweep plan files and reports debounced changes.
// Directories are watched rather than files so editors that replace the
// file on save are still seen.
type PlanWatcher struct {
	watcher  *fsnotify.Watcher
	callback PlanChangeCallback
	debounce time.Duration
	log      logrus.FieldLogger

	// Track watched plans by cleaned absolute path
	plans map[string]struct{}
	dirs  map[string]int

	// Debounce state
	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewPlanWatcher creates a new watcher for plan files
func NewPlanWatcher(callback PlanChangeCallback) (*PlanWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	pw := &PlanWatcher{
		watcher:  watcher,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid changes
		log:      logrus.StandardLogger(),
		plans:    make(map[string]struct{}),
		dirs:     make(map[string]int),
		pending:  make(map[string]struct{}),
	}

	return pw, nil
}

// SetLogger replaces the watcher's logger
func (pw *PlanWatcher) SetLogger(log logrus.FieldLogger) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.log = log
}

// AddPlan starts watching a plan file
func (pw *PlanWatcher) AddPlan(planPath string) error {
	path, err := filepath.Abs(planPath)
	if err != nil {
		return err
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	if _, exists := pw.plans[path]; exists {
		return nil // Already watching
	}

	dir := filepath.Dir(path)
	if pw.dirs[dir] == 0 {
		if err := pw.watcher.Add(dir); err != nil {
			return err
		}
	}
	pw.dirs[dir]++
	pw.plans[path] = struct{}{}
	return nil
}

// RemovePlan stops watching a plan file
func (pw *PlanWatcher) RemovePlan(planPath string) {
	path, err := filepath.Abs(planPath)
	if err != nil {
		return
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	if _, exists := pw.plans[path]; !exists {
		return
	}

	dir := filepath.Dir(path)
	pw.dirs[dir]--
	if pw.dirs[dir] == 0 {
		pw.watcher.Remove(dir)
		delete(pw.dirs, dir)
	}
	delete(pw.plans, path)
	delete(pw.pending, path)
}

// Start begins watching for file changes
func (pw *PlanWatcher) Start(ctx context.Context) {
	ctx, pw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-pw.watcher.Events:
				if !ok {
					return
				}
				pw.handleEvent(event)
			case err, ok := <-pw.watcher.Errors:
				if !ok {
					return
				}
				// Log error but continue watching
				pw.mu.Lock()
				log := pw.log
				pw.mu.Unlock()
				log.WithError(err).Warn("plan watcher error")
			}
		}
	}()
}

// Stop stops watching for file changes
func (pw *PlanWatcher) Stop() {
	if pw.cancel != nil {
		pw.cancel()
	}
	pw.mu.Lock()
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.mu.Unlock()
	pw.watcher.Close()
}

func (pw *PlanWatcher) handleEvent(event fsnotify.Event) {
	// Only care about writes, creates and renames onto the plan
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	path, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	if _, watched := pw.plans[path]; !watched {
		return
	}
	pw.pending[path] = struct{}{}

	// Reset or start debounce timer
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.timer = time.AfterFunc(pw.debounce, pw.flush)
}

func (pw *PlanWatcher) flush() {
	pw.mu.Lock()
	// Copy pending state and clear
	pending := pw.pending
	pw.pending = make(map[string]struct{})
	pw.mu.Unlock()

	if pw.callback == nil {
		return
	}

	for path := range pending {
		pw.callback(path)
	}
}

// SetDebounce sets the debounce duration for batching file changes
func (pw *PlanWatcher) SetDebounce(d time.Duration) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.debounce = d
}
