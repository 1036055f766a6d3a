// Package watch hot-reloads a running pipeline's models when its profile
// file changes on disk.
//
// Only the model list is applied live. A change to any other profile
// field (labels, thresholds, voting window, tracker) is reported on the
// ops stream and takes effect on the next restart.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
	"github.com/banshee-data/behavior-cascade/internal/config"
	"github.com/banshee-data/behavior-cascade/internal/detect"
	"github.com/banshee-data/behavior-cascade/internal/timeutil"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Target is the pipeline surface a reload needs.
type Target interface {
	Profile() cascade.Profile
	ModelConfigs() []detect.ModelConfig
	LoadModels(configs []detect.ModelConfig) error
}

var _ Target = (*cascade.Pipeline)(nil)

// Option configures a ProfileWatcher.
type Option func(*ProfileWatcher)

// WithClock sets the clock used for debouncing.
func WithClock(c timeutil.Clock) Option {
	return func(w *ProfileWatcher) { w.clock = c }
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *ProfileWatcher) { w.debounce = d }
}

// WithOnReload registers a callback that receives the outcome of every
// reload attempt. A nil error with changed == false means the models were
// already current.
func WithOnReload(f func(changed bool, err error)) Option {
	return func(w *ProfileWatcher) { w.onReload = f }
}

// ProfileWatcher reloads Target's models from a profile file.
type ProfileWatcher struct {
	path     string
	target   Target
	clock    timeutil.Clock
	debounce time.Duration
	onReload func(changed bool, err error)

	mu    sync.Mutex
	timer timeutil.Timer

	reloadMu sync.Mutex
}

// New returns a watcher for path. Nothing is watched until Run.
func New(path string, target Target, opts ...Option) (*ProfileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if target == nil {
		return nil, errors.New("watch target is nil")
	}
	w := &ProfileWatcher{
		path:     abs,
		target:   target,
		clock:    timeutil.RealClock{},
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute path being watched.
func (w *ProfileWatcher) Path() string { return w.path }

// Run watches the profile's directory until ctx is cancelled. Watching
// the directory rather than the file survives editors that save by
// rename.
func (w *ProfileWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	diagf("watching %s", w.path)

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			tracef("event %s", ev)
			if w.relevant(ev) {
				w.schedule()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			opsf("watch %s: %v", w.path, err)
		}
	}
}

func (w *ProfileWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	return abs == w.path
}

// schedule arms or re-arms the debounce timer.
func (w *ProfileWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = w.clock.AfterFunc(w.debounce, w.Reload)
}

func (w *ProfileWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Reload reads the profile and applies its models if they differ from the
// ones loaded. A failed reload leaves the previous models running.
func (w *ProfileWatcher) Reload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	changed, err := w.reload()
	if err != nil {
		opsf("reload %s: %v", w.path, err)
	} else if changed {
		diagf("reloaded models from %s", w.path)
	}
	if w.onReload != nil {
		w.onReload(changed, err)
	}
}

func (w *ProfileWatcher) reload() (bool, error) {
	cfg, err := config.LoadProfileConfig(w.path)
	if err != nil {
		return false, err
	}

	current := w.target.Profile()
	if cfg.Behavior != current.Behavior {
		return false, fmt.Errorf("behavior changed from %q to %q, restart required", current.Behavior, cfg.Behavior)
	}
	if !cmp.Equal(cfg.ToProfile(), current) {
		opsf("profile %s changed beyond its models; restart to apply", w.path)
	}

	models := cfg.ModelConfigs()
	if cmp.Equal(models, w.target.ModelConfigs()) {
		return false, nil
	}
	if err := w.target.LoadModels(models); err != nil {
		return false, err
	}
	return true, nil
}
