package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
	"github.com/banshee-data/behavior-cascade/internal/config"
	"github.com/banshee-data/behavior-cascade/internal/detect"
	"github.com/banshee-data/behavior-cascade/internal/timeutil"
)

const profileV1 = `behavior: smoke
models:
  - name: person
    path: person-v1.onnx
    threshold: 0.3
  - name: cigarette
    path: cigarette-v1.onnx
    threshold: 0.5
`

const profileV2 = `behavior: smoke
models:
  - name: person
    path: person-v2.onnx
    threshold: 0.3
  - name: cigarette
    path: cigarette-v2.onnx
    threshold: 0.5
`

type fakeTarget struct {
	mu      sync.Mutex
	profile cascade.Profile
	models  []detect.ModelConfig
	loads   int
	err     error
}

func newFakeTarget(t *testing.T, path string) *fakeTarget {
	t.Helper()
	cfg, err := config.LoadProfileConfig(path)
	require.NoError(t, err)
	return &fakeTarget{profile: cfg.ToProfile(), models: cfg.ModelConfigs()}
}

func (f *fakeTarget) Profile() cascade.Profile { return f.profile }

func (f *fakeTarget) ModelConfigs() []detect.ModelConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]detect.ModelConfig(nil), f.models...)
}

func (f *fakeTarget) LoadModels(configs []detect.ModelConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return f.err
	}
	f.models = configs
	return nil
}

func (f *fakeTarget) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

type outcome struct {
	changed bool
	err     error
}

func writeProfile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestScheduleDebounces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "smoke.yaml")
	writeProfile(t, path, profileV1)
	target := newFakeTarget(t, path)
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	var outcomes []outcome
	w, err := New(path, target, WithClock(clock), WithOnReload(func(changed bool, err error) {
		outcomes = append(outcomes, outcome{changed, err})
	}))
	require.NoError(t, err)

	writeProfile(t, path, profileV2)
	for i := 0; i < 3; i++ {
		w.schedule()
		clock.Advance(200 * time.Millisecond)
	}
	assert.Zero(t, target.loadCount(), "still inside the quiet period")

	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, 1, target.loadCount())
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].changed)
	assert.NoError(t, outcomes[0].err)
	assert.Equal(t, "person-v2.onnx", target.ModelConfigs()[0].Path)

	// The same timer is re-armed for the next burst.
	w.schedule()
	clock.Advance(DefaultDebounce)
	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[1].changed, "models already current")
	assert.Equal(t, 1, target.loadCount())
}

func TestReloadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rewrite   string
		loadErr   error
		wantErr   string
		wantLoads int
	}{
		{name: "invalid file", rewrite: "behavior: smoke\nmodels: 3\n", wantErr: "parse config YAML"},
		{name: "behavior change", rewrite: "behavior: person\nmodels:\n  - name: p\n    path: p\n", wantErr: "restart required"},
		{name: "load failure", rewrite: profileV2, loadErr: errors.New("license rejected"), wantErr: "license rejected", wantLoads: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "smoke.yaml")
			writeProfile(t, path, profileV1)
			target := newFakeTarget(t, path)
			target.err = tt.loadErr

			var got []outcome
			w, err := New(path, target, WithOnReload(func(changed bool, err error) {
				got = append(got, outcome{changed, err})
			}))
			require.NoError(t, err)

			writeProfile(t, path, tt.rewrite)
			w.Reload()

			require.Len(t, got, 1)
			assert.False(t, got[0].changed)
			require.Error(t, got[0].err)
			assert.Contains(t, got[0].err.Error(), tt.wantErr)
			assert.Equal(t, tt.wantLoads, target.loadCount())
			assert.Equal(t, "person-v1.onnx", target.ModelConfigs()[0].Path, "previous models stay")
		})
	}
}

func TestRelevant(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "smoke.yaml")
	writeProfile(t, path, profileV1)
	w, err := New(path, newFakeTarget(t, path))
	require.NoError(t, err)

	assert.True(t, w.relevant(fsnotify.Event{Name: path, Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: path, Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: path, Op: fsnotify.Chmod}))
	assert.False(t, w.relevant(fsnotify.Event{Name: filepath.Join(dir, "other.yaml"), Op: fsnotify.Write}))
}

func TestRunReloadsOnWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "smoke.yaml")
	writeProfile(t, path, profileV1)
	target := newFakeTarget(t, path)

	w, err := New(path, target, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Keep writing until the watcher has registered and picked it up.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(profileV2), 0o644)
		return target.loadCount() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "cigarette-v2.onnx", target.ModelConfigs()[1].Path)
}

func TestNewRejectsNilTarget(t *testing.T) {
	t.Parallel()
	_, err := New("profile.yaml", nil)
	assert.Error(t, err)
}
