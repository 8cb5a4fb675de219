package build

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
	"github.com/iieono/make-via-backend-sub000/internal/engine"
	"github.com/iieono/make-via-backend-sub000/internal/generator"
	"github.com/iieono/make-via-backend-sub000/internal/notify"
	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
	"github.com/iieono/make-via-backend-sub000/internal/store"
)

func newTestLogger(t *testing.T) *zap.Logger {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger
}

func newTestConfig(t *testing.T) *config.AppConfig {
	root := t.TempDir()
	return &config.AppConfig{
		Build: config.BuildConfig{
			RootDir:            filepath.Join(root, "builds"),
			Workers:            2,
			QueueSize:          8,
			ArtifactExpiration: time.Hour,
		},
		Cache: config.CacheConfig{
			FreshnessWindow: 30 * 24 * time.Hour,
		},
		GC: config.GCConfig{
			Interval:        time.Hour,
			RetentionWindow: 30 * 24 * time.Hour,
			KeepPerApp:      5,
		},
		Store: config.StoreConfig{
			Backend: "local",
			Local: config.LocalStoreConfig{
				Root:          filepath.Join(root, "artifacts"),
				BaseURL:       "http://localhost:8080",
				SigningSecret: "test-secret",
			},
		},
	}
}

// stubProvider serves canned snapshots without a database.
type stubProvider struct {
	snaps map[string]*snapshot.AppSnapshot
}

func newStubProvider(snaps ...*snapshot.AppSnapshot) *stubProvider {
	p := &stubProvider{snaps: make(map[string]*snapshot.AppSnapshot)}
	for _, snap := range snaps {
		p.snaps[snap.App.ID] = snap
	}
	return p
}

func (p *stubProvider) Snapshot(appID string) (*snapshot.AppSnapshot, error) {
	snap, ok := p.snaps[appID]
	if !ok {
		return nil, snapshot.ErrAppNotFound
	}
	return snap, nil
}

// stubManager records start and cancel calls. Tests script the build outcome
// through onStart, which runs inline on the dispatching worker.
type stubManager struct {
	mu        sync.Mutex
	started   []engine.StartOptions
	cancelled []string
	startErr  error
	onStart   func(opts engine.StartOptions)
}

func (m *stubManager) StartBuild(ctx context.Context, opts engine.StartOptions) error {
	m.mu.Lock()
	m.started = append(m.started, opts)
	onStart := m.onStart
	m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}
	if onStart != nil {
		onStart(opts)
	}
	return nil
}

func (m *stubManager) CancelBuild(ctx context.Context, buildID, reason string) error {
	m.mu.Lock()
	m.cancelled = append(m.cancelled, buildID)
	m.mu.Unlock()
	return nil
}

func (m *stubManager) ActiveBuilds() []string { return nil }

func (m *stubManager) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

func (m *stubManager) cancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancelled)
}

func (m *stubManager) lastOptions() engine.StartOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started[len(m.started)-1]
}

// succeedWithArtifact scripts the manager to drop an artifact file into the
// output directory and report success, the way a real build finishes.
func (m *stubManager) succeedWithArtifact() {
	m.onStart = func(opts engine.StartOptions) {
		artifact := filepath.Join(opts.OutputDir, opts.BuildID+opts.ArtifactExt)
		if err := os.WriteFile(artifact, []byte("artifact-bytes"), 0644); err != nil {
			opts.Callbacks.OnFailure(opts.BuildID, err)
			return
		}
		opts.Callbacks.OnProgress(opts.BuildID, 95, "finalizing")
		opts.Callbacks.OnSuccess(opts.BuildID, artifact)
	}
}

func (m *stubManager) failWith(cause error) {
	m.onStart = func(opts engine.StartOptions) {
		opts.Callbacks.OnFailure(opts.BuildID, cause)
	}
}

// captureNotifier collects published events for assertions.
type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *captureNotifier) Publish(event notify.Event) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *captureNotifier) Close() error { return nil }

func (n *captureNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, event := range n.events {
		out[i] = event.Status
	}
	return out
}

type testEnv struct {
	service   *Service
	repo      *mockRepository
	provider  *stubProvider
	docker    *stubManager
	kube      *stubManager
	artifacts store.Store
	notifier  *captureNotifier
	pool      *Pool
	config    *config.AppConfig
}

func newTestEnv(t *testing.T) *testEnv {
	env := newStoppedTestEnv(t)
	env.pool.Start()
	return env
}

// newStoppedTestEnv wires the service with the worker pool not yet started,
// so queued builds stay queued until the test decides.
func newStoppedTestEnv(t *testing.T) *testEnv {
	logger := newTestLogger(t)
	cfg := newTestConfig(t)

	artifacts, err := store.NewLocalStore(&cfg.Store.Local, logger)
	require.NoError(t, err)

	repo := newMockRepository()
	provider := newStubProvider(testSnapshot())
	docker := &stubManager{}
	kube := &stubManager{}
	notifier := &captureNotifier{}
	pool := NewPool(cfg.Build.Workers, cfg.Build.QueueSize, logger)
	t.Cleanup(pool.Stop)

	cache := NewCache(repo, artifacts, cfg, logger)
	metrics := NewMetrics(prom.NewRegistry())

	service := NewService(&cfg.Build, repo, cache, provider,
		generator.NewTemplateGenerator(), docker, kube,
		artifacts, notifier, pool, metrics, logger)

	return &testEnv{
		service:   service,
		repo:      repo,
		provider:  provider,
		docker:    docker,
		kube:      kube,
		artifacts: artifacts,
		notifier:  notifier,
		pool:      pool,
		config:    cfg,
	}
}

func testSnapshot() *snapshot.AppSnapshot {
	updated := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	return &snapshot.AppSnapshot{
		App: &snapshot.App{
			ID:          "app-1",
			UserID:      "user-1",
			Name:        "Field Notes",
			PackageName: "com.makevia.fieldnotes",
			VersionName: "1.2.0",
			VersionCode: 7,
			Config:      snapshot.JSONMap{"theme": "dark"},
			UpdatedAt:   updated,
		},
		Pages: []snapshot.Page{
			{ID: "page-1", AppID: "app-1", Name: "Home", Route: "/", Config: snapshot.JSONMap{"title": "Home"}, SortOrder: 0, UpdatedAt: updated},
			{ID: "page-2", AppID: "app-1", Name: "Notes", Route: "/notes", SortOrder: 1, UpdatedAt: updated},
		},
		Components: []snapshot.Component{
			{ID: "comp-1", PageID: "page-1", Type: "text", Data: snapshot.JSONMap{"value": "Welcome"}, SortOrder: 0, UpdatedAt: updated},
			{ID: "comp-2", PageID: "page-2", Type: "list", Data: snapshot.JSONMap{"source": "notes"}, Properties: snapshot.JSONMap{"dense": true}, SortOrder: 0, UpdatedAt: updated},
		},
	}
}

// waitForStatus polls until the build reaches the wanted status or the
// deadline passes. Dispatch runs on pool workers, so tests cannot observe
// transitions synchronously.
func waitForStatus(t *testing.T, repo Repository, buildID string, want Status) *Record {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, err := repo.GetBuild(buildID)
		require.NoError(t, err)
		if record.Status == want {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}

	record, _ := repo.GetBuild(buildID)
	t.Fatalf("build %s never reached %s, last status %s", buildID, want, record.Status)
	return nil
}
