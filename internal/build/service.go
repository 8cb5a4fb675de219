package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
	"github.com/iieono/make-via-backend-sub000/internal/engine"
	"github.com/iieono/make-via-backend-sub000/internal/generator"
	"github.com/iieono/make-via-backend-sub000/internal/notify"
	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
	"github.com/iieono/make-via-backend-sub000/internal/store"
)

const defaultCancelReason = "requested by user"

// Progress is the latest best-effort telemetry for a running build. It never
// drives state transitions.
type Progress struct {
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service owns the build record lifecycle. It is the only writer of build
// records: platform managers execute and report back through callbacks, the
// cache and janitor go through the same repository.
type Service struct {
	config    *config.BuildConfig
	repo      Repository
	cache     *Cache
	provider  snapshot.Provider
	generator generator.Generator
	docker    engine.Manager
	kube      engine.Manager
	artifacts store.Store
	notifier  notify.Notifier
	pool      *Pool
	metrics   *Metrics
	log       *zap.Logger

	mu         sync.RWMutex
	dispatched map[string]time.Time
	progress   map[string]Progress
}

func NewService(
	config *config.BuildConfig,
	repo Repository,
	cache *Cache,
	provider snapshot.Provider,
	gen generator.Generator,
	docker engine.Manager,
	kube engine.Manager,
	artifacts store.Store,
	notifier notify.Notifier,
	pool *Pool,
	metrics *Metrics,
	log *zap.Logger,
) *Service {
	return &Service{
		config:     config,
		repo:       repo,
		cache:      cache,
		provider:   provider,
		generator:  gen,
		docker:     docker,
		kube:       kube,
		artifacts:  artifacts,
		notifier:   notifier,
		pool:       pool,
		metrics:    metrics,
		log:        log,
		dispatched: make(map[string]time.Time),
		progress:   make(map[string]Progress),
	}
}

// StartBuild validates the request, serves it from cache when a fresh
// identical build exists, and otherwise queues a new build. It returns as
// soon as the record exists; execution happens out of band.
func (s *Service) StartBuild(ctx context.Context, userID string, req Request) (*Record, error) {
	if err := normalizeRequest(&req); err != nil {
		return nil, err
	}

	snap, err := s.provider.Snapshot(req.AppID)
	if err != nil {
		return nil, err
	}

	hash, err := ComputeBuildHash(snap, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to compute build hash: %w", err)
	}

	if cached := s.tryCache(ctx, snap, userID, hash); cached != nil {
		return cached, nil
	}
	s.metrics.CacheResult("miss")

	record := &Record{
		BuildID:        NewBuildID(),
		AppID:          req.AppID,
		UserID:         userID,
		BuildType:      req.BuildType,
		BuildMode:      req.BuildMode,
		TargetPlatform: req.TargetPlatform,
		Status:         StatusQueued,
		BuildHash:      hash,
		BuildConfig:    req.BuildConfig,
	}
	if err := s.repo.CreateBuild(record); err != nil {
		return nil, fmt.Errorf("failed to create build record: %w", err)
	}

	if err := s.pool.Submit(record.BuildID, func() {
		s.executeBuild(record.BuildID, snap, req)
	}); err != nil {
		s.metrics.QueueRejected()
		if _, terr := s.repo.Transition(record.BuildID,
			[]Status{StatusQueued}, StatusFailed,
			map[string]any{"error_message": err.Error()}); terr != nil {
			s.log.Error("failed to mark rejected build",
				zap.String("build_id", record.BuildID),
				zap.Error(terr))
		}
		return nil, err
	}

	s.log.Info("build queued",
		zap.String("build_id", record.BuildID),
		zap.String("app_id", req.AppID),
		zap.String("build_type", string(req.BuildType)),
		zap.String("build_hash", hash))

	return record, nil
}

// tryCache returns a cloned record when a fresh prior build with the same
// hash still has its artifact, nil otherwise. Cache trouble never fails the
// request, it just degrades to a full build.
func (s *Service) tryCache(ctx context.Context, snap *snapshot.AppSnapshot, userID, hash string) *Record {
	source, err := s.cache.Lookup(snap.App.ID, hash)
	if err != nil {
		s.log.Warn("cache lookup failed", zap.Error(err))
		return nil
	}
	if source == nil || !s.cache.ValidateArtifact(ctx, source) {
		return nil
	}

	clone, err := s.cache.Clone(ctx, source, userID, downloadName(snap.App.Name))
	if err != nil {
		s.log.Warn("cache clone failed",
			zap.String("source_build_id", source.BuildID),
			zap.Error(err))
		return nil
	}

	s.metrics.CacheResult("hit")
	s.publish(clone)
	return clone
}

// executeBuild runs on a pool worker. Every error past this point lands in
// the build record, never in a caller.
func (s *Service) executeBuild(buildID string, snap *snapshot.AppSnapshot, req Request) {
	ok, err := s.repo.Transition(buildID, []Status{StatusQueued}, StatusBuilding, nil)
	if err != nil {
		s.log.Error("failed to mark build as building",
			zap.String("build_id", buildID),
			zap.Error(err))
		return
	}
	if !ok {
		// Cancelled while still queued.
		s.log.Info("skipping dispatch of cancelled build",
			zap.String("build_id", buildID))
		return
	}

	s.trackDispatch(buildID)
	s.metrics.BuildStarted(req.BuildType)

	files, err := s.generator.Generate(snap, generator.Params{
		BuildType:      string(req.BuildType),
		BuildMode:      string(req.BuildMode),
		TargetPlatform: string(req.TargetPlatform),
		BuildConfig:    req.BuildConfig,
	})
	if err != nil {
		s.failBuild(buildID, fmt.Errorf("failed to generate project: %w", err))
		return
	}

	stagingDir := s.stagingDir(buildID)
	outputDir := s.outputDir(buildID)
	if err := generator.WriteTree(stagingDir, files); err != nil {
		s.failBuild(buildID, fmt.Errorf("failed to stage project: %w", err))
		return
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		s.failBuild(buildID, fmt.Errorf("failed to create output directory: %w", err))
		return
	}

	opts := engine.StartOptions{
		BuildID:     buildID,
		AppName:     snap.App.Name,
		BuildType:   string(req.BuildType),
		BuildMode:   string(req.BuildMode),
		ArtifactExt: req.BuildType.ArtifactExt(),
		StagingDir:  stagingDir,
		OutputDir:   outputDir,
		Env:         requestEnv(req.BuildConfig),
		Callbacks: engine.Callbacks{
			OnSuccess:  s.onBuildSuccess,
			OnFailure:  s.onBuildFailure,
			OnProgress: s.onProgress,
		},
	}

	if err := s.managerFor(req.BuildType).StartBuild(context.Background(), opts); err != nil {
		s.failBuild(buildID, fmt.Errorf("failed to start build: %w", err))
		return
	}

	s.log.Info("build dispatched",
		zap.String("build_id", buildID),
		zap.String("build_type", string(req.BuildType)))
}

// onBuildSuccess finalizes a build whose artifact landed in the output
// directory: upload, sign a download URL, complete the record, notify.
func (s *Service) onBuildSuccess(buildID, artifactPath string) {
	ctx := context.Background()

	record, err := s.repo.GetBuild(buildID)
	if err != nil {
		s.log.Error("finished build has no record",
			zap.String("build_id", buildID),
			zap.Error(err))
		return
	}

	storedPath := store.ArtifactPath(record.AppID, buildID, record.BuildType.ArtifactExt())
	if err := s.artifacts.Upload(ctx, artifactPath, storedPath); err != nil {
		s.failBuild(buildID, fmt.Errorf("failed to upload artifact: %w", err))
		return
	}

	name := s.appDownloadName(record)
	url, err := s.artifacts.DownloadURL(ctx, storedPath, name, s.config.ArtifactExpiration)
	if err != nil {
		s.failBuild(buildID, fmt.Errorf("failed to sign download url: %w", err))
		return
	}

	now := time.Now()
	ok, err := s.repo.Transition(buildID, []Status{StatusBuilding}, StatusCompleted,
		map[string]any{
			"download_url": url,
			"completed_at": now,
		})
	if err != nil {
		s.log.Error("failed to complete build",
			zap.String("build_id", buildID),
			zap.Error(err))
		return
	}
	if !ok {
		s.log.Warn("finished build was no longer building",
			zap.String("build_id", buildID))
		return
	}

	s.cleanupDirs(buildID, s.config.RetainStaging)
	s.metrics.BuildFinished(StatusCompleted, s.sinceDispatch(buildID))
	s.clearProgress(buildID)

	record.Status = StatusCompleted
	record.DownloadURL = &url
	record.CompletedAt = &now
	s.publish(record)

	s.log.Info("build completed",
		zap.String("build_id", buildID),
		zap.String("app_id", record.AppID))
}

func (s *Service) onBuildFailure(buildID string, cause error) {
	s.failBuild(buildID, cause)
}

// failBuild is the single sink for asynchronous failures. It is a no-op for
// builds already in a terminal status, which makes racing triggers safe.
func (s *Service) failBuild(buildID string, cause error) {
	now := time.Now()
	ok, err := s.repo.Transition(buildID,
		[]Status{StatusQueued, StatusBuilding}, StatusFailed,
		map[string]any{
			"error_message": cause.Error(),
			"completed_at":  now,
		})
	if err != nil {
		s.log.Error("failed to mark build as failed",
			zap.String("build_id", buildID),
			zap.Error(err))
		return
	}
	if !ok {
		s.log.Debug("ignoring failure for settled build",
			zap.String("build_id", buildID))
		return
	}

	s.cleanupDirs(buildID, false)
	s.metrics.BuildFinished(StatusFailed, s.sinceDispatch(buildID))
	s.clearProgress(buildID)

	if record, gerr := s.repo.GetBuild(buildID); gerr == nil {
		s.publish(record)
	}

	s.log.Warn("build failed",
		zap.String("build_id", buildID),
		zap.String("error", cause.Error()))
}

func (s *Service) onProgress(buildID string, percent int, message string) {
	s.mu.Lock()
	s.progress[buildID] = Progress{
		Percent:   percent,
		Message:   message,
		UpdatedAt: time.Now(),
	}
	s.mu.Unlock()

	s.log.Debug("build progress",
		zap.String("build_id", buildID),
		zap.Int("percent", percent),
		zap.String("message", message))
}

// GetBuild returns the build record.
func (s *Service) GetBuild(buildID string) (*Record, error) {
	return s.repo.GetBuild(buildID)
}

// Progress returns the latest telemetry for a build still running.
func (s *Service) Progress(buildID string) (Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[buildID]
	return p, ok
}

// ListBuilds returns all builds of an app, newest first.
func (s *Service) ListBuilds(appID string) ([]Record, error) {
	return s.repo.ListByApp(appID)
}

// CancelBuild stops a queued or running build. Cancelling a build that
// already settled is a no-op.
func (s *Service) CancelBuild(ctx context.Context, buildID, reason string) error {
	record, err := s.repo.GetBuild(buildID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		return nil
	}
	if reason == "" {
		reason = defaultCancelReason
	}

	if record.Status == StatusQueued {
		ok, err := s.repo.Transition(buildID, []Status{StatusQueued}, StatusFailed,
			map[string]any{"error_message": cancelMessage(reason)})
		if err != nil {
			return fmt.Errorf("failed to cancel queued build: %w", err)
		}
		if ok {
			s.clearProgress(buildID)
			if rec, gerr := s.repo.GetBuild(buildID); gerr == nil {
				s.publish(rec)
			}
			s.log.Info("cancelled queued build", zap.String("build_id", buildID))
			return nil
		}
		// Lost the race with dispatch, fall through to the manager.
	}

	mgr := s.managerFor(record.BuildType)
	if err := mgr.CancelBuild(ctx, buildID, reason); err != nil {
		return fmt.Errorf("failed to cancel build: %w", err)
	}

	// The manager reports cancellation through the failure callback. A build
	// it no longer tracks (say after a restart) is settled here instead.
	if current, gerr := s.repo.GetBuild(buildID); gerr == nil && current.Status == StatusBuilding {
		s.failBuild(buildID, errors.New(cancelMessage(reason)))
	}

	return nil
}

// RecoverInterrupted fails over builds left queued or building by an earlier
// process. The queue and the manager registries are in-memory, so after a
// restart no worker owns these records and nothing else would settle them.
// Runs once at startup, before the pool accepts work.
func (s *Service) RecoverInterrupted() error {
	recovered := 0
	for _, status := range []Status{StatusQueued, StatusBuilding} {
		records, err := s.repo.StaleBuilds(status, "", time.Now())
		if err != nil {
			return fmt.Errorf("failed to list interrupted builds: %w", err)
		}
		for _, record := range records {
			s.failBuild(record.BuildID, errors.New("build interrupted by service restart"))
			recovered++
		}
	}

	if recovered > 0 {
		s.log.Warn("recovered interrupted builds", zap.Int("count", recovered))
	}
	return nil
}

// managerFor routes iOS builds to the cloud manager and everything else to
// containers.
func (s *Service) managerFor(buildType BuildType) engine.Manager {
	if buildType == TypeIPA {
		return s.kube
	}
	return s.docker
}

func (s *Service) stagingDir(buildID string) string {
	return filepath.Join(s.config.RootDir, "staging", buildID)
}

func (s *Service) outputDir(buildID string) string {
	return filepath.Join(s.config.RootDir, "output", buildID)
}

// cleanupDirs removes a build's transient directories. The staging tree can
// be retained to let operators debug failed generations.
func (s *Service) cleanupDirs(buildID string, keepStaging bool) {
	if err := os.RemoveAll(s.outputDir(buildID)); err != nil {
		s.log.Warn("failed to remove output directory",
			zap.String("build_id", buildID),
			zap.Error(err))
	}
	if keepStaging {
		return
	}
	if err := os.RemoveAll(s.stagingDir(buildID)); err != nil {
		s.log.Warn("failed to remove staging directory",
			zap.String("build_id", buildID),
			zap.Error(err))
	}
}

func (s *Service) publish(record *Record) {
	event := notify.Event{
		BuildID:     record.BuildID,
		AppID:       record.AppID,
		UserID:      record.UserID,
		Status:      string(record.Status),
		DownloadURL: record.DownloadURL,
		Error:       record.ErrorMessage,
	}
	if err := s.notifier.Publish(event); err != nil {
		s.log.Warn("failed to publish build event",
			zap.String("build_id", record.BuildID),
			zap.Error(err))
	}
}

func (s *Service) appDownloadName(record *Record) string {
	name := "app"
	if snap, err := s.provider.Snapshot(record.AppID); err == nil {
		name = snap.App.Name
	}
	return downloadName(name) + record.BuildType.ArtifactExt()
}

func (s *Service) trackDispatch(buildID string) {
	s.mu.Lock()
	s.dispatched[buildID] = time.Now()
	s.mu.Unlock()
}

func (s *Service) sinceDispatch(buildID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	started, ok := s.dispatched[buildID]
	if !ok {
		return 0
	}
	delete(s.dispatched, buildID)
	return time.Since(started)
}

func (s *Service) clearProgress(buildID string) {
	s.mu.Lock()
	delete(s.progress, buildID)
	s.mu.Unlock()
}

func cancelMessage(reason string) string {
	return fmt.Sprintf("build cancelled: %s", reason)
}

// requestEnv extracts environment overrides from the request build config.
func requestEnv(buildConfig map[string]any) map[string]string {
	raw, ok := buildConfig["env"].(map[string]any)
	if !ok {
		return nil
	}
	env := make(map[string]string, len(raw))
	for key, value := range raw {
		env[key] = fmt.Sprintf("%v", value)
	}
	return env
}

var fileNameSanitizer = strings.NewReplacer("/", "-", "\\", "-", " ", "_")

func downloadName(appName string) string {
	if appName == "" {
		return "app"
	}
	return fileNameSanitizer.Replace(appName)
}
