package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
	"github.com/iieono/make-via-backend-sub000/internal/store"
)

// Janitor expires builds past the retention window and sweeps leftover build
// directories. It is the only component that moves builds to expired.
type Janitor struct {
	config    *config.GCConfig
	buildRoot string
	repo      Repository
	artifacts store.Store
	metrics   *Metrics
	log       *zap.Logger
	scheduler gocron.Scheduler
}

func NewJanitor(
	appConfig *config.AppConfig,
	repo Repository,
	artifacts store.Store,
	metrics *Metrics,
	log *zap.Logger,
) (*Janitor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gc scheduler: %w", err)
	}

	return &Janitor{
		config:    &appConfig.GC,
		buildRoot: appConfig.Build.RootDir,
		repo:      repo,
		artifacts: artifacts,
		metrics:   metrics,
		log:       log,
		scheduler: scheduler,
	}, nil
}

// Start schedules the periodic retention run.
func (j *Janitor) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.config.Interval),
		gocron.NewTask(j.run),
		gocron.WithName("build-retention"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule retention job: %w", err)
	}

	j.scheduler.Start()
	j.log.Info("retention janitor started",
		zap.Duration("interval", j.config.Interval),
		zap.Duration("retention_window", j.config.RetentionWindow),
		zap.Int("keep_per_app", j.config.KeepPerApp))
	return nil
}

func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

func (j *Janitor) run() {
	ctx := context.Background()
	if _, err := j.CleanupOldBuilds(ctx, ""); err != nil {
		j.log.Error("retention run failed", zap.Error(err))
	}
	j.sweepDirectories()
}

// CleanupOldBuilds expires builds older than the retention window. Completed
// builds keep the newest KeepPerApp per app; the rest lose their artifact and
// download URL. Old failed builds are expired outright. An empty appID spans
// all apps.
func (j *Janitor) CleanupOldBuilds(ctx context.Context, appID string) (int, error) {
	cutoff := time.Now().Add(-j.config.RetentionWindow)
	expired := 0

	stale, err := j.repo.StaleBuilds(StatusCompleted, appID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale builds: %w", err)
	}

	keep := make(map[string]map[string]bool)
	for _, record := range stale {
		if _, ok := keep[record.AppID]; !ok {
			ids, err := j.repo.NewestCompletedIDs(record.AppID, j.config.KeepPerApp)
			if err != nil {
				return expired, fmt.Errorf("failed to list retained builds: %w", err)
			}
			set := make(map[string]bool, len(ids))
			for _, id := range ids {
				set[id] = true
			}
			keep[record.AppID] = set
		}
		if keep[record.AppID][record.BuildID] {
			continue
		}
		if j.expire(ctx, record, true) {
			expired++
		}
	}

	staleFailed, err := j.repo.StaleBuilds(StatusFailed, appID, cutoff)
	if err != nil {
		return expired, fmt.Errorf("failed to list stale failed builds: %w", err)
	}
	for _, record := range staleFailed {
		if j.expire(ctx, record, false) {
			expired++
		}
	}

	if expired > 0 {
		j.metrics.BuildsExpired(expired)
		j.log.Info("expired old builds",
			zap.Int("count", expired),
			zap.String("app_id", appID))
	}

	return expired, nil
}

func (j *Janitor) expire(ctx context.Context, record Record, dropArtifact bool) bool {
	if dropArtifact {
		path := store.ArtifactPath(record.AppID, record.BuildID, record.BuildType.ArtifactExt())
		if err := j.artifacts.Delete(ctx, path); err != nil {
			j.log.Warn("failed to delete expired artifact",
				zap.String("build_id", record.BuildID),
				zap.Error(err))
		}
	}

	ok, err := j.repo.Transition(record.BuildID,
		[]Status{record.Status}, StatusExpired,
		map[string]any{"download_url": nil})
	if err != nil {
		j.log.Error("failed to expire build",
			zap.String("build_id", record.BuildID),
			zap.Error(err))
		return false
	}
	return ok
}

// sweepDirectories removes staging and output directories whose builds are
// long gone, catching leftovers from crashes and retained staging trees.
func (j *Janitor) sweepDirectories() {
	for _, dir := range []string{
		filepath.Join(j.buildRoot, "staging"),
		filepath.Join(j.buildRoot, "output"),
	} {
		j.sweepDir(dir, j.config.RetentionWindow)
	}
}

func (j *Janitor) sweepDir(dir string, maxAge time.Duration) {
	now := time.Now()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Warn("failed to read build directory", zap.String("dir", dir), zap.Error(err))
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			j.log.Warn("failed to stat build directory",
				zap.String("dir", entry.Name()),
				zap.Error(err))
			continue
		}

		if now.Sub(info.ModTime()) > maxAge {
			path := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				j.log.Error("failed to remove old build directory",
					zap.String("path", path),
					zap.Error(err))
			}
		}
	}
}
