package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
	"github.com/iieono/make-via-backend-sub000/internal/store"
)

// Cache reuses artifacts of prior completed builds whose inputs hash the
// same. A hit costs one artifact copy instead of a full build.
type Cache struct {
	repo      Repository
	artifacts store.Store
	freshness time.Duration
	urlExpiry time.Duration
	log       *zap.Logger
}

func NewCache(repo Repository, artifacts store.Store, config *config.AppConfig, log *zap.Logger) *Cache {
	return &Cache{
		repo:      repo,
		artifacts: artifacts,
		freshness: config.Cache.FreshnessWindow,
		urlExpiry: config.Build.ArtifactExpiration,
		log:       log,
	}
}

// Lookup returns the newest completed build for the app/hash pair inside the
// freshness window, or nil on a miss. The record is not yet verified against
// the artifact store; callers follow up with ValidateArtifact.
func (c *Cache) Lookup(appID, hash string) (*Record, error) {
	since := time.Now().Add(-c.freshness)
	record, err := c.repo.LatestCompletedByHash(appID, hash, since)
	if err != nil {
		if errors.Is(err, ErrBuildNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up cached build: %w", err)
	}
	return record, nil
}

// ValidateArtifact checks that the artifact backing a cached record still
// exists. A record whose artifact vanished out of band is invalidated in
// place so every later lookup misses too.
func (c *Cache) ValidateArtifact(ctx context.Context, record *Record) bool {
	exists, err := c.artifacts.Exists(ctx, c.artifactPath(record))
	if err != nil {
		c.log.Warn("failed to check cached artifact",
			zap.String("build_id", record.BuildID),
			zap.Error(err))
		return false
	}
	if exists {
		return true
	}

	c.invalidate(record)
	return false
}

// Clone copies the source build's artifact to a path keyed by a fresh
// build_id and inserts a completed record pointing back at the source.
func (c *Cache) Clone(ctx context.Context, source *Record, userID, downloadName string) (*Record, error) {
	buildID := NewBuildID()
	srcPath := c.artifactPath(source)
	dstPath := store.ArtifactPath(source.AppID, buildID, source.BuildType.ArtifactExt())

	if err := c.artifacts.Copy(ctx, srcPath, dstPath); err != nil {
		if errors.Is(err, store.ErrArtifactNotFound) {
			c.invalidate(source)
		}
		return nil, fmt.Errorf("failed to copy cached artifact: %w", err)
	}

	url, err := c.artifacts.DownloadURL(ctx, dstPath, downloadName+source.BuildType.ArtifactExt(), c.urlExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign download url for cached artifact: %w", err)
	}

	now := time.Now()
	record := &Record{
		BuildID:           buildID,
		AppID:             source.AppID,
		UserID:            userID,
		BuildType:         source.BuildType,
		BuildMode:         source.BuildMode,
		TargetPlatform:    source.TargetPlatform,
		Status:            StatusCompleted,
		BuildHash:         source.BuildHash,
		BuildConfig:       source.BuildConfig,
		DownloadURL:       &url,
		CachedFromBuildID: &source.BuildID,
		CompletedAt:       &now,
	}
	if err := c.repo.CreateBuild(record); err != nil {
		return nil, fmt.Errorf("failed to create cloned build record: %w", err)
	}

	c.log.Info("served build from cache",
		zap.String("build_id", buildID),
		zap.String("cached_from", source.BuildID),
		zap.String("app_id", source.AppID))

	return record, nil
}

func (c *Cache) invalidate(record *Record) {
	ok, err := c.repo.Transition(record.BuildID,
		[]Status{StatusCompleted}, StatusFailed,
		map[string]any{
			"download_url":  nil,
			"error_message": "cached file missing",
		})
	if err != nil {
		c.log.Error("failed to invalidate cached build",
			zap.String("build_id", record.BuildID),
			zap.Error(err))
		return
	}
	if ok {
		c.log.Warn("cached artifact missing, invalidated build",
			zap.String("build_id", record.BuildID),
			zap.String("app_id", record.AppID))
	}
}

func (c *Cache) artifactPath(record *Record) string {
	return store.ArtifactPath(record.AppID, record.BuildID, record.BuildType.ArtifactExt())
}
