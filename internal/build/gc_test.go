package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iieono/make-via-backend-sub000/internal/config"
	"github.com/iieono/make-via-backend-sub000/internal/store"
)

func newTestJanitor(t *testing.T) (*Janitor, *mockRepository, store.Store, *config.AppConfig) {
	logger := newTestLogger(t)
	cfg := newTestConfig(t)

	artifacts, err := store.NewLocalStore(&cfg.Store.Local, logger)
	require.NoError(t, err)

	repo := newMockRepository()
	janitor, err := NewJanitor(cfg, repo, artifacts, NewMetrics(prom.NewRegistry()), logger)
	require.NoError(t, err)

	return janitor, repo, artifacts, cfg
}

func seedBuild(t *testing.T, repo *mockRepository, artifacts store.Store, appID, buildID string, status Status, age time.Duration) *Record {
	t.Helper()

	record := &Record{
		BuildID:        buildID,
		AppID:          appID,
		UserID:         "user-1",
		BuildType:      TypeAPK,
		BuildMode:      ModeDebug,
		TargetPlatform: PlatformAndroid,
		Status:         status,
		BuildHash:      "hash-1",
		CreatedAt:      time.Now().Add(-age),
	}
	if status == StatusCompleted {
		url := "http://localhost:8080/download/" + buildID
		record.DownloadURL = &url

		src := filepath.Join(t.TempDir(), "artifact.apk")
		require.NoError(t, os.WriteFile(src, []byte("apk-bytes"), 0644))
		storedPath := store.ArtifactPath(appID, buildID, ".apk")
		require.NoError(t, artifacts.Upload(context.Background(), src, storedPath))
	}
	require.NoError(t, repo.CreateBuild(record))
	return record
}

func TestJanitor_KeepsNewestCompletedPerApp(t *testing.T) {
	janitor, repo, artifacts, _ := newTestJanitor(t)
	ctx := context.Background()

	// Eight stale completed builds, oldest first. Retention keeps five.
	var ids []string
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("build_%d_aaaaaaaaaaaa", i)
		seedBuild(t, repo, artifacts, "app-1", id, StatusCompleted, time.Duration(40-i)*24*time.Hour)
		ids = append(ids, id)
	}

	expired, err := janitor.CleanupOldBuilds(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, expired)

	for _, id := range ids[:3] {
		record, err := repo.GetBuild(id)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, record.Status, "oldest builds must be expired")
		assert.Nil(t, record.DownloadURL)

		exists, err := artifacts.Exists(ctx, store.ArtifactPath("app-1", id, ".apk"))
		require.NoError(t, err)
		assert.False(t, exists, "expired artifacts must be deleted")
	}

	for _, id := range ids[3:] {
		record, err := repo.GetBuild(id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, record.Status, "newest five must survive")
		assert.NotNil(t, record.DownloadURL)

		exists, err := artifacts.Exists(ctx, store.ArtifactPath("app-1", id, ".apk"))
		require.NoError(t, err)
		assert.True(t, exists)
	}
}

func TestJanitor_FreshBuildsCountTowardRetention(t *testing.T) {
	janitor, repo, artifacts, _ := newTestJanitor(t)

	stale := []string{
		"build_0_aaaaaaaaaaaa",
		"build_1_aaaaaaaaaaaa",
		"build_2_aaaaaaaaaaaa",
		"build_3_aaaaaaaaaaaa",
	}
	for i, id := range stale {
		seedBuild(t, repo, artifacts, "app-1", id, StatusCompleted, time.Duration(40-i)*24*time.Hour)
	}
	for i := 0; i < 3; i++ {
		seedBuild(t, repo, artifacts, "app-1", fmt.Sprintf("build_%d_bbbbbbbbbbbb", i), StatusCompleted, time.Duration(3-i)*time.Hour)
	}

	expired, err := janitor.CleanupOldBuilds(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, expired, "three fresh plus two newest stale make up the keep set")

	for _, id := range stale[:2] {
		record, err := repo.GetBuild(id)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, record.Status)
	}
	for _, id := range stale[2:] {
		record, err := repo.GetBuild(id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, record.Status)
	}
}

func TestJanitor_ExpiresStaleFailedBuilds(t *testing.T) {
	janitor, repo, artifacts, _ := newTestJanitor(t)

	seedBuild(t, repo, artifacts, "app-1", "build_1_failed000000", StatusFailed, 40*24*time.Hour)
	seedBuild(t, repo, artifacts, "app-1", "build_2_failed000000", StatusFailed, time.Hour)

	expired, err := janitor.CleanupOldBuilds(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	old, err := repo.GetBuild("build_1_failed000000")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, old.Status)

	recent, err := repo.GetBuild("build_2_failed000000")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, recent.Status)
}

func TestJanitor_ScopedToApp(t *testing.T) {
	janitor, repo, artifacts, _ := newTestJanitor(t)

	seedBuild(t, repo, artifacts, "app-1", "build_1_app1failed00", StatusFailed, 40*24*time.Hour)
	seedBuild(t, repo, artifacts, "app-2", "build_1_app2failed00", StatusFailed, 40*24*time.Hour)

	expired, err := janitor.CleanupOldBuilds(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	other, err := repo.GetBuild("build_1_app2failed00")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, other.Status, "other apps are out of scope")
}

func TestJanitor_SweepsAbandonedDirectories(t *testing.T) {
	janitor, _, _, cfg := newTestJanitor(t)

	old := time.Now().Add(-40 * 24 * time.Hour)
	stagingOld := filepath.Join(cfg.Build.RootDir, "staging", "build_1_old000000000")
	outputOld := filepath.Join(cfg.Build.RootDir, "output", "build_1_old000000000")
	stagingFresh := filepath.Join(cfg.Build.RootDir, "staging", "build_2_fresh0000000")

	for _, dir := range []string{stagingOld, outputOld, stagingFresh} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}
	require.NoError(t, os.Chtimes(stagingOld, old, old))
	require.NoError(t, os.Chtimes(outputOld, old, old))

	janitor.sweepDirectories()

	assert.NoDirExists(t, stagingOld)
	assert.NoDirExists(t, outputOld)
	assert.DirExists(t, stagingFresh)
}

func TestJanitor_StartStop(t *testing.T) {
	janitor, _, _, _ := newTestJanitor(t)

	require.NoError(t, janitor.Start())
	require.NoError(t, janitor.Stop())
}
