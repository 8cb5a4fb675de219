package build

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrBuildNotFound = errors.New("build not found")
)

type Repository interface {
	CreateBuild(record *Record) error
	GetBuild(buildID string) (*Record, error)
	ListByApp(appID string) ([]Record, error)

	// Transition atomically moves a build into status to, applying updates
	// in the same statement. It reports false when the build was not in any
	// of the from statuses, which is how racing triggers lose.
	Transition(buildID string, from []Status, to Status, updates map[string]any) (bool, error)

	// LatestCompletedByHash returns the newest completed build for the
	// app/hash pair created after since that still has a download URL.
	LatestCompletedByHash(appID, hash string, since time.Time) (*Record, error)

	// StaleBuilds returns builds in status created before cutoff. An empty
	// appID spans all apps.
	StaleBuilds(status Status, appID string, cutoff time.Time) ([]Record, error)

	// NewestCompletedIDs returns the build IDs of the n most recent
	// completed builds of an app.
	NewestCompletedIDs(appID string, n int) ([]string, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateBuild(record *Record) error {
	return r.db.Create(record).Error
}

func (r *repository) GetBuild(buildID string) (*Record, error) {
	var record Record
	if err := r.db.Where("build_id = ?", buildID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBuildNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByApp(appID string) ([]Record, error) {
	var records []Record
	if err := r.db.Where("app_id = ?", appID).Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) Transition(buildID string, from []Status, to Status, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}

	res := r.db.Model(&Record{}).
		Where("build_id = ? AND status IN ?", buildID, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) LatestCompletedByHash(appID, hash string, since time.Time) (*Record, error) {
	var record Record
	err := r.db.
		Where("app_id = ? AND build_hash = ? AND status = ? AND download_url IS NOT NULL AND created_at >= ?",
			appID, hash, StatusCompleted, since).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBuildNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) StaleBuilds(status Status, appID string, cutoff time.Time) ([]Record, error) {
	query := r.db.Where("status = ? AND created_at < ?", status, cutoff)
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}

	var records []Record
	if err := query.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) NewestCompletedIDs(appID string, n int) ([]string, error) {
	var ids []string
	err := r.db.Model(&Record{}).
		Where("app_id = ? AND status = ?", appID, StatusCompleted).
		Order("created_at DESC").
		Limit(n).
		Pluck("build_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
