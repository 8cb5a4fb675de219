package build

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type mockRepository struct {
	builds map[string]*Record
	mu     sync.RWMutex
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		builds: make(map[string]*Record),
	}
}

func (r *mockRepository) CreateBuild(record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builds[record.BuildID]; exists {
		return fmt.Errorf("duplicate build id: %s", record.BuildID)
	}

	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
		record.CreatedAt = stored.CreatedAt
	}
	r.builds[record.BuildID] = &stored
	return nil
}

func (r *mockRepository) GetBuild(buildID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.builds[buildID]
	if !exists {
		return nil, ErrBuildNotFound
	}

	clone := *record
	return &clone, nil
}

func (r *mockRepository) ListByApp(appID string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []Record
	for _, record := range r.builds {
		if record.AppID == appID {
			records = append(records, *record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (r *mockRepository) Transition(buildID string, from []Status, to Status, updates map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.builds[buildID]
	if !exists {
		return false, nil
	}

	eligible := false
	for _, status := range from {
		if record.Status == status {
			eligible = true
			break
		}
	}
	if !eligible {
		return false, nil
	}

	record.Status = to
	for column, value := range updates {
		applyColumn(record, column, value)
	}
	return true, nil
}

func applyColumn(record *Record, column string, value any) {
	switch column {
	case "download_url":
		record.DownloadURL = toStringPtr(value)
	case "error_message":
		record.ErrorMessage = toStringPtr(value)
	case "cached_from_build_id":
		record.CachedFromBuildID = toStringPtr(value)
	case "completed_at":
		if t, ok := value.(time.Time); ok {
			record.CompletedAt = &t
		} else {
			record.CompletedAt = nil
		}
	}
}

func toStringPtr(value any) *string {
	switch v := value.(type) {
	case string:
		return &v
	case *string:
		return v
	default:
		return nil
	}
}

func (r *mockRepository) LatestCompletedByHash(appID, hash string, since time.Time) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *Record
	for _, record := range r.builds {
		if record.AppID != appID || record.BuildHash != hash {
			continue
		}
		if record.Status != StatusCompleted || record.DownloadURL == nil {
			continue
		}
		if record.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || record.CreatedAt.After(newest.CreatedAt) {
			newest = record
		}
	}
	if newest == nil {
		return nil, ErrBuildNotFound
	}

	clone := *newest
	return &clone, nil
}

func (r *mockRepository) StaleBuilds(status Status, appID string, cutoff time.Time) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []Record
	for _, record := range r.builds {
		if record.Status != status {
			continue
		}
		if appID != "" && record.AppID != appID {
			continue
		}
		if !record.CreatedAt.Before(cutoff) {
			continue
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (r *mockRepository) NewestCompletedIDs(appID string, n int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var completed []*Record
	for _, record := range r.builds {
		if record.AppID == appID && record.Status == StatusCompleted {
			completed = append(completed, record)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CreatedAt.After(completed[j].CreatedAt)
	})

	var ids []string
	for i := 0; i < len(completed) && i < n; i++ {
		ids = append(ids, completed[i].BuildID)
	}
	return ids, nil
}
