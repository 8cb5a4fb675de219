package snapshot

import (
	"errors"

	"gorm.io/gorm"
)

var ErrAppNotFound = errors.New("app not found")

// Provider resolves the current snapshot of an app.
type Provider interface {
	Snapshot(appID string) (*AppSnapshot, error)
}

type provider struct {
	db *gorm.DB
}

func NewProvider(db *gorm.DB) Provider {
	return &provider{db: db}
}

func (p *provider) Snapshot(appID string) (*AppSnapshot, error) {
	var app App
	if err := p.db.Where("id = ?", appID).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, err
	}

	var pages []Page
	if err := p.db.Where("app_id = ?", appID).Order("id").Find(&pages).Error; err != nil {
		return nil, err
	}

	var components []Component
	if len(pages) > 0 {
		pageIDs := make([]string, 0, len(pages))
		for _, page := range pages {
			pageIDs = append(pageIDs, page.ID)
		}
		if err := p.db.Where("page_id IN ?", pageIDs).Order("id").Find(&components).Error; err != nil {
			return nil, err
		}
	}

	return &AppSnapshot{
		App:        &app,
		Pages:      pages,
		Components: components,
	}, nil
}
