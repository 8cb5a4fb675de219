package snapshot

import (
	"time"
)

// App, Page and Component mirror the tables owned by the app CRUD layer.
// This service only ever reads them.

type App struct {
	ID           string  `gorm:"primaryKey" json:"id"`
	UserID       string  `gorm:"index;not null" json:"user_id"`
	Name         string  `gorm:"not null" json:"name"`
	PackageName  string  `gorm:"not null" json:"package_name"`
	VersionName  string  `json:"version_name"`
	VersionCode  int     `json:"version_code"`
	Icon         string  `json:"icon"`
	Capabilities JSONMap `gorm:"type:jsonb" json:"capabilities"`
	Config       JSONMap `gorm:"type:jsonb" json:"config"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `json:"updated_at"`
}

func (App) TableName() string {
	return "apps"
}

type Page struct {
	ID        string  `gorm:"primaryKey" json:"id"`
	AppID     string  `gorm:"index;not null" json:"app_id"`
	Name      string  `json:"name"`
	Route     string  `gorm:"not null" json:"route"`
	Config    JSONMap `gorm:"type:jsonb" json:"config"`
	SortOrder int     `json:"sort_order"`
	CreatedAt time.Time
	UpdatedAt time.Time `json:"updated_at"`
}

func (Page) TableName() string {
	return "app_pages"
}

type Component struct {
	ID         string  `gorm:"primaryKey" json:"id"`
	PageID     string  `gorm:"index;not null" json:"page_id"`
	Type       string  `gorm:"not null" json:"type"`
	Data       JSONMap `gorm:"type:jsonb" json:"data"`
	Properties JSONMap `gorm:"type:jsonb" json:"properties"`
	SortOrder  int     `json:"sort_order"`
	CreatedAt  time.Time
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Component) TableName() string {
	return "app_components"
}

// AppSnapshot is the frozen view of an app handed to hashing and generation.
type AppSnapshot struct {
	App        *App
	Pages      []Page
	Components []Component
}
