package build

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusBuilding  Status = "building"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// validTransitions is the full status machine. Terminal statuses only ever
// move to expired, and only the janitor performs that move.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusBuilding, StatusFailed},
	StatusBuilding:  {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusExpired, StatusFailed},
	StatusFailed:    {StatusExpired},
	StatusExpired:   {},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

type BuildType string

const (
	TypeAPK    BuildType = "apk"
	TypeAAB    BuildType = "aab"
	TypeIPA    BuildType = "ipa"
	TypeSource BuildType = "source"
)

type BuildMode string

const (
	ModeDebug   BuildMode = "debug"
	ModeRelease BuildMode = "release"
)

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// ArtifactExt returns the file extension produced for a build type.
func (t BuildType) ArtifactExt() string {
	switch t {
	case TypeAPK:
		return ".apk"
	case TypeAAB:
		return ".aab"
	case TypeIPA:
		return ".ipa"
	default:
		return ".tar.gz"
	}
}

// Record is a single build from request to artifact. Only the orchestrator
// mutates it; platform managers report through callbacks instead.
type Record struct {
	BuildID           string           `gorm:"primaryKey;column:build_id" json:"build_id"`
	AppID             string           `gorm:"index:idx_builds_app_hash,priority:1;not null" json:"app_id"`
	UserID            string           `gorm:"index;not null" json:"user_id"`
	BuildType         BuildType        `gorm:"not null" json:"build_type"`
	BuildMode         BuildMode        `gorm:"not null" json:"build_mode"`
	TargetPlatform    Platform         `gorm:"not null" json:"target_platform"`
	Status            Status           `gorm:"index;not null;default:queued" json:"status"`
	BuildHash         string           `gorm:"index:idx_builds_app_hash,priority:2;not null" json:"build_hash"`
	BuildConfig       snapshot.JSONMap `gorm:"type:jsonb" json:"build_config,omitempty"`
	DownloadURL       *string          `json:"download_url,omitempty"`
	ErrorMessage      *string          `json:"error_message,omitempty"`
	CachedFromBuildID *string          `gorm:"column:cached_from_build_id" json:"cached_from_build_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

func (Record) TableName() string {
	return "builds"
}

// Request is what the API layer hands to the orchestrator.
type Request struct {
	AppID          string         `json:"app_id"`
	BuildType      BuildType      `json:"build_type" binding:"required"`
	BuildMode      BuildMode      `json:"build_mode"`
	TargetPlatform Platform       `json:"target_platform"`
	BuildConfig    map[string]any `json:"build_config"`
}

// NewBuildID mints an opaque identifier, sortable by creation time.
func NewBuildID() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("build_%d_%s", time.Now().UnixMilli(), token)
}
