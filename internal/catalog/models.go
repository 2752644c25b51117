// Package catalog persists the admin-mutable Provider and Model records
// plus application settings in a small SQLite database, mirroring the
// gorm-backed catalog storage pattern used throughout this codebase.
package catalog

import "gorm.io/gorm"

// ProviderRow is the persisted form of a Provider descriptor (spec §3).
// Capability sets are stored as comma-separated strings since gorm has no
// native set type and the values are small closed vocabularies.
type ProviderRow struct {
	ID                    string         `gorm:"primaryKey" json:"id"`
	DisplayName           string         `json:"display_name"`
	Enabled               bool           `gorm:"default:true" json:"enabled"`
	Priority              int            `gorm:"index" json:"priority"`
	Weight                int            `gorm:"default:1" json:"weight"`
	SupportsImageToVideo  bool           `json:"supports_image_to_video"`
	SupportsPro           bool           `json:"supports_pro"`
	SupportedDurationsCSV string         `json:"supported_durations_csv"`
	SupportedResolutions  string         `json:"supported_resolutions_csv"`
	CreatedAt             string         `json:"created_at"`
	UpdatedAt             string         `json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ProviderRow) TableName() string { return "providers" }

// ModelRow is the persisted form of a Model (spec §3). The provider map is
// stored in a separate child table (ModelProviderRow) to preserve input
// order deterministically, which the router's tie-breaking rule depends on.
type ModelRow struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	DisplayName string         `json:"display_name"`
	Description string         `json:"description"`
	Enabled     bool           `gorm:"default:true" json:"enabled"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ModelRow) TableName() string { return "models" }

// ModelProviderRow is one (model, provider) edge with an ordered list of
// provider-specific model identifiers. Ord preserves insertion order since
// SQL result order is otherwise unspecified without an explicit column.
type ModelProviderRow struct {
	ModelID           string `gorm:"primaryKey" json:"model_id"`
	ProviderID        string `gorm:"primaryKey" json:"provider_id"`
	Ord               int    `gorm:"index" json:"ord"`
	ProviderModelIDCSV string `json:"provider_model_id_csv"`
}

func (ModelProviderRow) TableName() string { return "model_providers" }

// AppSetting stores admin-mutable key/value overrides (concurrency
// ceilings, polling and timeout tunables, provider rate limits) that
// take precedence over environment defaults.
type AppSetting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (AppSetting) TableName() string { return "app_settings" }

// DailyRunStat tracks per-day terminal task counts for the read-only
// statistics surface; purely additive observability over the run engine.
type DailyRunStat struct {
	Date           string `gorm:"primaryKey"`
	Completed      int64  `gorm:"default:0"`
	Failed         int64  `gorm:"default:0"`
	DownloadFailed int64  `gorm:"default:0"`
}

func (DailyRunStat) TableName() string { return "daily_run_stats" }
