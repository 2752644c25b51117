package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Catalog wraps a gorm-backed SQLite database holding providers, models
// and settings. Unlike the Run/Task state store (which is process-local
// and volatile per spec.md §3), the catalog persists across restarts
// because providers and models are explicitly admin-mutable.
type Catalog struct {
	DB *gorm.DB
}

// Open creates or attaches to a SQLite database at path (use ":memory:"
// for tests) and runs the schema migration.
func Open(path string) (*Catalog, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL;")

	if err := db.AutoMigrate(&ProviderRow{}, &ModelRow{}, &ModelProviderRow{}, &AppSetting{}, &DailyRunStat{}); err != nil {
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}

	return &Catalog{DB: db}, nil
}

func (c *Catalog) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Provider is the in-process view of a Provider descriptor, decoded from
// the comma-separated columns ProviderRow stores on disk.
type Provider struct {
	ID                   string
	DisplayName          string
	Enabled              bool
	Priority             int
	Weight               int
	SupportsImageToVideo bool
	SupportsPro          bool
	SupportedDurations   []int
	SupportedResolutions []string
}

func (p ProviderRow) toProvider() Provider {
	return Provider{
		ID:                   p.ID,
		DisplayName:          p.DisplayName,
		Enabled:              p.Enabled,
		Priority:             p.Priority,
		Weight:               p.Weight,
		SupportsImageToVideo: p.SupportsImageToVideo,
		SupportsPro:          p.SupportsPro,
		SupportedDurations:   parseIntCSV(p.SupportedDurationsCSV),
		SupportedResolutions: splitCSV(p.SupportedResolutions),
	}
}

// Model is the in-process view of a Model with its ordered provider map.
type Model struct {
	ID          string
	DisplayName string
	Description string
	Enabled     bool
	// ProviderOrder preserves insertion order; ProviderModelIDs maps
	// provider id to its ordered list of provider-specific model ids.
	ProviderOrder    []string
	ProviderModelIDs map[string][]string
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntCSV(s string) []int {
	parts := splitCSV(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func joinIntCSV(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// ListProviders returns every provider, not filtered by enabled state.
func (c *Catalog) ListProviders() ([]Provider, error) {
	var rows []ProviderRow
	if err := c.DB.Order("priority asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("catalog: list providers: %w", err)
	}
	out := make([]Provider, len(rows))
	for i, r := range rows {
		out[i] = r.toProvider()
	}
	return out, nil
}

func (c *Catalog) GetProvider(id string) (Provider, bool, error) {
	var row ProviderRow
	err := c.DB.First(&row, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Provider{}, false, nil
		}
		return Provider{}, false, fmt.Errorf("catalog: get provider: %w", err)
	}
	return row.toProvider(), true, nil
}

// SetProviderEnabled toggles a provider's enabled flag (admin mutation).
func (c *Catalog) SetProviderEnabled(id string, enabled bool) error {
	return c.DB.Model(&ProviderRow{}).Where("id = ?", id).Update("enabled", enabled).Error
}

// SetProviderPriority updates a provider's routing priority.
func (c *Catalog) SetProviderPriority(id string, priority int) error {
	return c.DB.Model(&ProviderRow{}).Where("id = ?", id).Update("priority", priority).Error
}

// SetProviderWeight updates a provider's weighted-routing weight.
func (c *Catalog) SetProviderWeight(id string, weight int) error {
	return c.DB.Model(&ProviderRow{}).Where("id = ?", id).Update("weight", weight).Error
}

// GetModel loads a model and reassembles its ordered provider map from the
// child table.
func (c *Catalog) GetModel(id string) (Model, bool, error) {
	var row ModelRow
	err := c.DB.First(&row, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Model{}, false, nil
		}
		return Model{}, false, fmt.Errorf("catalog: get model: %w", err)
	}

	var edges []ModelProviderRow
	if err := c.DB.Where("model_id = ?", id).Order("ord asc").Find(&edges).Error; err != nil {
		return Model{}, false, fmt.Errorf("catalog: get model providers: %w", err)
	}

	m := Model{
		ID:               row.ID,
		DisplayName:      row.DisplayName,
		Description:      row.Description,
		Enabled:          row.Enabled,
		ProviderModelIDs: make(map[string][]string, len(edges)),
	}
	for _, e := range edges {
		m.ProviderOrder = append(m.ProviderOrder, e.ProviderID)
		m.ProviderModelIDs[e.ProviderID] = splitCSV(e.ProviderModelIDCSV)
	}
	return m, true, nil
}

func (c *Catalog) SetModelEnabled(id string, enabled bool) error {
	return c.DB.Model(&ModelRow{}).Where("id = ?", id).Update("enabled", enabled).Error
}

// UpdateModelProviderMap replaces the provider-model-id list for one edge
// of a model's provider map, appending a new edge at the end of the
// insertion order if one did not already exist.
func (c *Catalog) UpdateModelProviderMap(modelID, providerID string, providerModelIDs []string) error {
	if len(providerModelIDs) == 0 {
		return c.DB.Where("model_id = ? AND provider_id = ?", modelID, providerID).Delete(&ModelProviderRow{}).Error
	}

	var existing ModelProviderRow
	err := c.DB.First(&existing, "model_id = ? AND provider_id = ?", modelID, providerID).Error
	if err == nil {
		existing.ProviderModelIDCSV = strings.Join(providerModelIDs, ",")
		return c.DB.Save(&existing).Error
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("catalog: update model provider map: %w", err)
	}

	var maxOrd int64
	c.DB.Model(&ModelProviderRow{}).Where("model_id = ?", modelID).Count(&maxOrd)
	return c.DB.Create(&ModelProviderRow{
		ModelID:            modelID,
		ProviderID:         providerID,
		Ord:                int(maxOrd),
		ProviderModelIDCSV: strings.Join(providerModelIDs, ","),
	}).Error
}

// GetSetting/SetSetting back the admin-mutable AppSetting overrides that
// internal/config reads through to, taking precedence over env defaults.
func (c *Catalog) GetSetting(key string) (string, bool, error) {
	var row AppSetting
	err := c.DB.First(&row, "key = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Value, true, nil
}

func (c *Catalog) SetSetting(key, value string) error {
	row := AppSetting{Key: key, Value: value}
	return c.DB.Save(&row).Error
}

// RecordTaskOutcome upserts today's terminal task counters for the
// read-only stats surface.
func (c *Catalog) RecordTaskOutcome(status string) error {
	day := time.Now().UTC().Format("2006-01-02")
	var row DailyRunStat
	err := c.DB.FirstOrCreate(&row, DailyRunStat{Date: day}).Error
	if err != nil {
		return fmt.Errorf("catalog: record outcome: %w", err)
	}
	switch status {
	case "completed":
		row.Completed++
	case "download_failed":
		row.DownloadFailed++
	default:
		row.Failed++
	}
	return c.DB.Save(&row).Error
}

func (c *Catalog) DailyStats(days int) ([]DailyRunStat, error) {
	var rows []DailyRunStat
	err := c.DB.Order("date desc").Limit(days).Find(&rows).Error
	return rows, err
}

// Seed inserts the three providers and two models the original
// deployment shipped with, if the catalog is empty. Safe to call on
// every startup.
func Seed(c *Catalog) error {
	var count int64
	if err := c.DB.Model(&ProviderRow{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil // already seeded
	}

	providers := []ProviderRow{
		{ID: "sora_hk", DisplayName: "Sora.hk", Enabled: true, Priority: 10, Weight: 1,
			SupportsImageToVideo: true, SupportsPro: true,
			SupportedDurationsCSV: joinIntCSV([]int{10, 15, 25}), SupportedResolutions: "horizontal,vertical"},
		{ID: "openai", DisplayName: "OpenAI", Enabled: false, Priority: 20, Weight: 1,
			SupportsImageToVideo: true, SupportsPro: true,
			SupportedDurationsCSV: joinIntCSV([]int{4, 8, 12}), SupportedResolutions: "horizontal,vertical"},
		{ID: "aihubmix", DisplayName: "AI Hub Mix", Enabled: false, Priority: 30, Weight: 1,
			SupportsImageToVideo: true, SupportsPro: true,
			SupportedDurationsCSV: joinIntCSV([]int{4, 8, 12}), SupportedResolutions: "horizontal,vertical"},
	}
	if err := c.DB.Create(&providers).Error; err != nil {
		return fmt.Errorf("catalog: seed providers: %w", err)
	}

	models := []ModelRow{
		{ID: "sora2", DisplayName: "Sora2", Description: "Logical model for standard generation", Enabled: true},
		{ID: "sora2pro", DisplayName: "Sora2 Pro", Description: "Logical model for pro generation", Enabled: true},
	}
	if err := c.DB.Create(&models).Error; err != nil {
		return fmt.Errorf("catalog: seed models: %w", err)
	}

	edges := []ModelProviderRow{
		{ModelID: "sora2", ProviderID: "sora_hk", Ord: 0, ProviderModelIDCSV: "sora2"},
		{ModelID: "sora2", ProviderID: "openai", Ord: 1, ProviderModelIDCSV: "sora-2,sora-2-2025-12-08,sora-2-2025-10-06"},
		{ModelID: "sora2", ProviderID: "aihubmix", Ord: 2, ProviderModelIDCSV: "sora-2,web-sora-2"},
		{ModelID: "sora2pro", ProviderID: "sora_hk", Ord: 0, ProviderModelIDCSV: "sora2-pro"},
		{ModelID: "sora2pro", ProviderID: "openai", Ord: 1, ProviderModelIDCSV: "sora-2-pro,sora-2-pro-2025-10-06"},
		{ModelID: "sora2pro", ProviderID: "aihubmix", Ord: 2, ProviderModelIDCSV: "sora-2-pro,web-sora-2-pro"},
	}
	if err := c.DB.Create(&edges).Error; err != nil {
		return fmt.Errorf("catalog: seed model providers: %w", err)
	}
	return nil
}
