package models

import "time"

// Tag repräsentiert ein Schlagwort, das Artikeln zugeordnet werden kann.
// Die gecachten Aggregat-Spalten spiegeln immer das kanonische Fenster
// (30 Tage) des letzten erfolgreichen Pipeline-Laufs wider.
type Tag struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name   string `json:"name" gorm:"uniqueIndex;not null"`
	Active bool   `json:"active" gorm:"index;default:true"`

	// Redaktionell vergebene Gewichtung, 5 = neutral
	Priority int `json:"priority" gorm:"default:5"`

	// Gecachte Aggregate, werden ausschließlich von der Pipeline geschrieben
	TotalUsageCount int        `json:"total_usage_count" gorm:"default:0"`
	ViewsCount      int        `json:"views_count" gorm:"default:0"`
	GrowthRate      float64    `json:"growth_rate" gorm:"default:0"`
	PopularityScore float64    `json:"popularity_score" gorm:"index;default:0"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`

	Articles []Article `json:"articles,omitempty" gorm:"many2many:article_tags;"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Tag) TableName() string {
	return "tags"
}
