package models

import "time"

// TagSnapshot ist die tägliche Zeitreihen-Zeile pro Tag. Eindeutig über
// (tag_id, date); ein erneuter Lauf am selben Tag überschreibt die Zeile,
// statt sie zu duplizieren.
type TagSnapshot struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TagID uint      `json:"tag_id" gorm:"uniqueIndex:idx_tag_snapshot_day;not null"`
	Tag   *Tag      `json:"tag,omitempty" gorm:"foreignKey:TagID"`
	Date  time.Time `json:"date" gorm:"uniqueIndex:idx_tag_snapshot_day;not null"` // auf Tagesbeginn (UTC) genullt

	UsageCount      int     `json:"usage_count" gorm:"default:0"`
	ArticleCount    int     `json:"article_count" gorm:"default:0"` // Spiegel von usage_count
	ViewsCount      int     `json:"views_count" gorm:"default:0"`
	GrowthFactor    float64 `json:"growth_factor" gorm:"default:0"`
	PopularityScore float64 `json:"popularity_score" gorm:"default:0"`

	// Werden von nachgelagertem Tracking gefüllt, nicht von dieser Pipeline
	ClicksCount  int `json:"clicks_count" gorm:"default:0"`
	Interactions int `json:"interactions" gorm:"default:0"`
}

// TableName gibt explizit den Tabellennamen an.
func (TagSnapshot) TableName() string {
	return "tag_snapshots"
}
