package models

import "time"

// Artikel-Status im redaktionellen Workflow
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Article repräsentiert einen Content-Artikel des CMS. Die Pipeline liest
// Artikel nur; angelegt und gepflegt werden sie von der Redaktion.
type Article struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title string `json:"title" gorm:"not null"`
	Slug  string `json:"slug,omitempty" gorm:"uniqueIndex"`

	Status      string     `json:"status" gorm:"index;default:'draft'"` // draft, published, archived
	PublishedAt *time.Time `json:"published_at,omitempty" gorm:"index"`

	// Analytics
	ViewsCount int `json:"views_count" gorm:"default:0"`

	Tags []Tag `json:"tags,omitempty" gorm:"many2many:article_tags;"`
}

// TableName gibt explizit den Tabellennamen an.
func (Article) TableName() string {
	return "articles"
}
