package models

import "time"

// ArticleTag ist die Join-Zeile zwischen Artikel und Tag.
type ArticleTag struct {
	ArticleID uint      `json:"article_id" gorm:"primaryKey"`
	TagID     uint      `json:"tag_id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (ArticleTag) TableName() string {
	return "article_tags"
}
