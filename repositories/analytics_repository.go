package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tag-pulse/models"
)

// AnalyticsRepository kapselt sämtliche Datenbankzugriffe der
// Popularity-Pipeline und des Health-Monitors. Die Pipeline hält den Store
// nie über mehrere logische Schritte hinweg; jede Methode ist ein einzelner
// Lese- oder Schreibzugriff.
type AnalyticsRepository interface {
	ActiveTagPage(ctx context.Context, offset, limit int) ([]models.Tag, error)
	TagByID(ctx context.Context, id uint) (*models.Tag, error)
	UpdateTagAggregates(ctx context.Context, tagID uint, fields map[string]interface{}) error

	PublishedArticlesForTag(ctx context.Context, tagID uint, from, to time.Time) ([]models.Article, error)
	CountPublishedArticlesForTag(ctx context.Context, tagID uint, from, to time.Time) (int64, error)
	TopArticlesForTag(ctx context.Context, tagID uint, from time.Time, limit int) ([]models.Article, error)

	UpsertSnapshot(ctx context.Context, snap *models.TagSnapshot) error
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	SnapshotsForTag(ctx context.Context, tagID uint, from time.Time) ([]models.TagSnapshot, error)
	CountSnapshotsSince(ctx context.Context, since time.Time) (int64, error)
	LatestSnapshot(ctx context.Context) (*models.TagSnapshot, error)

	CountTags(ctx context.Context) (int64, error)
	CountActiveTags(ctx context.Context) (int64, error)
	CountScoredTags(ctx context.Context) (int64, error)
	TopTagsByScore(ctx context.Context, limit int) ([]models.Tag, error)
	ActiveTagsByScore(ctx context.Context) ([]models.Tag, error)

	CreateRun(ctx context.Context, run *models.PipelineRun) error
	RecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository erstellt das GORM-Repository.
func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) ActiveTagPage(ctx context.Context, offset, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&tags).Error
	return tags, err
}

func (r *analyticsRepository) TagByID(ctx context.Context, id uint) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.WithContext(ctx).First(&tag, id).Error
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *analyticsRepository) UpdateTagAggregates(ctx context.Context, tagID uint, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.Tag{}).
		Where("id = ?", tagID).
		Updates(fields).Error
}

// publishedInWindow schränkt eine Artikel-Query auf veröffentlichte Artikel
// des Tags mit published_at in [from, to) ein.
func (r *analyticsRepository) publishedInWindow(ctx context.Context, tagID uint, from, to time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Article{}).
		Joins("JOIN article_tags ON article_tags.article_id = articles.id").
		Where("article_tags.tag_id = ?", tagID).
		Where("articles.status = ?", models.StatusPublished).
		Where("articles.published_at >= ? AND articles.published_at < ?", from, to)
}

func (r *analyticsRepository) PublishedArticlesForTag(ctx context.Context, tagID uint, from, to time.Time) ([]models.Article, error) {
	var articles []models.Article
	err := r.publishedInWindow(ctx, tagID, from, to).Find(&articles).Error
	return articles, err
}

func (r *analyticsRepository) CountPublishedArticlesForTag(ctx context.Context, tagID uint, from, to time.Time) (int64, error) {
	var count int64
	err := r.publishedInWindow(ctx, tagID, from, to).Count(&count).Error
	return count, err
}

func (r *analyticsRepository) TopArticlesForTag(ctx context.Context, tagID uint, from time.Time, limit int) ([]models.Article, error) {
	var articles []models.Article
	err := r.db.WithContext(ctx).
		Model(&models.Article{}).
		Joins("JOIN article_tags ON article_tags.article_id = articles.id").
		Where("article_tags.tag_id = ?", tagID).
		Where("articles.status = ?", models.StatusPublished).
		Where("articles.published_at >= ?", from).
		Order("articles.views_count desc").
		Limit(limit).
		Find(&articles).Error
	return articles, err
}

func (r *analyticsRepository) UpsertSnapshot(ctx context.Context, snap *models.TagSnapshot) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tag_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"usage_count", "article_count", "views_count",
			"growth_factor", "popularity_score", "updated_at",
		}),
	}).Create(snap).Error
}

func (r *analyticsRepository) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("date < ?", cutoff).
		Delete(&models.TagSnapshot{})
	return res.RowsAffected, res.Error
}

func (r *analyticsRepository) SnapshotsForTag(ctx context.Context, tagID uint, from time.Time) ([]models.TagSnapshot, error) {
	var snaps []models.TagSnapshot
	err := r.db.WithContext(ctx).
		Where("tag_id = ? AND date >= ?", tagID, from).
		Order("date desc").
		Find(&snaps).Error
	return snaps, err
}

func (r *analyticsRepository) CountSnapshotsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TagSnapshot{}).
		Where("created_at >= ?", since).
		Count(&count).Error
	return count, err
}

func (r *analyticsRepository) LatestSnapshot(ctx context.Context) (*models.TagSnapshot, error) {
	var snap models.TagSnapshot
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		First(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *analyticsRepository) CountTags(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Tag{}).Count(&count).Error
	return count, err
}

func (r *analyticsRepository) CountActiveTags(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Tag{}).
		Where("active = ?", true).
		Count(&count).Error
	return count, err
}

func (r *analyticsRepository) CountScoredTags(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Tag{}).
		Where("popularity_score > 0").
		Count(&count).Error
	return count, err
}

func (r *analyticsRepository) TopTagsByScore(ctx context.Context, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.WithContext(ctx).
		Order("popularity_score desc").
		Limit(limit).
		Find(&tags).Error
	return tags, err
}

func (r *analyticsRepository) ActiveTagsByScore(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("popularity_score desc").
		Find(&tags).Error
	return tags, err
}

func (r *analyticsRepository) CreateRun(ctx context.Context, run *models.PipelineRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *analyticsRepository) RecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	var runs []models.PipelineRun
	err := r.db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
