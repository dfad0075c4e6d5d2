package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tag-pulse/models"
)

func newTestHealthService(repo *memoryRepo) *HealthService {
	return NewHealthService(repo, zap.NewNop())
}

func TestSystemReportCoverage(t *testing.T) {
	repo := newMemoryRepo()
	for i := uint(1); i <= 10; i++ {
		tag := models.Tag{ID: i, Name: string(rune('a' + i)), Active: true}
		if i <= 4 {
			tag.PopularityScore = float64(i)
		}
		repo.addTag(tag)
	}

	report := newTestHealthService(repo).SystemReport(context.Background())

	assert.Equal(t, int64(10), report.TotalTags)
	assert.Equal(t, int64(10), report.ActiveTags)
	assert.Equal(t, int64(4), report.ScoredTags)
	assert.Equal(t, "40.0%", report.Health.Coverage)
	assert.Equal(t, "healthy", report.Health.Database)
	assert.Equal(t, "active", report.Health.Analytics)
}

func TestSystemReportEmptySystem(t *testing.T) {
	repo := newMemoryRepo()

	report := newTestHealthService(repo).SystemReport(context.Background())

	assert.Equal(t, "stopped", report.Health.Analytics)
	assert.Equal(t, "not-started", report.Health.CronJob)
	assert.Equal(t, "0.0%", report.Health.Coverage)
	assert.Empty(t, report.TopTags)
}

func TestSystemReportCronStatus(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSnapshot(models.TagSnapshot{
		TagID:     1,
		Date:      startOfDay(time.Now().UTC()),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	})
	report := newTestHealthService(repo).SystemReport(context.Background())
	assert.Equal(t, "active", report.Health.CronJob)

	repo = newMemoryRepo()
	repo.addSnapshot(models.TagSnapshot{
		TagID:     1,
		Date:      startOfDay(time.Now().UTC().AddDate(0, 0, -1)),
		CreatedAt: time.Now().Add(-13 * time.Hour),
	})
	report = newTestHealthService(repo).SystemReport(context.Background())
	assert.Equal(t, "delayed", report.Health.CronJob)
}

func TestSystemReportQueryIsolation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addTag(models.Tag{ID: 1, Name: "a", Active: true, PopularityScore: 3})
	repo.failCountScored = true
	repo.failTopTags = true

	report := newTestHealthService(repo).SystemReport(context.Background())

	// Fehlgeschlagene Teilabfragen fallen auf Nullwerte zurück, der Rest
	// bleibt intakt
	assert.Equal(t, int64(1), report.TotalTags)
	assert.Equal(t, int64(1), report.ActiveTags)
	assert.Equal(t, int64(0), report.ScoredTags)
	assert.Empty(t, report.TopTags)
	assert.Equal(t, "healthy", report.Health.Database)
	assert.Equal(t, "stopped", report.Health.Analytics)
}

func TestSystemReportTopTags(t *testing.T) {
	repo := newMemoryRepo()
	for i := uint(1); i <= 12; i++ {
		repo.addTag(models.Tag{ID: i, Name: "t", Active: true, PopularityScore: float64(i)})
	}

	report := newTestHealthService(repo).SystemReport(context.Background())

	require.Len(t, report.TopTags, 10)
	assert.Equal(t, 12.0, report.TopTags[0].Score)
	assert.Equal(t, 3.0, report.TopTags[9].Score)
}

func TestTagReportNotFound(t *testing.T) {
	repo := newMemoryRepo()
	_, err := newTestHealthService(repo).TagReport(context.Background(), 42, 30)
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestTagReport(t *testing.T) {
	repo := newMemoryRepo()
	repo.addTag(models.Tag{ID: 1, Name: "klima", Active: true, PopularityScore: 7.5})

	today := startOfDay(time.Now().UTC())
	repo.addSnapshot(models.TagSnapshot{TagID: 1, Date: today, UsageCount: 3})
	repo.addSnapshot(models.TagSnapshot{TagID: 1, Date: today.AddDate(0, 0, -2), UsageCount: 2})
	repo.addSnapshot(models.TagSnapshot{TagID: 1, Date: today.AddDate(0, 0, -60), UsageCount: 9})

	repo.addArticle(publishedArticle(10, time.Now().AddDate(0, 0, -1), 30), 1)
	repo.addArticle(publishedArticle(11, time.Now().AddDate(0, 0, -3), 10), 1)
	repo.addArticle(publishedArticle(12, time.Now().AddDate(0, 0, -5), 20), 1)

	// periodDays 0 fällt auf den Default von 30 Tagen zurück
	report, err := newTestHealthService(repo).TagReport(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, "klima", report.Tag.Name)
	assert.Equal(t, "30 days", report.Summary.Period)

	// Timeline neueste zuerst, Zeile außerhalb des Fensters fehlt
	require.Len(t, report.Timeline, 2)
	assert.Equal(t, 3, report.Timeline[0].UsageCount)
	assert.Equal(t, 2, report.Timeline[1].UsageCount)

	// Top-Artikel nach Views absteigend
	require.Len(t, report.TopArticles, 3)
	assert.Equal(t, 30, report.TopArticles[0].ViewsCount)
	assert.Equal(t, 2, report.Summary.SnapshotCount)
	assert.Equal(t, 3, report.Summary.ArticleCount)
	assert.Equal(t, 20.0, report.Summary.AverageViews)
}
