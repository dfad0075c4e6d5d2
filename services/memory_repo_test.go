package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"tag-pulse/models"
)

// memoryRepo ist ein In-Memory-Double des AnalyticsRepository für Tests.
// Über die fail*-Felder lassen sich gezielt Teilabfragen fehlschlagen
// lassen.
type memoryRepo struct {
	tags      map[uint]*models.Tag
	articles  map[uint]*models.Article
	links     []models.ArticleTag
	snapshots map[string]*models.TagSnapshot
	runs      []models.PipelineRun

	failPages       bool
	failArticlesFor map[uint]bool
	failCountScored bool
	failTopTags     bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		tags:            map[uint]*models.Tag{},
		articles:        map[uint]*models.Article{},
		snapshots:       map[string]*models.TagSnapshot{},
		failArticlesFor: map[uint]bool{},
	}
}

func (m *memoryRepo) addTag(tag models.Tag) *models.Tag {
	t := tag
	m.tags[t.ID] = &t
	return &t
}

func (m *memoryRepo) addArticle(article models.Article, tagIDs ...uint) {
	a := article
	m.articles[a.ID] = &a
	for _, tagID := range tagIDs {
		m.links = append(m.links, models.ArticleTag{ArticleID: a.ID, TagID: tagID})
	}
}

func (m *memoryRepo) addSnapshot(snap models.TagSnapshot) {
	s := snap
	m.snapshots[snapshotKey(s.TagID, s.Date)] = &s
}

func snapshotKey(tagID uint, date time.Time) string {
	return fmt.Sprintf("%d|%s", tagID, date.UTC().Format("2006-01-02"))
}

func (m *memoryRepo) ActiveTagPage(ctx context.Context, offset, limit int) ([]models.Tag, error) {
	if m.failPages {
		return nil, errors.New("page fetch failed")
	}
	var active []models.Tag
	for _, t := range m.tags {
		if t.Active {
			active = append(active, *t)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	if offset >= len(active) {
		return []models.Tag{}, nil
	}
	end := offset + limit
	if end > len(active) {
		end = len(active)
	}
	return active[offset:end], nil
}

func (m *memoryRepo) TagByID(ctx context.Context, id uint) (*models.Tag, error) {
	t, ok := m.tags[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	tag := *t
	return &tag, nil
}

func (m *memoryRepo) UpdateTagAggregates(ctx context.Context, tagID uint, fields map[string]interface{}) error {
	t, ok := m.tags[tagID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := fields["total_usage_count"]; ok {
		t.TotalUsageCount = v.(int)
	}
	if v, ok := fields["views_count"]; ok {
		t.ViewsCount = v.(int)
	}
	if v, ok := fields["growth_rate"]; ok {
		t.GrowthRate = v.(float64)
	}
	if v, ok := fields["popularity_score"]; ok {
		t.PopularityScore = v.(float64)
	}
	if v, ok := fields["last_used_at"]; ok {
		t.LastUsedAt, _ = v.(*time.Time)
	}
	return nil
}

func (m *memoryRepo) articlesInWindow(tagID uint, from, to time.Time) []models.Article {
	var result []models.Article
	for _, link := range m.links {
		if link.TagID != tagID {
			continue
		}
		a := m.articles[link.ArticleID]
		if a == nil || a.Status != models.StatusPublished || a.PublishedAt == nil {
			continue
		}
		if a.PublishedAt.Before(from) || !a.PublishedAt.Before(to) {
			continue
		}
		result = append(result, *a)
	}
	return result
}

func (m *memoryRepo) PublishedArticlesForTag(ctx context.Context, tagID uint, from, to time.Time) ([]models.Article, error) {
	if m.failArticlesFor[tagID] {
		return nil, errors.New("article query failed")
	}
	return m.articlesInWindow(tagID, from, to), nil
}

func (m *memoryRepo) CountPublishedArticlesForTag(ctx context.Context, tagID uint, from, to time.Time) (int64, error) {
	return int64(len(m.articlesInWindow(tagID, from, to))), nil
}

func (m *memoryRepo) TopArticlesForTag(ctx context.Context, tagID uint, from time.Time, limit int) ([]models.Article, error) {
	articles := m.articlesInWindow(tagID, from, time.Now().AddDate(1, 0, 0))
	sort.Slice(articles, func(i, j int) bool { return articles[i].ViewsCount > articles[j].ViewsCount })
	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

func (m *memoryRepo) UpsertSnapshot(ctx context.Context, snap *models.TagSnapshot) error {
	key := snapshotKey(snap.TagID, snap.Date)
	if existing, ok := m.snapshots[key]; ok {
		existing.UsageCount = snap.UsageCount
		existing.ArticleCount = snap.ArticleCount
		existing.ViewsCount = snap.ViewsCount
		existing.GrowthFactor = snap.GrowthFactor
		existing.PopularityScore = snap.PopularityScore
		existing.UpdatedAt = time.Now()
		return nil
	}
	s := *snap
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.snapshots[key] = &s
	return nil
}

func (m *memoryRepo) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for key, snap := range m.snapshots {
		if snap.Date.Before(cutoff) {
			delete(m.snapshots, key)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryRepo) SnapshotsForTag(ctx context.Context, tagID uint, from time.Time) ([]models.TagSnapshot, error) {
	var snaps []models.TagSnapshot
	for _, snap := range m.snapshots {
		if snap.TagID == tagID && !snap.Date.Before(from) {
			snaps = append(snaps, *snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date.After(snaps[j].Date) })
	return snaps, nil
}

func (m *memoryRepo) CountSnapshotsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	for _, snap := range m.snapshots {
		if !snap.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) LatestSnapshot(ctx context.Context) (*models.TagSnapshot, error) {
	var latest *models.TagSnapshot
	for _, snap := range m.snapshots {
		if latest == nil || snap.CreatedAt.After(latest.CreatedAt) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	snap := *latest
	return &snap, nil
}

func (m *memoryRepo) CountTags(ctx context.Context) (int64, error) {
	return int64(len(m.tags)), nil
}

func (m *memoryRepo) CountActiveTags(ctx context.Context) (int64, error) {
	var count int64
	for _, t := range m.tags {
		if t.Active {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) CountScoredTags(ctx context.Context) (int64, error) {
	if m.failCountScored {
		return 0, errors.New("count query failed")
	}
	var count int64
	for _, t := range m.tags {
		if t.PopularityScore > 0 {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) TopTagsByScore(ctx context.Context, limit int) ([]models.Tag, error) {
	if m.failTopTags {
		return nil, errors.New("top tags query failed")
	}
	var tags []models.Tag
	for _, t := range m.tags {
		tags = append(tags, *t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].PopularityScore > tags[j].PopularityScore })
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}

func (m *memoryRepo) ActiveTagsByScore(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	for _, t := range m.tags {
		if t.Active {
			tags = append(tags, *t)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].PopularityScore > tags[j].PopularityScore })
	return tags, nil
}

func (m *memoryRepo) CreateRun(ctx context.Context, run *models.PipelineRun) error {
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memoryRepo) RecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	runs := append([]models.PipelineRun(nil), m.runs...)
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
