package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tag-pulse/models"
	"tag-pulse/repositories"
)

// ErrTagNotFound signalisiert eine unbekannte Tag-ID im Deep-Dive.
// Erwarteter Zustand, kein fataler Fehler.
var ErrTagNotFound = errors.New("tag not found")

// TopTagEntry ist eine Zeile der Top-Performer-Liste im Systemreport.
type TopTagEntry struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	Score      float64    `json:"score"`
	GrowthRate float64    `json:"growth_rate"`
	UsageCount int        `json:"usage_count"`
	ViewsCount int        `json:"views_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// HealthBlock fasst die abgeleiteten Statusfelder zusammen.
type HealthBlock struct {
	Database  string `json:"database"`  // healthy, error
	Analytics string `json:"analytics"` // active, stopped
	CronJob   string `json:"cronJob"`   // active, delayed, not-started
	Coverage  string `json:"coverage"`  // z.B. "40.0%"
}

// SystemReport ist der Diagnose-Report über die gesamte Pipeline.
type SystemReport struct {
	TotalTags       int64         `json:"total_tags"`
	ActiveTags      int64         `json:"active_tags"`
	ScoredTags      int64         `json:"scored_tags"`
	RecentSnapshots int64         `json:"recent_snapshots"`
	TopTags         []TopTagEntry `json:"top_tags"`
	Health          HealthBlock   `json:"health"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// TagReportSummary bündelt die Kennzahlen des Tag-Deep-Dives.
type TagReportSummary struct {
	Period        string  `json:"period"`
	SnapshotCount int     `json:"snapshot_count"`
	ArticleCount  int     `json:"article_count"`
	AverageViews  float64 `json:"average_views"`
}

// TagReport ist der Deep-Dive-Report für ein einzelnes Tag.
type TagReport struct {
	Tag         *models.Tag          `json:"tag"`
	Timeline    []models.TagSnapshot `json:"timeline"` // neueste zuerst
	TopArticles []models.Article     `json:"top_articles"`
	Summary     TagReportSummary     `json:"summary"`
}

// HealthService beantwortet Diagnose-Anfragen unabhängig vom
// Pipeline-Lauf. Jede Teilabfrage ist isoliert: schlägt eine fehl, fällt
// nur ihr Feld auf einen sicheren Nullwert zurück.
type HealthService struct {
	Repo   repositories.AnalyticsRepository
	Logger *zap.Logger
}

// NewHealthService erstellt eine neue Instanz des HealthService.
func NewHealthService(repo repositories.AnalyticsRepository, logger *zap.Logger) *HealthService {
	return &HealthService{Repo: repo, Logger: logger}
}

// cronStaleAfter: jenseits dieser Frist gilt der letzte Snapshot als verspätet.
const cronStaleAfter = 12 * time.Hour

// SystemReport erstellt den Gesamt-Diagnose-Report.
func (h *HealthService) SystemReport(ctx context.Context) *SystemReport {
	now := time.Now()
	report := &SystemReport{
		TopTags:     []TopTagEntry{},
		GeneratedAt: now,
	}
	report.Health.Database = "healthy"

	total, err := h.Repo.CountTags(ctx)
	if err != nil {
		h.Logger.Error("Tag-Zählung fehlgeschlagen", zap.Error(err))
		report.Health.Database = "error"
	} else {
		report.TotalTags = total
	}

	active, err := h.Repo.CountActiveTags(ctx)
	if err != nil {
		h.Logger.Error("Zählung aktiver Tags fehlgeschlagen", zap.Error(err))
	} else {
		report.ActiveTags = active
	}

	scored, err := h.Repo.CountScoredTags(ctx)
	if err != nil {
		h.Logger.Error("Zählung bewerteter Tags fehlgeschlagen", zap.Error(err))
	} else {
		report.ScoredTags = scored
	}

	recent, err := h.Repo.CountSnapshotsSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		h.Logger.Error("Snapshot-Zählung fehlgeschlagen", zap.Error(err))
	} else {
		report.RecentSnapshots = recent
	}

	top, err := h.Repo.TopTagsByScore(ctx, 10)
	if err != nil {
		h.Logger.Error("Top-Tags konnten nicht geladen werden", zap.Error(err))
	} else {
		for i := range top {
			report.TopTags = append(report.TopTags, TopTagEntry{
				ID:         top[i].ID,
				Name:       top[i].Name,
				Score:      top[i].PopularityScore,
				GrowthRate: top[i].GrowthRate,
				UsageCount: top[i].TotalUsageCount,
				ViewsCount: top[i].ViewsCount,
				LastUsedAt: top[i].LastUsedAt,
			})
		}
	}

	if report.ScoredTags > 0 {
		report.Health.Analytics = "active"
	} else {
		report.Health.Analytics = "stopped"
	}

	report.Health.CronJob = h.cronStatus(ctx, now)

	if report.ActiveTags > 0 {
		coverage := float64(report.ScoredTags) / float64(report.ActiveTags) * 100
		report.Health.Coverage = fmt.Sprintf("%.1f%%", coverage)
	} else {
		report.Health.Coverage = "0.0%"
	}

	return report
}

// cronStatus leitet den Scheduler-Status vom jüngsten Snapshot ab.
func (h *HealthService) cronStatus(ctx context.Context, now time.Time) string {
	latest, err := h.Repo.LatestSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.Logger.Error("Jüngster Snapshot konnte nicht geladen werden", zap.Error(err))
		}
		return "not-started"
	}
	if now.Sub(latest.CreatedAt) <= cronStaleAfter {
		return "active"
	}
	return "delayed"
}

// TagReport erstellt den Deep-Dive für ein Tag über den angegebenen
// Zeitraum in Tagen (Default 30).
func (h *HealthService) TagReport(ctx context.Context, tagID uint, periodDays int) (*TagReport, error) {
	if periodDays <= 0 {
		periodDays = 30
	}

	tag, err := h.Repo.TagByID(ctx, tagID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTagNotFound
		}
		return nil, fmt.Errorf("tag laden: %w", err)
	}

	from := time.Now().AddDate(0, 0, -periodDays)

	timeline, err := h.Repo.SnapshotsForTag(ctx, tagID, from)
	if err != nil {
		h.Logger.Error("Snapshot-Timeline konnte nicht geladen werden",
			zap.Uint("tag_id", tagID), zap.Error(err))
		timeline = []models.TagSnapshot{}
	}

	articles, err := h.Repo.TopArticlesForTag(ctx, tagID, from, 10)
	if err != nil {
		h.Logger.Error("Top-Artikel konnten nicht geladen werden",
			zap.Uint("tag_id", tagID), zap.Error(err))
		articles = []models.Article{}
	}

	avgViews := 0.0
	if len(articles) > 0 {
		total := 0
		for i := range articles {
			total += articles[i].ViewsCount
		}
		avgViews = float64(total) / float64(len(articles))
	}

	return &TagReport{
		Tag:         tag,
		Timeline:    timeline,
		TopArticles: articles,
		Summary: TagReportSummary{
			Period:        fmt.Sprintf("%d days", periodDays),
			SnapshotCount: len(timeline),
			ArticleCount:  len(articles),
			AverageViews:  avgViews,
		},
	}, nil
}
