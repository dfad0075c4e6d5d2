package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tag-pulse/config"
	"tag-pulse/models"
	"tag-pulse/repositories"
)

// PeriodSummary fasst einen Lookback-Durchlauf zusammen.
type PeriodSummary struct {
	PeriodDays    int  `json:"period_days"`
	Canonical     bool `json:"canonical"`
	Pages         int  `json:"pages"`
	TagsProcessed int  `json:"tags_processed"`
	TagsFailed    int  `json:"tags_failed"`
}

// RunSummary ist das Ergebnis eines kompletten Pipeline-Laufs.
type RunSummary struct {
	TagsProcessed   int             `json:"tags_processed"`
	SnapshotsPruned int64           `json:"snapshots_pruned"`
	DurationMS      int64           `json:"duration_ms"`
	Periods         []PeriodSummary `json:"periods"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// PopularityService berechnet pro aktivem Tag den zusammengesetzten
// Popularity-Score über mehrere Lookback-Fenster, schreibt die kanonischen
// Aggregate zurück und persistiert tägliche Snapshots.
type PopularityService struct {
	Config *config.Config
	Repo   repositories.AnalyticsRepository
	Logger *zap.Logger
}

// NewPopularityService erstellt eine neue Instanz des PopularityService.
func NewPopularityService(cfg *config.Config, repo repositories.AnalyticsRepository, logger *zap.Logger) *PopularityService {
	return &PopularityService{
		Config: cfg,
		Repo:   repo,
		Logger: logger,
	}
}

// Run führt einen vollständigen Pipeline-Lauf aus: alle Perioden in fester
// Reihenfolge, danach der Retention-Sweep. Perioden und Seiten laufen strikt
// sequenziell, damit die Last auf der Datenbank planbar bleibt.
func (s *PopularityService) Run(ctx context.Context) (summary *RunSummary, err error) {
	start := time.Now()
	today := startOfDay(start.UTC())

	summary = &RunSummary{}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			s.Logger.Error("Pipeline-Lauf abgebrochen", zap.Any("panic", r))
			s.recordRun(ctx, start, summary, err)
		}
	}()

	for _, days := range s.Config.TrendPeriods {
		canonical := days == s.Config.CanonicalPeriodDays
		ps := s.processPeriod(ctx, start, today, days, canonical)
		summary.Periods = append(summary.Periods, ps)
		summary.TagsProcessed += ps.TagsProcessed
	}

	// Retention: Snapshots jenseits des Horizonts entfernen. Der Cutoff
	// ist tagesgenau, eine Zeile von vor exakt 365 Tagen bleibt erhalten.
	// Ein Fehler hier invalidiert den Lauf nicht.
	cutoff := startOfDay(start.UTC().AddDate(0, 0, -s.Config.RetentionDays))
	pruned, perr := s.Repo.DeleteSnapshotsBefore(ctx, cutoff)
	if perr != nil {
		s.Logger.Error("Retention-Sweep fehlgeschlagen", zap.Error(perr))
	}
	summary.SnapshotsPruned = pruned

	summary.DurationMS = time.Since(start).Milliseconds()
	summary.FinishedAt = time.Now()

	s.recordRun(ctx, start, summary, nil)
	s.Logger.Info("Pipeline-Lauf abgeschlossen",
		zap.Int("tags_processed", summary.TagsProcessed),
		zap.Int64("snapshots_pruned", summary.SnapshotsPruned),
		zap.Int64("duration_ms", summary.DurationMS))

	return summary, nil
}

// processPeriod verarbeitet ein Lookback-Fenster seitenweise über alle
// aktiven Tags. Ein fehlgeschlagener Seitenabruf degradiert zur leeren
// Seite; einzelne Tag-Fehler werden geloggt und übersprungen.
func (s *PopularityService) processPeriod(ctx context.Context, now, today time.Time, days int, canonical bool) PeriodSummary {
	log := s.Logger.With(zap.Int("period_days", days))
	log.Info("Starte Perioden-Durchlauf", zap.Bool("canonical", canonical))

	ps := PeriodSummary{PeriodDays: days, Canonical: canonical}
	windowStart := now.AddDate(0, 0, -days)
	prevStart := windowStart.AddDate(0, 0, -days)

	offset := 0
	for {
		tags, err := s.Repo.ActiveTagPage(ctx, offset, s.Config.TagPageSize)
		if err != nil {
			log.Error("Seitenabruf fehlgeschlagen, Periode wird beendet",
				zap.Int("offset", offset), zap.Error(err))
			break
		}
		if len(tags) == 0 {
			break
		}
		ps.Pages++

		for i := range tags {
			if err := s.processTag(ctx, &tags[i], now, today, windowStart, prevStart, canonical); err != nil {
				log.Warn("Tag übersprungen",
					zap.Uint("tag_id", tags[i].ID),
					zap.String("tag", tags[i].Name),
					zap.Error(err))
				ps.TagsFailed++
				continue
			}
			ps.TagsProcessed++
		}

		if len(tags) < s.Config.TagPageSize {
			break
		}
		offset += s.Config.TagPageSize

		// Kurze Pause zwischen den Seiten als Lastbremse für die DB
		time.Sleep(time.Duration(s.Config.PagePauseMS) * time.Millisecond)
	}

	log.Info("Perioden-Durchlauf beendet",
		zap.Int("tags_processed", ps.TagsProcessed),
		zap.Int("tags_failed", ps.TagsFailed),
		zap.Int("pages", ps.Pages))
	return ps
}

// processTag berechnet alle Kennzahlen eines Tags für ein Fenster und
// persistiert sie. Nur das kanonische Fenster schreibt die gecachten
// Aggregat-Spalten des Tags; der Snapshot wird für jede Periode auf den
// Schlüssel (tag, heute) geschrieben, sodass die zuletzt verarbeitete
// Periode die Tageszeile bestimmt.
func (s *PopularityService) processTag(ctx context.Context, tag *models.Tag, now, today, windowStart, prevStart time.Time, canonical bool) error {
	articles, err := s.Repo.PublishedArticlesForTag(ctx, tag.ID, windowStart, now)
	if err != nil {
		return fmt.Errorf("artikel laden: %w", err)
	}

	usage := len(articles)
	views := 0
	var lastUsed *time.Time
	times := make([]time.Time, 0, usage)
	for i := range articles {
		views += articles[i].ViewsCount
		if articles[i].PublishedAt == nil {
			continue
		}
		t := *articles[i].PublishedAt
		times = append(times, t)
		if lastUsed == nil || t.After(*lastUsed) {
			lastUsed = &t
		}
	}

	decay := decayWeight(times, now, s.Config.DecayBase)

	prevCount, err := s.Repo.CountPublishedArticlesForTag(ctx, tag.ID, prevStart, windowStart)
	if err != nil {
		return fmt.Errorf("vorperiode zählen: %w", err)
	}
	growth := growthRate(float64(usage), float64(prevCount))

	score := s.compositeScore(float64(usage), float64(views), decay, growth, tag.Priority)

	if canonical {
		fields := map[string]interface{}{
			"total_usage_count": usage,
			"views_count":       views,
			"growth_rate":       growth,
			"popularity_score":  score,
			"last_used_at":      lastUsed,
		}
		if err := s.Repo.UpdateTagAggregates(ctx, tag.ID, fields); err != nil {
			return fmt.Errorf("aggregate schreiben: %w", err)
		}
	}

	snap := &models.TagSnapshot{
		TagID:           tag.ID,
		Date:            today,
		UsageCount:      usage,
		ArticleCount:    usage,
		ViewsCount:      views,
		GrowthFactor:    growth,
		PopularityScore: score,
	}
	if err := s.Repo.UpsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("snapshot schreiben: %w", err)
	}
	return nil
}

// recordRun persistiert die Laufhistorie; ein Fehler dabei wird nur geloggt.
func (s *PopularityService) recordRun(ctx context.Context, start time.Time, summary *RunSummary, runErr error) {
	periodsJSON, _ := json.Marshal(summary.Periods)
	run := &models.PipelineRun{
		StartedAt:       start,
		FinishedAt:      time.Now(),
		DurationMS:      time.Since(start).Milliseconds(),
		TagsProcessed:   summary.TagsProcessed,
		SnapshotsPruned: int(summary.SnapshotsPruned),
		Status:          "completed",
		Periods:         datatypes.JSON(periodsJSON),
	}
	if runErr != nil {
		run.Status = "failed"
		run.ErrorDetail = runErr.Error()
	}
	if err := s.Repo.CreateRun(ctx, run); err != nil {
		s.Logger.Error("Laufhistorie konnte nicht gespeichert werden", zap.Error(err))
	}
}

// compositeScore kombiniert Nutzung, Views, Decay und Wachstum zu einem
// Skalar und skaliert mit der redaktionellen Priorität (5 = neutral).
// Gewichte und Formel sind fix kalibriert, damit historische Scores
// vergleichbar bleiben.
func (s *PopularityService) compositeScore(usage, views, decay, growth float64, priority int) float64 {
	score := s.Config.WeightUsage*usage +
		s.Config.WeightViews*(views/100) +
		s.Config.WeightDecay*decay +
		s.Config.WeightGrowth*math.Max(0, growth/100)

	score *= 1 + float64(priority-s.Config.PriorityNeutral)*0.1

	return math.Round(score*100) / 100
}

// decayWeight akkumuliert base^daysSince über alle Publikationszeitpunkte.
// Ältere Artikel tragen exponentiell weniger bei; daysSince ist auf
// mindestens 1 gedeckelt, leere Eingabe ergibt 0.
func decayWeight(published []time.Time, now time.Time, base float64) float64 {
	sum := 0.0
	for _, t := range published {
		days := math.Floor(now.Sub(t).Hours() / 24)
		if days < 1 {
			days = 1
		}
		sum += math.Pow(base, days)
	}
	return sum
}

// growthRate liefert die prozentuale Veränderung zwischen zwei gleich
// langen Fenstern. Taucht ein Tag neu auf (Vorperiode leer), wird das
// Wachstum auf 100 gedeckelt statt gegen unendlich zu laufen.
func growthRate(current, previous float64) float64 {
	if previous > 0 {
		return (current - previous) / previous * 100
	}
	if current > 0 {
		return 100
	}
	return 0
}

// startOfDay nullt einen Zeitstempel auf Tagesbeginn.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
