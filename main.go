package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tag-pulse/config"
	"tag-pulse/models"
	"tag-pulse/repositories"
	"tag-pulse/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	pipelineRunsCounter    prometheus.Counter
	tagsProcessedCounter   prometheus.Counter
	snapshotsPrunedCounter prometheus.Counter
	lastRunDurationGauge   prometheus.Gauge
)

func init() {
	pipelineRunsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tag_pipeline_runs_total",
		Help: "Total number of completed popularity pipeline runs.",
	})
	tagsProcessedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tag_pipeline_tags_processed_total",
		Help: "Total number of tag computations across all runs and periods.",
	})
	snapshotsPrunedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tag_pipeline_snapshots_pruned_total",
		Help: "Total number of snapshot rows removed by retention.",
	})
	lastRunDurationGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tag_pipeline_last_run_duration_ms",
		Help: "Duration of the most recent pipeline run in milliseconds.",
	})
	prometheus.MustRegister(pipelineRunsCounter, tagsProcessedCounter, snapshotsPrunedCounter, lastRunDurationGauge)
}

// triggerAuthMiddleware schützt den manuellen Pipeline-Trigger über ein
// Bearer-Token. Ohne konfigurierten Key wird außerhalb von Produktion
// durchgewunken; in Produktion wird der Trigger dann verweigert.
func triggerAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			if cfg.AppEnv == "production" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     "Unauthorized: no trigger credential configured",
					"timestamp": time.Now(),
				})
				return
			}
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Unauthorized: Invalid API Key",
				"timestamp": time.Now(),
			})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to CMS database.")

	// Auto-Migration
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.Tag{}, &models.Article{}, &models.ArticleTag{},
		&models.TagSnapshot{}, &models.PipelineRun{})

	// Setup Services
	repo := repositories.NewAnalyticsRepository(db)
	popularityService := services.NewPopularityService(cfg, repo, logging)
	healthService := services.NewHealthService(repo, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupAnalyticsRoutes(router, cfg, popularityService, healthService, repo, logging)
	setupTagRoutes(router, repo, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled popularity pipeline...")
		summary, err := popularityService.Run(context.Background())
		if err != nil {
			logging.Error("Cron pipeline run failed", zap.Error(err))
			return
		}
		recordRunMetrics(summary)
		logging.Info("Cron pipeline run completed",
			zap.Int("tags_processed", summary.TagsProcessed),
			zap.Int64("duration_ms", summary.DurationMS))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func recordRunMetrics(summary *services.RunSummary) {
	pipelineRunsCounter.Inc()
	tagsProcessedCounter.Add(float64(summary.TagsProcessed))
	snapshotsPrunedCounter.Add(float64(summary.SnapshotsPruned))
	lastRunDurationGauge.Set(float64(summary.DurationMS))
}

func setupAnalyticsRoutes(router *gin.Engine, cfg *config.Config, popularityService *services.PopularityService, healthService *services.HealthService, repo repositories.AnalyticsRepository, log *zap.Logger) {
	rg := router.Group("/analytics")

	// Manueller Pipeline-Trigger; liefert auch im Fehlerfall ein
	// strukturiertes JSON mit Zeitstempel, damit Scheduler das Ergebnis
	// immer parsen können.
	rg.POST("/run", triggerAuthMiddleware(cfg), func(c *gin.Context) {
		summary, err := popularityService.Run(c.Request.Context())
		if err != nil {
			log.Error("Pipeline run failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "pipeline run failed",
				"detail":    err.Error(),
				"timestamp": time.Now(),
			})
			return
		}
		recordRunMetrics(summary)
		c.JSON(http.StatusOK, summary)
	})

	// Lesender Diagnose-Report, bewusst ohne Credential
	rg.GET("/health", func(c *gin.Context) {
		start := time.Now()
		report := healthService.SystemReport(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"report":           report,
			"response_time_ms": time.Since(start).Milliseconds(),
		})
	})

	rg.GET("/tags/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tag id"})
			return
		}
		period, _ := strconv.Atoi(c.DefaultQuery("period", "30"))

		report, err := healthService.TagReport(c.Request.Context(), uint(id), period)
		if err != nil {
			if errors.Is(err, services.ErrTagNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "tag not found"})
				return
			}
			log.Error("Tag report failed", zap.Uint64("tag_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	rg.GET("/runs", func(c *gin.Context) {
		runs, err := repo.RecentRuns(c.Request.Context(), 20)
		if err != nil {
			log.Error("Run history query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})
}

func setupTagRoutes(router *gin.Engine, repo repositories.AnalyticsRepository, log *zap.Logger) {
	rg := router.Group("/tags")

	// Aktive Tags sortiert nach Score, für das CMS-Frontend
	rg.GET("/", func(c *gin.Context) {
		tags, err := repo.ActiveTagsByScore(c.Request.Context())
		if err != nil {
			log.Error("Database query for tags failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, tags)
	})
}
