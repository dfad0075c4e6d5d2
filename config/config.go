package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4242"`
	AppEnv   string `envconfig:"APP_ENV" default:"development"`

	// Bearer-Token für den manuellen Pipeline-Trigger
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`

	// Tuning-Konstanten der Popularity-Pipeline. Die Defaults sind fix
	// kalibriert; Änderungen machen historische Scores unvergleichbar.
	TrendPeriods        []int   `envconfig:"TREND_PERIODS" default:"7,30,90"`
	CanonicalPeriodDays int     `envconfig:"CANONICAL_PERIOD_DAYS" default:"30"`
	TagPageSize         int     `envconfig:"TAG_PAGE_SIZE" default:"100"`
	PagePauseMS         int     `envconfig:"PAGE_PAUSE_MS" default:"200"`
	RetentionDays       int     `envconfig:"SNAPSHOT_RETENTION_DAYS" default:"365"`
	DecayBase           float64 `envconfig:"DECAY_BASE" default:"0.95"`
	PriorityNeutral     int     `envconfig:"PRIORITY_NEUTRAL" default:"5"`
	WeightUsage         float64 `envconfig:"WEIGHT_USAGE" default:"0.4"`
	WeightViews         float64 `envconfig:"WEIGHT_VIEWS" default:"0.3"`
	WeightDecay         float64 `envconfig:"WEIGHT_DECAY" default:"0.2"`
	WeightGrowth        float64 `envconfig:"WEIGHT_GROWTH" default:"0.1"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
