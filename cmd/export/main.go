package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tag-pulse/models"
	"tag-pulse/storage"
)

// ExportConfig konfiguriert den eigenständigen Snapshot-Export.
type ExportConfig struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	ExportBucket    string `envconfig:"EXPORT_S3_BUCKET" required:"true"`
	ExportEndpoint  string `envconfig:"EXPORT_S3_ENDPOINT" required:"true"`
	ExportAccessKey string `envconfig:"EXPORT_S3_ACCESS_KEY" required:"true"`
	ExportSecretKey string `envconfig:"EXPORT_S3_SECRET_KEY" required:"true"`
	ExportRegion    string `envconfig:"EXPORT_S3_REGION" required:"true"`

	SinceDays   int `envconfig:"EXPORT_SINCE_DAYS" default:"30"`
	KeepExports int `envconfig:"KEEP_EXPORTS" default:"8"`
}

func main() {
	log.Println("Starte Snapshot-Export...")

	var cfg ExportConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Fehler bei der Datenbankverbindung: %v", err)
	}

	// 1. Snapshots lesen und als gzip-NDJSON verpacken
	data, count, err := buildExport(db, cfg.SinceDays)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des Exports: %v", err)
	}
	log.Printf("%d Snapshots exportiert (%d Bytes komprimiert)", count, len(data))

	// 2. S3-Client erstellen
	s3Client, err := storage.NewS3Client(cfg.ExportEndpoint, cfg.ExportRegion, cfg.ExportAccessKey, cfg.ExportSecretKey)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des S3-Clients: %v", err)
	}

	// 3. Export nach S3 hochladen
	fileName := fmt.Sprintf("tag-snapshots-%s.ndjson.gz", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	link, err := storage.UploadObject(s3Client, cfg.ExportEndpoint, cfg.ExportBucket, fileName, data)
	if err != nil {
		log.Fatalf("Fehler beim Hochladen nach S3: %v", err)
	}
	log.Printf("Export erfolgreich hochgeladen: %s", link)

	// 4. Alte Exporte rotieren
	if err := rotateExports(s3Client, cfg); err != nil {
		log.Fatalf("Fehler bei der Rotation alter Exporte: %v", err)
	}

	log.Println("Snapshot-Export erfolgreich abgeschlossen.")
}

// buildExport liest alle Snapshots der letzten sinceDays Tage und schreibt
// sie zeilenweise als JSON in einen gzip-Puffer.
func buildExport(db *gorm.DB, sinceDays int) ([]byte, int, error) {
	var snaps []models.TagSnapshot
	from := time.Now().UTC().AddDate(0, 0, -sinceDays)
	if err := db.Where("date >= ?", from).Order("date asc").Find(&snaps).Error; err != nil {
		return nil, 0, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for i := range snaps {
		if err := enc.Encode(&snaps[i]); err != nil {
			return nil, 0, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, 0, err
	}

	return buf.Bytes(), len(snaps), nil
}

// rotateExports behält die jüngsten KeepExports Objekte und löscht den Rest.
func rotateExports(client *s3.Client, cfg ExportConfig) error {
	output, err := client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.ExportBucket),
	})
	if err != nil {
		return err
	}

	if len(output.Contents) <= cfg.KeepExports {
		log.Printf("Weniger als %d Exporte vorhanden, keine Rotation nötig.", cfg.KeepExports)
		return nil
	}

	sort.Slice(output.Contents, func(i, j int) bool {
		return output.Contents[i].LastModified.After(*output.Contents[j].LastModified)
	})

	for _, obj := range output.Contents[cfg.KeepExports:] {
		log.Printf("Lösche alten Export: %s", *obj.Key)
		_, err := client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.ExportBucket),
			Key:    obj.Key,
		})
		if err != nil {
			log.Printf("Fehler beim Löschen von %s: %v", *obj.Key, err)
		}
	}

	return nil
}
