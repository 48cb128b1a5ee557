package storage

import (
	"context"
	"fmt"
	"time"

	"datarecorder/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Document is one stored record in a relational database.
type Document struct {
	ID         uint      `gorm:"primaryKey"`
	Store      string    `gorm:"size:64;not null;index:idx_documents_series,priority:1"`
	Series     string    `gorm:"size:64;not null;index:idx_documents_series,priority:2"`
	RecordTime time.Time `gorm:"not null;index:idx_documents_series,priority:3"`
	Code       string    `gorm:"size:64;not null"`
	Body       []byte    `gorm:"not null"`
}

// GormStore writes documents through gorm.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) a sqlite database.
func OpenSQLite(dsn string) (*GormStore, error) {
	return NewGormStore(sqlite.Open(dsn))
}

// OpenPostgres opens (and migrates) a postgres database.
func OpenPostgres(dsn string) (*GormStore, error) {
	return NewGormStore(postgres.Open(dsn))
}

// NewGormStore opens dialector and migrates the documents table.
func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Insert implements Store.
func (g *GormStore) Insert(ctx context.Context, store, series string, rec model.Record) error {
	body, err := Encode(rec)
	if err != nil {
		return err
	}
	doc := Document{
		Store:      store,
		Series:     series,
		RecordTime: rec.RecordTime().UTC(),
		Code:       rec.InstrumentCode(),
		Body:       body,
	}
	return g.db.WithContext(ctx).Create(&doc).Error
}

// Find returns the documents of one series ordered by insertion.
func (g *GormStore) Find(ctx context.Context, store, series string) ([]Document, error) {
	var docs []Document
	err := g.db.WithContext(ctx).
		Where("store = ? AND series = ?", store, series).
		Order("id").
		Find(&docs).Error
	return docs, err
}

// Close implements Store.
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
