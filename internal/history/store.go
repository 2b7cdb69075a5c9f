package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/1lker/turkish-transcribe/internal/models"
)

// Record is one finished transcription job kept in the local history
type Record struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	JobID          string    `gorm:"uniqueIndex" json:"job_id"`
	FileName       string    `json:"file_name"`
	Model          string    `json:"model"`
	Language       string    `json:"language"`
	Duration       float64   `json:"duration"`
	ProcessingTime float64   `json:"processing_time"`
	WordCount      int       `json:"word_count"`
	CharCount      int       `json:"char_count"`
	Text           string    `gorm:"type:text" json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for Record
func (Record) TableName() string {
	return "job_history"
}

// Store persists finished jobs in a local SQLite database
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the history database at path
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveResult records a completed job. Saving the same job again updates the
// existing row.
func (s *Store) SaveResult(ctx context.Context, jobID, fileName string, result *models.JobResult) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}

	record := Record{
		JobID:          jobID,
		FileName:       fileName,
		Model:          result.Model,
		Language:       result.Language,
		Duration:       result.Duration,
		ProcessingTime: result.ProcessingTime,
		WordCount:      result.WordCount,
		CharCount:      result.CharCount,
		Text:           result.Text,
	}

	var existing Record
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("looking up history record: %w", err)
		}
		return s.db.WithContext(ctx).Create(&record).Error
	}

	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	return s.db.WithContext(ctx).Save(&record).Error
}

// Recent returns up to limit records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []Record
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return records, nil
}

// Get returns the record for a job id, or ErrNotFound
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("looking up history record: %w", err)
	}
	return &record, nil
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
