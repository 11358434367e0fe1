package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatboard/models"
	"chatboard/pkg/validation"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore keeps messages in a SQL table through gorm.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) a SQLite database file. SQLite allows one
// writer at a time, so the pool is pinned to a single connection.
func OpenSQLite(path string) (*GormStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "chatboard.db"
	}
	if !strings.Contains(path, "?") {
		path += "?_busy_timeout=5000"
	}
	s, err := openGorm(sqlite.Open(path))
	if err != nil {
		return nil, err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return s, nil
}

func OpenMySQL(dsn string) (*GormStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("mysql store requires DB_DSN")
	}
	return openGorm(mysql.Open(dsn))
}

func openGorm(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: now,
		Logger:  logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore migrates the messages table on db and wraps it.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.Message{}); err != nil {
		return nil, fmt.Errorf("failed migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Create(ctx context.Context, in models.MessageInput) (models.Message, error) {
	if err := validation.MessageInput(&in); err != nil {
		return models.Message{}, err
	}
	m := models.Message{Name: in.Name, Message: in.Message, IPAddress: in.IPAddress}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		logf("create failed: %v", err)
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

func (s *GormStore) Get(ctx context.Context, id uint64) (models.Message, error) {
	var m models.Message
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return models.Message{}, translate(err)
	}
	return m, nil
}

func (s *GormStore) List(ctx context.Context) ([]models.Message, error) {
	msgs := []models.Message{}
	if err := s.db.WithContext(ctx).Order("created_at asc").Order("id asc").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// Update overwrites the writable columns of an existing row. The row is
// loaded, updated and reloaded in one transaction so a row deleted
// concurrently is reported as missing rather than re-inserted.
func (s *GormStore) Update(ctx context.Context, id uint64, in models.MessageInput) (models.Message, error) {
	if err := validation.MessageInput(&in); err != nil {
		return models.Message{}, err
	}
	var m models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&m, id).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Message{}).Where("id = ?", id).Updates(map[string]any{
			"name":       nullable(in.Name),
			"message":    in.Message,
			"ip_address": nullable(in.IPAddress),
			"updated_at": now(),
		})
		if res.Error != nil {
			return res.Error
		}
		return tx.First(&m, id).Error
	})
	if err != nil {
		return models.Message{}, translate(err)
	}
	return m, nil
}

func (s *GormStore) Delete(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Delete(&models.Message{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
