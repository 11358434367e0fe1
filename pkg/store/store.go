// Package store persists chat messages. All backends share the Store
// contract: ids strictly increase with creation, List is ordered by
// created_at then id, and unknown ids yield ErrNotFound.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"chatboard/models"
)

var ErrNotFound = errors.New("message not found")

type Store interface {
	Create(ctx context.Context, in models.MessageInput) (models.Message, error)
	Get(ctx context.Context, id uint64) (models.Message, error)
	List(ctx context.Context) ([]models.Message, error)
	Update(ctx context.Context, id uint64, in models.MessageInput) (models.Message, error)
	Delete(ctx context.Context, id uint64) error
	Close() error
}

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverBadger = "badger"
)

// Open returns the backend named by driver. dsn is a file path for sqlite,
// a go-sql-driver DSN for mysql and a directory for badger.
func Open(driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		s, err = OpenSQLite(dsn)
	case DriverMySQL:
		s, err = OpenMySQL(dsn)
	case DriverBadger:
		s, err = OpenBadger(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	logf("opened %s store", driver)
	return s, nil
}

func now() time.Time {
	return time.Now().UTC()
}

func sortMessages(msgs []models.Message) {
	slices.SortStableFunc(msgs, func(a, b models.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func logf(format string, args ...any) {
	log.Printf("[store] "+format, args...)
}
