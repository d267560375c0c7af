// Package store persists users, rooms, memberships, messages and reactions in
// SQLite through GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/huddle/internal/chat"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// singleGeneralIndex makes a second General room impossible at the storage
// level, whatever process inserts it.
const singleGeneralIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_single_general ON rooms(kind) WHERE kind = 'general'`

// Store is the GORM backed persistence layer. It implements chat.Store,
// auth.UserStore and user.Store.
type Store struct {
	db *gorm.DB
}

// Options tune how the database is opened.
type Options struct {
	LogLevel logger.LogLevel
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema. The pool is limited to one connection: SQLite has a single
// writer, and an in-memory database only lives as long as its connection.
func Open(path string, opts Options) (*Store, error) {
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Silent
	}

	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger:         logger.Default.LogMode(opts.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	if path == MemoryPath {
		return MemoryPath + "?_foreign_keys=1"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=1&_busy_timeout=5000&_journal_mode=WAL"
}

// Migrate brings the schema up to date. It is safe to call repeatedly.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&chat.User{},
		&chat.Room{},
		&chat.Membership{},
		&chat.Message{},
		&chat.Reaction{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := s.db.Exec(singleGeneralIndex).Error; err != nil {
		return fmt.Errorf("failed to create general room index: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notFound maps gorm's missing-row error onto the domain sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, chat.ErrNotFound)
	}
	return fmt.Errorf("failed to find %s: %w", what, err)
}
