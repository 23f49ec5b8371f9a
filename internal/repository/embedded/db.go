// Package embedded keeps the whole helpdesk directory and chat history in a
// single SQLite file. It backs the "sqlite" store driver used for local runs
// and small single-node installs.
package embedded

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spec-kit/factory-support/internal/repository"
)

// DB wraps the gorm handle shared by the embedded repositories.
type DB struct {
	db *gorm.DB
}

// Open creates or opens the database at path and migrates the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer keeps SQLite from returning "database is locked" under load.
	db.DB().SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &issueRow{}, &chatRow{}, &messageRow{}).Error; err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	if err := db.Model(&messageRow{}).AddIndex("idx_messages_chat_id", "chat_id", "id").Error; err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index messages: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Ping checks the database file is still reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.DB().PingContext(ctx)
}

// Store exposes the embedded repositories behind the shared interfaces.
func (d *DB) Store() *repository.Store {
	return &repository.Store{
		Issues:   &issueStore{db: d.db},
		Users:    &userStore{db: d.db},
		Channels: &channelStore{db: d.db},
		Messages: &messageStore{db: d.db},
	}
}
