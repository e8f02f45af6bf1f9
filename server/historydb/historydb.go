// Package historydb records every predict call in a SQLite database
package historydb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

const DefaultListLimit = 50
const MaxListLimit = 1000

type HistoryDB struct {
	log logs.Log
	db  *gorm.DB
}

// Open or create the history DB
func NewHistoryDB(log logs.Log, dbFilename string) (*HistoryDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbFilename), 0770); err != nil {
		return nil, fmt.Errorf("Failed to create history DB path '%v': %w", dbFilename, err)
	}
	log.Infof("Opening history DB at '%v'", dbFilename)
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbFilename), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open history database %v: %w", dbFilename, err)
	}
	return &HistoryDB{
		log: log,
		db:  db,
	}, nil
}

func (h *HistoryDB) Close() {
	if sqlDB, err := h.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// Add inserts e, and sets e.ID. If e.CreatedAt is zero, it is set to now.
func (h *HistoryDB) Add(e *Entry) error {
	if e.CreatedAt.Get().IsZero() || e.CreatedAt.Get().Unix() <= 0 {
		e.CreatedAt = dbh.MakeIntTime(time.Now())
	}
	if err := h.db.Create(e).Error; err != nil {
		h.log.Errorf("Failed to write history entry for %v: %v", e.Filename, err)
		return err
	}
	return nil
}

// Recent returns the most recent entries, newest first
func (h *HistoryDB) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	} else if limit > MaxListLimit {
		limit = MaxListLimit
	}
	entries := []Entry{}
	err := h.db.Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// ForFile returns all entries for an uploaded file, newest first
func (h *HistoryDB) ForFile(filename string) ([]Entry, error) {
	entries := []Entry{}
	err := h.db.Where("filename = ?", filename).Order("id DESC").Find(&entries).Error
	return entries, err
}
