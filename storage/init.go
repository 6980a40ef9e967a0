////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package storage is the local conversation cache and the list of profiles
// blocked by the viewer, kept in SQLite.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// Can be provided to SqlLite to create a temporary, in-memory DB.
	temporaryDbPath = "file:%s?mode=memory&cache=shared"

	// Determines maximum runtime of DB queries.
	dbTimeout = 3 * time.Second
)

// ErrNotFound is returned by Get when no conversation has the given ID.
var ErrNotFound = errors.New("conversation not found")

// Store holds the database connection. It is safe for concurrent use; every
// read is a point in time snapshot.
type Store struct {
	db *gorm.DB
}

// newContext builds a context for database operations.
func newContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, dbTimeout)
}

// NewStore opens the database at dbFilePath. If dbFilePath is empty, name is
// used to open a temporary in-memory database.
func NewStore(dbFilePath, name string) (*Store, error) {
	if len(dbFilePath) == 0 {
		dbFilePath = fmt.Sprintf(temporaryDbPath, name)
		jww.WARN.Printf("[Storage] No database file path specified! " +
			"Using temporary in-memory database")
	}

	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{
		Logger: logger.New(jww.TRACE, logger.Config{LogLevel: logger.Info}),
	})
	if err != nil {
		return nil, errors.Errorf(
			"Unable to initialize database backend: %+v", err)
	}

	// Enable Write Ahead Logging so the host can keep writing while the
	// detector reads
	if err = db.Exec("PRAGMA journal_mode = WAL;").Error; err != nil {
		return nil, err
	}

	sqlDb, err := db.DB()
	if err != nil {
		return nil, errors.Errorf(
			"Unable to configure database connection pool: %+v", err)
	}
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetMaxOpenConns(10)
	sqlDb.SetConnMaxIdleTime(5 * time.Minute)
	sqlDb.SetConnMaxLifetime(10 * time.Minute)

	if err = db.AutoMigrate(&Conversation{}, &Block{}); err != nil {
		return nil, err
	}

	jww.INFO.Println("[Storage] Database backend initialized successfully!")
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
