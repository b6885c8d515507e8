// Package postgresstorage implements the storage.Backend interface on a
// PostgreSQL server. It wraps the shared GORM backend; the Postgres-specific
// concerns are connection management and the local-SQLite fallback when the
// server is unreachable.
package postgresstorage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ctralie/aruco2-fast/internal/database"
	"github.com/ctralie/aruco2-fast/internal/logging"
	gormstorage "github.com/ctralie/aruco2-fast/internal/storage/gorm"
)

// Backend wraps the GORM backend with a managed Postgres connection.
type Backend struct {
	*gormstorage.Backend
	mgr *database.Manager
}

// New creates a new Postgres storage backend using viper db.* config. When
// the Postgres server cannot be reached, the manager falls back to an
// in-memory SQLite database dumped to fallbackPath at session end.
func New(logManager *logging.SlogManager, dbLog zerolog.Logger, fallbackPath string, tag string) (*Backend, error) {
	mgr := database.NewManager(dbLog)
	mgr.SqliteFilePath = fallbackPath

	if err := mgr.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if mgr.ShouldSaveLocal {
		logManager.Logger().Warn("Postgres unreachable, recording to local SQLite fallback",
			"dumpPath", fallbackPath)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:         mgr.DB,
		LogManager: logManager,
		Tag:        tag,
	})

	return &Backend{Backend: gormBackend, mgr: mgr}, nil
}

// EndSession drains the write queues and, when running on the SQLite
// fallback, dumps the in-memory database to disk so the session survives.
func (b *Backend) EndSession() error {
	if err := b.Backend.EndSession(); err != nil {
		return err
	}
	if b.mgr.ShouldSaveLocal && b.mgr.SqliteFilePath != "" {
		return b.mgr.DumpMemoryToDisk()
	}
	return nil
}
