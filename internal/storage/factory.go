// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ctralie/aruco2-fast/internal/config"
	"github.com/ctralie/aruco2-fast/internal/logging"
	"github.com/ctralie/aruco2-fast/internal/storage/memory"
	"github.com/ctralie/aruco2-fast/internal/storage/postgres"
	"github.com/ctralie/aruco2-fast/internal/storage/sqlite"
	"github.com/ctralie/aruco2-fast/internal/storage/websocket"
)

// Dependencies carries the shared services a backend may need. The memory
// and websocket backends ignore the database-oriented fields.
type Dependencies struct {
	LogManager *logging.SlogManager
	DBLogger   zerolog.Logger
	Tag        string
}

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgresstorage.New(deps.LogManager, deps.DBLogger, cfg.SQLite.Path, deps.Tag)
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.Path,
		}, deps.LogManager, deps.Tag)
	case "websocket":
		return websocket.New(websocket.Config{
			URL:    cfg.Websocket.URL,
			Secret: cfg.Websocket.Secret,
		}), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
