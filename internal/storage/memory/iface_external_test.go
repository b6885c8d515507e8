package memory_test

import (
	"github.com/ctralie/aruco2-fast/internal/storage"
	"github.com/ctralie/aruco2-fast/internal/storage/memory"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*memory.Backend)(nil)

// Verify Backend implements storage.Uploadable interface
var _ storage.Uploadable = (*memory.Backend)(nil)
