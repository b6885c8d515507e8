package websocket_test

import (
	"github.com/ctralie/aruco2-fast/internal/storage"
	"github.com/ctralie/aruco2-fast/internal/storage/websocket"
)

// Compile-time interface check.
var _ storage.Backend = (*websocket.Backend)(nil)
