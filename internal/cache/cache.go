package cache

import (
	"sync"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// PoseCache keeps the most recent fused pose and frame state in memory so
// late-joining viewers and the monitor can read them without touching
// storage. Latency here matters: the worker updates it on every frame.
type PoseCache struct {
	m         sync.Mutex
	lastPose  *core.FusedPose
	lastFrame *core.FrameState
}

func NewPoseCache() *PoseCache {
	return &PoseCache{}
}

func (c *PoseCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.lastPose = nil
	c.lastFrame = nil
}

func (c *PoseCache) SetPose(p core.FusedPose) {
	c.m.Lock()
	defer c.m.Unlock()
	c.lastPose = &p
}

func (c *PoseCache) GetPose() (core.FusedPose, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.lastPose == nil {
		return core.FusedPose{}, false
	}
	return *c.lastPose, true
}

func (c *PoseCache) SetFrame(f core.FrameState) {
	c.m.Lock()
	defer c.m.Unlock()
	c.lastFrame = &f
}

func (c *PoseCache) GetFrame() (core.FrameState, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.lastFrame == nil {
		return core.FrameState{}, false
	}
	return *c.lastFrame, true
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
