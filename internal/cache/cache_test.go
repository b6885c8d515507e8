package cache

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

func TestPoseCache_Empty(t *testing.T) {
	c := NewPoseCache()

	_, ok := c.GetPose()
	assert.False(t, ok, "expected no pose in a fresh cache")
	_, ok = c.GetFrame()
	assert.False(t, ok, "expected no frame in a fresh cache")
}

func TestPoseCache_SetAndGet(t *testing.T) {
	c := NewPoseCache()

	c.SetPose(core.FusedPose{CaptureFrame: 7, MarkerCount: 2})
	c.SetFrame(core.FrameState{CaptureFrame: 7, Width: 640, Height: 480})

	pose, ok := c.GetPose()
	require.True(t, ok)
	assert.Equal(t, uint(7), pose.CaptureFrame)
	assert.Equal(t, 2, pose.MarkerCount)

	frame, ok := c.GetFrame()
	require.True(t, ok)
	assert.Equal(t, 640.0, frame.Width)
}

func TestPoseCache_Reset(t *testing.T) {
	c := NewPoseCache()
	c.SetPose(core.FusedPose{CaptureFrame: 1})
	c.SetFrame(core.FrameState{CaptureFrame: 1})

	c.Reset()

	_, ok := c.GetPose()
	assert.False(t, ok, "expected pose cleared after reset")
	_, ok = c.GetFrame()
	assert.False(t, ok, "expected frame cleared after reset")
}

func TestOffsetCache_SetAndGet(t *testing.T) {
	c := NewOffsetCache()

	c.Set(3, r3.Vector{X: 0, Y: 279.4, Z: 0})

	got, ok := c.Get(3)
	require.True(t, ok, "expected to find offset for marker 3")
	assert.Equal(t, 279.4, got.Y)

	_, ok = c.Get(99)
	assert.False(t, ok, "expected not to find offset for marker 99")
}

func TestOffsetCache_LoadAndSnapshot(t *testing.T) {
	c := NewOffsetCache()
	c.Set(0, r3.Vector{X: 1})

	c.Load(map[int]r3.Vector{
		1: {Y: 279.4},
		2: {Y: 558.8},
	})

	_, ok := c.Get(0)
	assert.False(t, ok, "load replaces the previous table")

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 558.8, snap[2].Y)

	// Mutating the snapshot must not affect the cache
	snap[1] = r3.Vector{Y: -1}
	got, _ := c.Get(1)
	assert.Equal(t, 279.4, got.Y)
}

func TestOffsetCache_DeleteAndReset(t *testing.T) {
	c := NewOffsetCache()
	c.Set(1, r3.Vector{Y: 1})
	c.Set(2, r3.Vector{Y: 2})

	c.Delete(1)
	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Reset()
	_, ok = c.Get(2)
	assert.False(t, ok)
	assert.Len(t, c.Snapshot(), 0)
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter

	assert.Equal(t, 0, c.Value())
	c.Inc()
	c.Inc()
	assert.Equal(t, 2, c.Value())
	c.Set(10)
	assert.Equal(t, 10, c.Value())
}
