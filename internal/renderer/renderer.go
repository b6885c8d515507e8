// Package renderer defines the downstream contract the fused pose feeds:
// a scene renderer repositions a virtual object from a scale, a rotation
// matrix and a translation once per frame. The tracker does not render
// anything itself; it adapts poses into the renderer's conventions and
// publishes them.
package renderer

import (
	"github.com/golang/geo/r3"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// SceneRenderer is the consumer of fused poses. UpdatePose is applied once
// per frame and only when a fused pose is available; on frames without one
// the renderer holds the last good pose.
type SceneRenderer interface {
	UpdatePose(scale float64, rotation core.Matrix3, translation r3.Vector) error
}

// TranslationForScene converts a solver-frame translation into the scene
// frame by inverting the z axis. The solver reports depth positive away
// from the camera; the scene camera looks down negative z.
func TranslationForScene(t r3.Vector) r3.Vector {
	return r3.Vector{X: t.X, Y: t.Y, Z: -t.Z}
}
