package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

func TestContext_Defaults(t *testing.T) {
	ctx := NewContext()

	s := ctx.Get()
	assert.Equal(t, "No session active", s.Name)
	assert.False(t, ctx.Active())
}

func TestContext_SetAndEnd(t *testing.T) {
	ctx := NewContext()

	ctx.Set(&core.Session{ID: 3, Name: "desk-test"})
	assert.True(t, ctx.Active())
	assert.Equal(t, "desk-test", ctx.Get().Name)

	ctx.End()
	assert.False(t, ctx.Active())
	assert.Equal(t, "desk-test", ctx.Get().Name, "session stays readable after end")
}
