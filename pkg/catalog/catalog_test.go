package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type cameraStub struct {
	m     map[string]string
	err   error
	calls int
}

func (c *cameraStub) LoadCameras(context.Context) (map[string]string, error) {
	c.calls++
	return c.m, c.err
}

func TestCameraDirectoryLookup(t *testing.T) {
	t.Parallel()

	src := &cameraStub{m: map[string]string{"CAM-289": "/static/cameras/cam-289.jpg", "CAM-EMPTY": ""}}
	dir := NewCameraDirectory(src, zerolog.Nop())
	ctx := context.Background()

	url, ok := dir.ImageURL(ctx, "CAM-289")
	assert.True(t, ok)
	assert.Equal(t, "/static/cameras/cam-289.jpg", url)

	_, ok = dir.ImageURL(ctx, "CAM-404")
	assert.False(t, ok)
	_, ok = dir.ImageURL(ctx, "CAM-EMPTY")
	assert.False(t, ok)
	assert.Equal(t, 1, src.calls)

	all := dir.All(ctx)
	all["CAM-289"] = "mutated"
	url, _ = dir.ImageURL(ctx, "CAM-289")
	assert.Equal(t, "/static/cameras/cam-289.jpg", url)
}

func TestCameraDirectoryLoadFailure(t *testing.T) {
	t.Parallel()

	src := &cameraStub{err: errors.New("404")}
	dir := NewCameraDirectory(src, zerolog.Nop())

	_, ok := dir.ImageURL(context.Background(), "CAM-289")
	assert.False(t, ok)
	assert.Empty(t, dir.All(context.Background()))
	assert.Equal(t, 2, src.calls)
}

func TestTypeCatalog(t *testing.T) {
	t.Parallel()

	c := NewTypeCatalog(nil)
	url, ok := c.ImageURL("Honeywell 470-12")
	assert.True(t, ok)
	assert.Contains(t, url, "honeywell.png")

	_, ok = c.ImageURL("Unknown 1.0")
	assert.False(t, ok)

	custom := NewTypeCatalog(map[string]string{"X": "x.png"})
	_, ok = custom.ImageURL("Honeywell 470-12")
	assert.False(t, ok)
}
