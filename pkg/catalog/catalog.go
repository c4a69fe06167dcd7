// Package catalog answers the two image lookups of the detail panel:
// camera snapshot by camera name and illustration by sensor type.
// A miss is an ordinary answer (ok == false), never an error.
package catalog

import (
	"context"

	"github.com/rs/zerolog"

	"flood-sensor-map/pkg/memo"
)

// CameraSource loads the camera name → image URL map.
type CameraSource interface {
	LoadCameras(ctx context.Context) (map[string]string, error)
}

// CameraDirectory caches the camera map after the first successful load.
type CameraDirectory struct {
	cache *memo.Value[map[string]string]
	log   zerolog.Logger
}

// NewCameraDirectory wires a directory around src.
func NewCameraDirectory(src CameraSource, log zerolog.Logger) *CameraDirectory {
	return &CameraDirectory{
		cache: memo.New(src.LoadCameras),
		log:   log.With().Str("component", "cameras").Logger(),
	}
}

// ImageURL returns the snapshot URL for camera. Unknown cameras, empty URLs
// and load failures all report ok == false.
func (d *CameraDirectory) ImageURL(ctx context.Context, camera string) (string, bool) {
	m := d.all(ctx)
	url, ok := m[camera]
	if !ok || url == "" {
		return "", false
	}
	return url, true
}

// All returns a copy of the whole directory (empty on load failure).
func (d *CameraDirectory) All(ctx context.Context) map[string]string {
	m := d.all(ctx)
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *CameraDirectory) all(ctx context.Context) map[string]string {
	m, _, err := d.cache.Get(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("load cameras")
		return map[string]string{}
	}
	return m
}

// TypeCatalog maps sensor hardware types to an illustrative picture.
type TypeCatalog struct {
	images map[string]string
}

// DefaultTypeImages is the catalogue shipped with the viewer.
var DefaultTypeImages = map[string]string{
	"Honeywell 470-12":         "https://ivandlpn.github.io/SensoresInundacion/sensor/honeywell.png",
	"SLB Systems Water Sensor": "https://ivandlpn.github.io/SensoresInundacion/sensor/SLB.png",
}

// NewTypeCatalog copies images; nil means DefaultTypeImages.
func NewTypeCatalog(images map[string]string) *TypeCatalog {
	if images == nil {
		images = DefaultTypeImages
	}
	c := &TypeCatalog{images: make(map[string]string, len(images))}
	for k, v := range images {
		c.images[k] = v
	}
	return c
}

// ImageURL returns the illustration for sensorType.
func (c *TypeCatalog) ImageURL(sensorType string) (string, bool) {
	url, ok := c.images[sensorType]
	if !ok || url == "" {
		return "", false
	}
	return url, true
}
