package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

// tileSize is the Leaflet/Web-Mercator tile edge in pixels.
const tileSize = 256.0

// worldMeters is the Web-Mercator world width (2·π·6378137).
const worldMeters = 2 * math.Pi * 6378137.0

var (
	toMercator   = wgs84.EPSG().Transform(4326, 3857)
	fromMercator = wgs84.EPSG().Transform(3857, 4326)
)

// Bounds is a lat/lng rectangle. Empty bounds contain no points.
type Bounds struct {
	orb.Bound
	set bool
}

// BoundsOf returns the smallest rectangle containing every point; ok is
// false when points is empty.
func BoundsOf(points []LatLng) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		mp = append(mp, p.Point())
	}
	return Bounds{Bound: mp.Bound(), set: true}, true
}

// IsEmpty reports whether no point was added.
func (b Bounds) IsEmpty() bool { return !b.set }

// SouthWest is the minimum corner.
func (b Bounds) SouthWest() LatLng { return FromPoint(b.Min) }

// NorthEast is the maximum corner.
func (b Bounds) NorthEast() LatLng { return FromPoint(b.Max) }

// MarshalJSON writes [[south, west], [north, east]], which L.latLngBounds takes directly.
func (b Bounds) MarshalJSON() ([]byte, error) {
	return marshalPair(b.SouthWest(), b.NorthEast())
}

// Padding is the per-side pixel inset applied when fitting bounds.
type Padding struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Uniform returns equal padding on both axes.
func Uniform(px int) Padding { return Padding{X: px, Y: px} }

// Size is a map container size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Viewport is a map centre plus integer zoom.
type Viewport struct {
	Center LatLng `json:"center"`
	Zoom   int    `json:"zoom"`
}

// Project returns Web-Mercator metres for p.
func Project(p LatLng) (x, y float64) {
	x, y, _ = toMercator(p.Lng, p.Lat, 0)
	return x, y
}

// Unproject is the inverse of Project.
func Unproject(x, y float64) LatLng {
	lng, lat, _ := fromMercator(x, y, 0)
	return LatLng{Lat: lat, Lng: lng}
}

// FitBounds computes what L.Map#fitBounds would settle on for a container of
// the given size: the largest integer zoom (capped at maxZoom) at which the
// projected bounds fit inside the padded container, centred on the projected
// midpoint. A degenerate (single point) bounds yields maxZoom.
func FitBounds(b Bounds, size Size, pad Padding, maxZoom int) Viewport {
	if b.IsEmpty() {
		return Viewport{Zoom: 0}
	}
	minX, minY := Project(b.SouthWest())
	maxX, maxY := Project(b.NorthEast())
	center := Unproject((minX+maxX)/2, (minY+maxY)/2)

	availW := float64(size.Width - 2*pad.X)
	availH := float64(size.Height - 2*pad.Y)
	if availW <= 0 || availH <= 0 {
		return Viewport{Center: center, Zoom: 0}
	}

	dx := (maxX - minX) / worldMeters * tileSize
	dy := (maxY - minY) / worldMeters * tileSize
	scale := math.Inf(1)
	if dx > 0 {
		scale = availW / dx
	}
	if dy > 0 {
		scale = math.Min(scale, availH/dy)
	}
	if math.IsInf(scale, 1) {
		return Viewport{Center: center, Zoom: maxZoom}
	}
	zoom := int(math.Floor(math.Log2(scale)))
	if zoom < 0 {
		zoom = 0
	}
	if zoom > maxZoom {
		zoom = maxZoom
	}
	return Viewport{Center: center, Zoom: zoom}
}

// FitPoints applies the single-vs-many rule used everywhere on the map: one
// point centres at closeZoom, several fit with padding, none reports false.
func FitPoints(points []LatLng, size Size, pad Padding, closeZoom, maxZoom int) (Viewport, bool) {
	switch len(points) {
	case 0:
		return Viewport{}, false
	case 1:
		return Viewport{Center: points[0], Zoom: closeZoom}, true
	}
	b, _ := BoundsOf(points)
	return FitBounds(b, size, pad, maxZoom), true
}
