// Package railway turns the surveyed track points of lines 40 and 42 into
// the polylines drawn under the sensor markers.
package railway

import (
	"context"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/memo"
)

// LinePoint is one surveyed point as stored in lines.json. Coordinates are
// decimal strings.
type LinePoint struct {
	Line string `json:"Linea"`
	PK   string `json:"PK"`
	Lon  string `json:"Longitud"`
	Lat  string `json:"Latitud"`
}

// LineSet is the lines.json document.
type LineSet struct {
	Line40 []LinePoint `json:"line40"`
	Line42 []LinePoint `json:"line42"`
}

// Source loads the raw line geometry.
type Source interface {
	LoadLines(ctx context.Context) (LineSet, error)
}

// Style is the Leaflet polyline look of a line.
type Style struct {
	Color   string  `json:"color"`
	Weight  int     `json:"weight"`
	Opacity float64 `json:"opacity"`
}

// Line is a drawable railway line.
type Line struct {
	Label string       `json:"label"`
	Style Style        `json:"style"`
	Path  []geo.LatLng `json:"path"`
}

// LineString returns the path for GeoJSON export.
func (l Line) LineString() orb.LineString {
	ls := make(orb.LineString, len(l.Path))
	for i, p := range l.Path {
		ls[i] = p.Point()
	}
	return ls
}

var (
	line40Style = Style{Color: "#FF0000", Weight: 4, Opacity: 0.8}
	line42Style = Style{Color: "#1A4488", Weight: 4, Opacity: 0.8}
)

// Repository caches the parsed lines.
type Repository struct {
	cache *memo.Value[LineSet]
	log   zerolog.Logger
}

// NewRepository wires a repository around src.
func NewRepository(src Source, log zerolog.Logger) *Repository {
	return &Repository{
		cache: memo.New(src.LoadLines),
		log:   log.With().Str("component", "railway").Logger(),
	}
}

// Lines returns line 40 and line 42 in that order. A load failure yields two
// lines with empty paths, so the map simply draws nothing.
func (r *Repository) Lines(ctx context.Context) []Line {
	set, _, err := r.cache.Get(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("load line geometry")
		set = LineSet{}
	}
	return []Line{
		{Label: "Línea 40", Style: line40Style, Path: r.path("40", set.Line40)},
		{Label: "Línea 42", Style: line42Style, Path: r.path("42", set.Line42)},
	}
}

func (r *Repository) path(line string, points []LinePoint) []geo.LatLng {
	out := make([]geo.LatLng, 0, len(points))
	skipped := 0
	for _, p := range points {
		ll, ok := ParsePoint(p)
		if !ok {
			skipped++
			continue
		}
		out = append(out, ll)
	}
	if skipped > 0 {
		r.log.Warn().Str("line", line).Int("skipped", skipped).Msg("unparseable line points")
	}
	return out
}

// ParsePoint converts the string coordinates of p.
func ParsePoint(p LinePoint) (geo.LatLng, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(p.Lat), 64)
	if err != nil {
		return geo.LatLng{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(p.Lon), 64)
	if err != nil {
		return geo.LatLng{}, false
	}
	ll := geo.LatLng{Lat: lat, Lng: lon}
	return ll, ll.Valid()
}
