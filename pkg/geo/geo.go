// Package geo holds the coordinate types shared by the repositories, the
// marker manager and the HTTP API, together with the viewport arithmetic the
// server needs before a browser map exists (initial view, /api/viewport).
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrInvalidCoordinates is returned when a coordinate pair cannot be decoded.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// LatLng is a WGS84 position in decimal degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// Valid reports whether the position lies on the globe.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Point converts to an orb point, which is ordered [lng, lat].
func (p LatLng) Point() orb.Point { return orb.Point{p.Lng, p.Lat} }

// FromPoint is the inverse of Point.
func FromPoint(pt orb.Point) LatLng { return LatLng{Lat: pt.Lat(), Lng: pt.Lon()} }

// MarshalJSON writes the Leaflet [lat, lng] form.
func (p LatLng) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

// UnmarshalJSON accepts [lat, lng] as numbers or as DMS strings such as
// ["39°31'39.0\"N", "1°33'05.0\"W"]. Survey sheets hand out DMS, the map
// wants decimals.
func (p *LatLng) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("%w: want 2 values, got %d", ErrInvalidCoordinates, len(raw))
	}
	var vals [2]float64
	for i, r := range raw {
		v, err := decodeComponent(r)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	out := LatLng{Lat: vals[0], Lng: vals[1]}
	if !out.Valid() {
		return fmt.Errorf("%w: %v,%v out of range", ErrInvalidCoordinates, out.Lat, out.Lng)
	}
	*p = out
	return nil
}

func decodeComponent(r json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(r, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCoordinates, string(r))
	}
	return ParseDMS(s)
}

func marshalPair(a, b LatLng) ([]byte, error) {
	return json.Marshal([2][2]float64{{a.Lat, a.Lng}, {b.Lat, b.Lng}})
}
