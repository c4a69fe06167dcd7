package geo

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseDMS covers the survey notation used by the sensor fixtures,
// including the 60-second rollover found on PICV 329.
func TestParseDMS(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
	}{
		{`39°31'39.0"N`, 39 + 31.0/60 + 39.0/3600},
		{`1°33'05.0"W`, -(1 + 33.0/60 + 5.0/3600)},
		{`38°56'60.0"N`, 38 + 57.0/60},
		{`0°27'16.4"w`, -(27.0/60 + 16.4/3600)},
		{`38°S`, -38},
		{"-0.4545", -0.4545},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDMS(tc.in)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestParseDMSInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "north", `39°31'39.0"X`} {
		_, err := ParseDMS(in)
		assert.True(t, errors.Is(err, ErrInvalidDMS), "ParseDMS(%q) err=%v", in, err)
	}
}

func TestLatLngJSON(t *testing.T) {
	t.Parallel()

	var p LatLng
	require.NoError(t, json.Unmarshal([]byte(`[39.5, -1.25]`), &p))
	assert.Equal(t, LatLng{Lat: 39.5, Lng: -1.25}, p)

	require.NoError(t, json.Unmarshal([]byte(`["38°54'19.6\"N", "1°22'44.9\"W"]`), &p))
	assert.InDelta(t, 38.905444, p.Lat, 1e-6)
	assert.InDelta(t, -1.379139, p.Lng, 1e-6)

	out, err := json.Marshal(LatLng{Lat: 1, Lng: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(out))

	err = json.Unmarshal([]byte(`[91, 0]`), &p)
	assert.True(t, errors.Is(err, ErrInvalidCoordinates))
	err = json.Unmarshal([]byte(`[1]`), &p)
	assert.True(t, errors.Is(err, ErrInvalidCoordinates))
}

func TestBoundsOf(t *testing.T) {
	t.Parallel()

	_, ok := BoundsOf(nil)
	assert.False(t, ok)
	assert.True(t, Bounds{}.IsEmpty())

	b, ok := BoundsOf([]LatLng{{Lat: 39.5, Lng: -1.5}, {Lat: 38.9, Lng: -0.4}, {Lat: 39.1, Lng: -0.9}})
	require.True(t, ok)
	assert.Equal(t, LatLng{Lat: 38.9, Lng: -1.5}, b.SouthWest())
	assert.Equal(t, LatLng{Lat: 39.5, Lng: -0.4}, b.NorthEast())

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `[[38.9,-1.5],[39.5,-0.4]]`, string(out))
}

// TestFitBounds checks the zoom against hand-computed Web-Mercator extents:
// two degrees around the equator are ~364 px wide at zoom 8 and ~728 px at 9.
func TestFitBounds(t *testing.T) {
	t.Parallel()

	b, _ := BoundsOf([]LatLng{{Lat: -1, Lng: -1}, {Lat: 1, Lng: 1}})
	vp := FitBounds(b, Size{Width: 512, Height: 512}, Padding{}, 18)
	assert.Equal(t, 8, vp.Zoom)
	assert.InDelta(t, 0, vp.Center.Lat, 1e-6)
	assert.InDelta(t, 0, vp.Center.Lng, 1e-6)

	padded := FitBounds(b, Size{Width: 512, Height: 512}, Uniform(100), 18)
	assert.Equal(t, 7, padded.Zoom)

	capped := FitBounds(b, Size{Width: 1 << 20, Height: 1 << 20}, Padding{}, 14)
	assert.Equal(t, 14, capped.Zoom)

	point, _ := BoundsOf([]LatLng{{Lat: 39, Lng: -1}})
	assert.Equal(t, 16, FitBounds(point, Size{Width: 800, Height: 600}, Uniform(100), 16).Zoom)

	squeezed := FitBounds(b, Size{Width: 100, Height: 100}, Uniform(100), 18)
	assert.Equal(t, 0, squeezed.Zoom)
}

func TestFitPoints(t *testing.T) {
	t.Parallel()

	size := Size{Width: 800, Height: 600}
	_, ok := FitPoints(nil, size, Uniform(100), 14, 18)
	assert.False(t, ok)

	one := LatLng{Lat: 38.9, Lng: -1.37}
	vp, ok := FitPoints([]LatLng{one}, size, Uniform(100), 14, 18)
	require.True(t, ok)
	assert.Equal(t, Viewport{Center: one, Zoom: 14}, vp)

	vp, ok = FitPoints([]LatLng{{Lat: 39.53, Lng: -1.55}, {Lat: 38.9, Lng: -0.45}}, size, Uniform(100), 14, 18)
	require.True(t, ok)
	assert.Equal(t, 9, vp.Zoom)
	assert.InDelta(t, -1.0, vp.Center.Lng, 1e-6)
}
