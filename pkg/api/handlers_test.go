package api

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flood-sensor-map/pkg/catalog"
	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/mapview"
	"flood-sensor-map/pkg/railway"
	"flood-sensor-map/pkg/sensors"
)

type listStub []sensors.Sensor

func (l listStub) ListAll(context.Context) []sensors.Sensor { return l }

type cameraStub map[string]string

func (c cameraStub) ImageURL(_ context.Context, name string) (string, bool) {
	u, ok := c[name]
	return u, ok && u != ""
}

type lineStub []railway.Line

func (l lineStub) Lines(context.Context) []railway.Line { return l }

func fixtures() listStub {
	return listStub{
		{ID: "sensor-001", Name: "Túnel de Huerta de Colas", PKLocation: "Pk 289+800", Type: "Honeywell 470-12",
			Line: 40, Track: 1, MaintenanceBase: "Motilla", Cameras: sensors.Cameras{"CAM-PK289-V1"},
			Location: geo.LatLng{Lat: 39.5275, Lng: -1.5514}},
		{ID: "sensor-003", Name: "Túnel Rabosera", PKLocation: "Pk 346+650", Type: "SLB Systems Water Sensor",
			Line: 40, Track: 2, Cameras: sensors.Cameras{"CAM-PK351-V1", "CAM-PK351-V2"},
			Location: geo.LatLng{Lat: 39.4599, Lng: -0.9305}},
		{ID: "sensor-007", Name: "Bonete", PKLocation: "Pk 368+950", Type: "Desconocido",
			Line: 42, Track: 1, MaintenanceBase: "Albacete",
			Location: geo.LatLng{Lat: 38.9054, Lng: -1.3791}},
	}
}

type apiEnv struct {
	mux   *http.ServeMux
	cache *ResponseCache
}

func newEnv(t *testing.T, cooldown time.Duration) apiEnv {
	t.Helper()
	cache := NewResponseCache(time.Minute)
	limiter := NewRateLimiter(cooldown)
	t.Cleanup(func() {
		cache.Close()
		limiter.Close()
	})
	deps := Deps{
		Sensors: fixtures(),
		Cameras: cameraStub{"CAM-PK289-V1": "/static/cameras/CAM-PK289-V1.svg", "CAM-PK351-V1": "/static/cameras/CAM-PK351-V1.svg"},
		Types:   catalog.NewTypeCatalog(nil),
		Lines: lineStub{
			{Label: "Línea 40", Style: railway.Style{Color: "#FF0000", Weight: 4, Opacity: 0.8},
				Path: []geo.LatLng{{Lat: 39.5, Lng: -1.6}, {Lat: 39.45, Lng: -0.9}}},
			{Label: "Línea 42", Style: railway.Style{Color: "#1A4488", Weight: 4, Opacity: 0.8},
				Path: []geo.LatLng{{Lat: 38.9, Lng: -1.4}}},
		},
		Map:       mapview.Options{},
		PublicURL: "https://sensores.example",
	}
	mux := http.NewServeMux()
	NewHandler(deps, cache, limiter, zerolog.Nop()).Register(mux)
	return apiEnv{mux: mux, cache: cache}
}

func (e apiEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.10:5555"
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestOverview(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)
	got := decodeJSON[struct {
		TotalSensors int                 `json:"totalSensors"`
		Endpoints    map[string]endpoint `json:"endpoints"`
	}](t, env.get(t, "/api"))
	assert.Equal(t, 3, got.TotalSensors)
	assert.Equal(t, "/api/sensors/{id}/qr.png", got.Endpoints["sensorQR"].Path)
}

func TestSensorsFilter(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)
	tests := []struct {
		q    string
		want []string
	}{
		{"", []string{"sensor-001", "sensor-003", "sensor-007"}},
		{"42", []string{"sensor-007"}},
		{"TÚNEL", []string{"sensor-001", "sensor-003"}},
		{"zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			got := decodeJSON[struct {
				Count   int          `json:"count"`
				Sensors []sensorJSON `json:"sensors"`
			}](t, env.get(t, "/api/sensors?q="+url.QueryEscape(tt.q)))
			ids := []string{}
			for _, s := range got.Sensors {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, len(tt.want), got.Count)
		})
	}
}

func TestSensorsListAlwaysHasCameraList(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)
	rec := env.get(t, "/api/sensors?q=bonete")
	assert.Contains(t, rec.Body.String(), `"associatedCamera": []`)
}

func TestSensorDetail(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)

	type detail struct {
		MaintenanceBase string       `json:"maintenanceBase"`
		TypeImage       string       `json:"typeImage"`
		Cameras         []cameraJSON `json:"cameras"`
		Link            string       `json:"link"`
	}

	got := decodeJSON[detail](t, env.get(t, "/api/sensors/sensor-003"))
	assert.Equal(t, "No asignada", got.MaintenanceBase)
	assert.Equal(t, catalog.DefaultTypeImages["SLB Systems Water Sensor"], got.TypeImage)
	assert.Equal(t, []cameraJSON{
		{Name: "CAM-PK351-V1", URL: "/static/cameras/CAM-PK351-V1.svg", Found: true},
		{Name: "CAM-PK351-V2"},
	}, got.Cameras)
	assert.Equal(t, "https://sensores.example/?sensor=sensor-003", got.Link)

	got = decodeJSON[detail](t, env.get(t, "/api/sensors/sensor-007"))
	assert.Equal(t, "Albacete", got.MaintenanceBase)
	assert.Empty(t, got.TypeImage)
	assert.NotNil(t, got.Cameras)
	assert.Empty(t, got.Cameras)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/sensors/nope").Code)
}

func TestCamera(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)
	got := decodeJSON[cameraJSON](t, env.get(t, "/api/cameras/CAM-PK289-V1"))
	assert.Equal(t, "/static/cameras/CAM-PK289-V1.svg", got.URL)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/cameras/CAM-PK351-V2").Code)
}

func TestSensorsGeoJSON(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)
	rec := env.get(t, "/api/sensors.geojson?q=40")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{-1.5514, 39.5275}, fc.Features[0].Geometry)
	assert.Equal(t, "sensor-001", fc.Features[0].Properties.MustString("id"))
	assert.Equal(t, 40, fc.Features[0].Properties.MustInt("linea"))
}

func TestLinesGeoJSONSkipsDegenerateLines(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)
	rec := env.get(t, "/api/lines.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Línea 40", fc.Features[0].Properties.MustString("name"))
	assert.Equal(t, "#FF0000", fc.Features[0].Properties.MustString("stroke"))
	assert.Len(t, fc.Features[0].Geometry.(orb.LineString), 2)
}

func TestViewport(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)

	type viewport struct {
		Count    int           `json:"count"`
		Size     geo.Size      `json:"size"`
		Viewport *geo.Viewport `json:"viewport"`
	}

	one := decodeJSON[viewport](t, env.get(t, "/api/viewport?q=bonete&width=800&height=600"))
	require.NotNil(t, one.Viewport)
	assert.Equal(t, 14, one.Viewport.Zoom)
	assert.InDelta(t, 38.9054, one.Viewport.Center.Lat, 1e-9)
	assert.Equal(t, geo.Size{Width: 800, Height: 600}, one.Size)

	many := decodeJSON[viewport](t, env.get(t, "/api/viewport?width=99999"))
	require.NotNil(t, many.Viewport)
	assert.Equal(t, 3, many.Count)
	assert.Equal(t, maxDimension, many.Size.Width)
	assert.Less(t, many.Viewport.Zoom, 14)

	none := decodeJSON[viewport](t, env.get(t, "/api/viewport?q=zzz"))
	assert.Nil(t, none.Viewport)
	assert.Zero(t, none.Count)
}

func TestSensorQR(t *testing.T) {
	t.Parallel()
	env := newEnv(t, time.Hour)

	rec := env.get(t, "/api/sensors/sensor-001/qr.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(rec.Body)
	require.NoError(t, err)

	again := env.get(t, "/api/sensors/sensor-001/qr.png")
	assert.Equal(t, http.StatusTooManyRequests, again.Code)
	assert.NotEmpty(t, again.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/sensors/nope/qr.png").Code)
}

func TestDocs(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)
	got := decodeJSON[struct {
		Documents []struct {
			Name string `json:"name"`
		} `json:"documents"`
		CSIProtocol struct {
			Steps []json.RawMessage `json:"steps"`
		} `json:"csiProtocol"`
	}](t, env.get(t, "/api/docs"))
	assert.Len(t, got.Documents, 4)
	assert.Len(t, got.CSIProtocol.Steps, 4)
}

func TestClientIP(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:1234"
	assert.Equal(t, "198.51.100.7", clientIP(r))
	r.Header.Set("X-Forwarded-For", " 203.0.113.5 , 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(r))
}

// recoveringStub answers empty until the first load succeeds, like a
// repository whose fixture load failed once.
type recoveringStub struct {
	calls atomic.Int32
	full  listStub
	lines lineStub
}

func (s *recoveringStub) ListAll(context.Context) []sensors.Sensor {
	if s.calls.Add(1) == 1 {
		return nil
	}
	return s.full
}

func (s *recoveringStub) Lines(context.Context) []railway.Line {
	if s.calls.Load() <= 1 {
		return []railway.Line{{Label: "Línea 40"}, {Label: "Línea 42"}}
	}
	return s.lines
}

func TestDegradedGeoJSONNotCached(t *testing.T) {
	t.Parallel()
	cache := NewResponseCache(time.Minute)
	t.Cleanup(cache.Close)
	stub := &recoveringStub{full: fixtures(), lines: lineStub{
		{Label: "Línea 40", Path: []geo.LatLng{{Lat: 39.5, Lng: -1.6}, {Lat: 39.45, Lng: -0.9}}},
	}}
	mux := http.NewServeMux()
	NewHandler(Deps{Sensors: stub, Lines: stub}, cache, nil, zerolog.Nop()).Register(mux)
	env := apiEnv{mux: mux, cache: cache}

	lines := func() int {
		rec := env.get(t, "/api/lines.geojson")
		require.Equal(t, http.StatusOK, rec.Code)
		fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
		require.NoError(t, err)
		return len(fc.Features)
	}
	points := func() int {
		rec := env.get(t, "/api/sensors.geojson")
		require.Equal(t, http.StatusOK, rec.Code)
		fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
		require.NoError(t, err)
		return len(fc.Features)
	}

	assert.Equal(t, 0, lines())
	assert.Equal(t, 0, points())
	assert.Equal(t, 3, points(), "recovered list replaces the empty render")
	assert.Equal(t, 1, lines(), "recovered lines replace the empty render")

	n, err := cache.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEmptyFilterResultIsCached(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 0)
	rec := env.get(t, "/api/sensors.geojson?q=zzz")
	require.Equal(t, http.StatusOK, rec.Code)
	n, err := env.cache.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a loaded list that matches nothing is a real answer")
}
