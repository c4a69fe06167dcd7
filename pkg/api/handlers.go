// Package api serves the read-only JSON, GeoJSON and QR endpoints next to the
// live map. Everything it returns comes from the same repositories the map
// sessions read.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"flood-sensor-map/pkg/docs"
	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/mapview"
	"flood-sensor-map/pkg/qrshare"
	"flood-sensor-map/pkg/railway"
	"flood-sensor-map/pkg/sensors"
	"flood-sensor-map/pkg/shell"
)

const (
	maxZoom       = 18
	defaultWidth  = 1280
	defaultHeight = 800
	maxDimension  = 8192
)

// LineSource supplies the railway lines.
type LineSource interface {
	Lines(ctx context.Context) []railway.Line
}

// Deps are the data sources behind the endpoints.
type Deps struct {
	Sensors shell.SensorLister
	Cameras shell.CameraLookup
	Types   shell.TypeLookup
	Lines   LineSource
	Map     mapview.Options
	// PublicURL is the base of QR deep links. Empty means the request's own
	// scheme and host.
	PublicURL string
	QR        qrshare.Options
}

// Handler groups the API routes.
type Handler struct {
	deps    Deps
	cache   *ResponseCache
	limiter *RateLimiter
	log     zerolog.Logger
}

// NewHandler builds the API. cache and limiter may be nil.
func NewHandler(deps Deps, cache *ResponseCache, limiter *RateLimiter, log zerolog.Logger) *Handler {
	deps.Map = deps.Map.WithDefaults()
	return &Handler{
		deps:    deps,
		cache:   cache,
		limiter: limiter,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// Register attaches the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api", h.handleOverview)
	mux.HandleFunc("GET /api/sensors", h.handleSensors)
	mux.HandleFunc("GET /api/sensors.geojson", h.handleSensorsGeoJSON)
	mux.HandleFunc("GET /api/sensors/{id}", h.handleSensor)
	mux.HandleFunc("GET /api/sensors/{id}/qr.png", h.handleSensorQR)
	mux.HandleFunc("GET /api/lines.geojson", h.handleLinesGeoJSON)
	mux.HandleFunc("GET /api/cameras/{name}", h.handleCamera)
	mux.HandleFunc("GET /api/viewport", h.handleViewport)
	mux.HandleFunc("GET /api/docs", h.handleDocs)
}

type endpoint struct {
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	Query       []string `json:"query,omitempty"`
	Description string   `json:"description"`
}

var endpoints = map[string]endpoint{
	"listSensors": {"GET", "/api/sensors", []string{"q"},
		"Sensors whose name, PK, line or track contain q (case-insensitive). Without q every sensor is listed."},
	"sensor": {"GET", "/api/sensors/{id}", nil,
		"One sensor with its cameras, camera image URLs and type illustration."},
	"sensorQR": {"GET", "/api/sensors/{id}/qr.png", nil,
		"PNG QR code of the map link that opens with the sensor selected."},
	"sensorsGeoJSON": {"GET", "/api/sensors.geojson", []string{"q"},
		"Filtered sensors as a GeoJSON FeatureCollection of points."},
	"linesGeoJSON": {"GET", "/api/lines.geojson", nil,
		"Railway lines 40 and 42 as GeoJSON line strings with their map colours."},
	"camera": {"GET", "/api/cameras/{name}", nil,
		"Snapshot URL of a camera."},
	"viewport": {"GET", "/api/viewport", []string{"q", "width", "height"},
		"Centre and zoom the map settles on for the filtered sensors in a container of the given size."},
	"docs": {"GET", "/api/docs", nil,
		"CSI action protocol, system operation and reference documents."},
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, struct {
		Title        string              `json:"title"`
		TotalSensors int                 `json:"totalSensors"`
		Endpoints    map[string]endpoint `json:"endpoints"`
	}{
		Title:        docs.Title,
		TotalSensors: len(h.deps.Sensors.ListAll(r.Context())),
		Endpoints:    endpoints,
	})
}

// sensorJSON is a sensor as the API publishes it: cameras are always a list.
type sensorJSON struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	PKLocation      string     `json:"pk_location"`
	Location        geo.LatLng `json:"location"`
	Type            string     `json:"type"`
	Line            int        `json:"linea"`
	Track           int        `json:"via"`
	MaintenanceBase string     `json:"maintenanceBase"`
	Cameras         []string   `json:"associatedCamera"`
}

func toJSON(s sensors.Sensor) sensorJSON {
	return sensorJSON{
		ID:              s.ID,
		Name:            s.Name,
		PKLocation:      s.PKLocation,
		Location:        s.Location,
		Type:            s.Type,
		Line:            s.Line,
		Track:           s.Track,
		MaintenanceBase: s.MaintenanceBase,
		Cameras:         s.CameraList(),
	}
}

func (h *Handler) filtered(r *http.Request) (string, []sensors.Sensor) {
	term := r.URL.Query().Get("q")
	return term, sensors.Filter(h.deps.Sensors.ListAll(r.Context()), term)
}

func (h *Handler) handleSensors(w http.ResponseWriter, r *http.Request) {
	term, list := h.filtered(r)
	out := make([]sensorJSON, len(list))
	for i, s := range list {
		out[i] = toJSON(s)
	}
	h.respondJSON(w, struct {
		Term    string       `json:"q"`
		Count   int          `json:"count"`
		Sensors []sensorJSON `json:"sensors"`
	}{term, len(out), out})
}

type cameraJSON struct {
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	Found bool   `json:"found"`
}

func (h *Handler) handleSensor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := sensors.Find(h.deps.Sensors.ListAll(ctx), r.PathValue("id"))
	if !ok {
		http.Error(w, "sensor not found", http.StatusNotFound)
		return
	}
	d := shell.NewDetail(s, h.deps.Types)
	cams := make([]cameraJSON, len(d.Cameras))
	for i, name := range d.Cameras {
		cams[i] = cameraJSON{Name: name}
		if h.deps.Cameras != nil {
			cams[i].URL, cams[i].Found = h.deps.Cameras.ImageURL(ctx, name)
		}
	}
	h.respondJSON(w, struct {
		Sensor          sensorJSON   `json:"sensor"`
		MaintenanceBase string       `json:"maintenanceBase"`
		TypeImage       string       `json:"typeImage,omitempty"`
		Cameras         []cameraJSON `json:"cameras"`
		Link            string       `json:"link"`
	}{
		Sensor:          toJSON(s),
		MaintenanceBase: d.MaintenanceBase,
		TypeImage:       d.TypeImageURL,
		Cameras:         cams,
		Link:            qrshare.SensorLink(h.baseURL(r), s.ID),
	})
}

func (h *Handler) handleCamera(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var url string
	var ok bool
	if h.deps.Cameras != nil {
		url, ok = h.deps.Cameras.ImageURL(r.Context(), name)
	}
	if !ok {
		http.Error(w, "camera not found", http.StatusNotFound)
		return
	}
	h.respondJSON(w, cameraJSON{Name: name, URL: url, Found: true})
}

func (h *Handler) handleSensorsGeoJSON(w http.ResponseWriter, r *http.Request) {
	all := h.deps.Sensors.ListAll(r.Context())
	term := r.URL.Query().Get("q")
	list := sensors.Filter(all, term)
	data, err := h.cache.Get(r.Context(), "sensors.geojson?q="+strings.ToLower(term), func(context.Context) ([]byte, bool, error) {
		b, err := sensorCollection(list).MarshalJSON()
		// An empty repository means the fixtures failed to load; it retries.
		return b, len(all) > 0, err
	})
	h.respondBytes(w, "application/geo+json", data, err)
}

func (h *Handler) handleLinesGeoJSON(w http.ResponseWriter, r *http.Request) {
	data, err := h.cache.Get(r.Context(), "lines.geojson", func(ctx context.Context) ([]byte, bool, error) {
		fc := lineCollection(h.deps.Lines.Lines(ctx))
		b, err := fc.MarshalJSON()
		return b, len(fc.Features) > 0, err
	})
	h.respondBytes(w, "application/geo+json", data, err)
}

func (h *Handler) handleViewport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size := geo.Size{
		Width:  clampInt(parseIntDefault(q.Get("width"), defaultWidth), 1, maxDimension),
		Height: clampInt(parseIntDefault(q.Get("height"), defaultHeight), 1, maxDimension),
	}
	term, list := h.filtered(r)
	opts := h.deps.Map
	vp, ok := geo.FitPoints(sensors.Locations(list), size, opts.Padding, opts.CloseZoom, maxZoom)

	resp := struct {
		Term     string        `json:"q"`
		Count    int           `json:"count"`
		Size     geo.Size      `json:"size"`
		Viewport *geo.Viewport `json:"viewport"`
		Bounds   *geo.Bounds   `json:"bounds,omitempty"`
	}{Term: term, Count: len(list), Size: size}
	if ok {
		resp.Viewport = &vp
	}
	if b, ok := geo.BoundsOf(sensors.Locations(list)); ok {
		resp.Bounds = &b
	}
	h.respondJSON(w, resp)
}

func (h *Handler) handleSensorQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := sensors.Find(h.deps.Sensors.ListAll(ctx), r.PathValue("id"))
	if !ok {
		http.Error(w, "sensor not found", http.StatusNotFound)
		return
	}
	link := qrshare.SensorLink(h.baseURL(r), s.ID)

	wait, err := h.limiter.Allow(ctx, clientIP(r))
	if err != nil {
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return
	}
	if wait > 0 {
		secs := int(wait.Seconds() + 0.999)
		w.Header().Set("Retry-After", strconv.Itoa(max(1, secs)))
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	data, err := h.cache.Get(ctx, "qr:"+link, func(context.Context) ([]byte, bool, error) {
		var buf bytes.Buffer
		if err := qrshare.EncodePNG(&buf, link, h.deps.QR); err != nil {
			return nil, false, fmt.Errorf("encode qr for %s: %w", s.ID, err)
		}
		return buf.Bytes(), true, nil
	})
	h.respondBytes(w, "image/png", data, err)
}

func (h *Handler) handleDocs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, docs.All())
}

// baseURL is where the map is reachable for people scanning a QR code.
func (h *Handler) baseURL(r *http.Request) string {
	if h.deps.PublicURL != "" {
		return h.deps.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

// =====================
// Utility helpers
// =====================

func (h *Handler) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		h.log.Debug().Err(err).Msg("write response")
	}
}

func (h *Handler) respondBytes(w http.ResponseWriter, contentType string, data []byte, err error) {
	if err != nil {
		h.log.Error().Err(err).Msg("render response")
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
