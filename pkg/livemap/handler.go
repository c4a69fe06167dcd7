// Package livemap serves the interactive map over a websocket. Each
// connection gets its own Session whose event loop owns the viewer state and
// drives a thin Leaflet shim in the page.
package livemap

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/mapview"
	"flood-sensor-map/pkg/railway"
	"flood-sensor-map/pkg/sensors"
	"flood-sensor-map/pkg/shell"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
)

// LineSource supplies the railway polylines drawn under the markers.
type LineSource interface {
	Lines(ctx context.Context) []railway.Line
}

// Config is what the page needs besides the data.
type Config struct {
	TileURL        string
	InitialPadding int
}

// Handler upgrades requests to map sessions. Query parameters sensor and q
// preselect a sensor and a search term.
type Handler struct {
	base     context.Context
	deps     shell.Deps
	lines    LineSource
	cfg      Config
	upgrader websocket.Upgrader
	log      zerolog.Logger
	active   atomic.Int64
}

// NewHandler returns a handler whose sessions end when base is cancelled.
func NewHandler(base context.Context, deps shell.Deps, lines LineSource, cfg Config, log zerolog.Logger) *Handler {
	return &Handler{
		base:  base,
		deps:  deps,
		lines: lines,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16 << 10,
		},
		log: log.With().Str("component", "livemap").Logger(),
	}
}

// Active returns the number of open sessions.
func (h *Handler) Active() int64 { return h.active.Load() }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}
	h.active.Add(1)
	defer h.active.Add(-1)

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()

	log := h.log.With().Str("remote", r.RemoteAddr).Logger()
	s := newSession(cancel, log)
	log.Debug().Msg("session started")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeLoop(ctx, conn, s.out, log)
		cancel()
	}()
	go func() {
		readLoop(conn, s, log)
		cancel()
	}()

	h.start(ctx, s, r)
	s.loop(ctx)
	s.shell.Close()

	<-writerDone
	conn.Close()
	log.Debug().Msg("session ended")
}

// start sends the map setup and builds the shell. It runs on the loop's
// goroutine before the loop starts, so the browser sees the map configured
// before the first marker.
func (h *Handler) start(ctx context.Context, s *Session, r *http.Request) {
	all := h.deps.Sensors.ListAll(ctx)
	icon := h.deps.Map.IconURL
	if icon == "" {
		icon = mapview.DefaultIconURL
	}
	setup := InitArgs{
		TileURL: h.cfg.TileURL,
		Padding: [2]int{h.cfg.InitialPadding, h.cfg.InitialPadding},
		IconURL: icon,
		Legend:  []LegendItem{{Label: "Ubicación del Sensor", Icon: icon}},
	}
	if b, ok := geo.BoundsOf(sensors.Locations(all)); ok {
		setup.Bounds = &b
	}
	lines := h.lines.Lines(ctx)
	for _, l := range lines {
		setup.Legend = append(setup.Legend, LegendItem{Label: l.Label, Color: l.Style.Color})
	}
	s.send("init", setup)
	for _, l := range lines {
		if len(l.Path) == 0 {
			continue
		}
		s.send("addPolyline", polylineArgs{Line: l, Sticky: true})
	}

	s.shell = shell.New(ctx, h.deps, s, s, s)
	q := r.URL.Query()
	if term := q.Get("q"); term != "" {
		s.shell.SetSearchTerm(term)
	}
	if id := q.Get("sensor"); id != "" {
		s.shell.Select(id)
	}
}

func readLoop(conn *websocket.Conn, s *Session, log zerolog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("read")
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Debug().Err(err).Msg("bad event")
			continue
		}
		s.post(func() { s.dispatch(ev) })
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("write")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Msg("ping")
				return
			}
		}
	}
}
