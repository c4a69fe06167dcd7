package livemap

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/mapview"
	"flood-sensor-map/pkg/shell"
)

const (
	sendBuffer = 1024
	workBuffer = 64
)

// Session is one browser's map. The goroutine running loop owns every field
// below the channels; the reader, the writer and timers only post work.
//
// Session implements mapview.Map, mapview.Scheduler and shell.Renderer by
// turning calls into commands for the browser and mirroring the little state
// (layer membership, open popup) that callers ask back.
type Session struct {
	out  chan []byte
	work chan func()
	done chan struct{}
	stop context.CancelFunc
	log  zerolog.Logger

	mapview.Handlers
	markers   map[int]*marker
	nextID    int
	onMap     map[int]bool
	openPopup int
	moveSeq   int
	shell     *shell.Shell
}

func newSession(stop context.CancelFunc, log zerolog.Logger) *Session {
	return &Session{
		out:     make(chan []byte, sendBuffer),
		work:    make(chan func(), workBuffer),
		done:    make(chan struct{}),
		stop:    stop,
		log:     log,
		markers: make(map[int]*marker),
		onMap:   make(map[int]bool),
	}
}

// post hands f to the loop. It gives up once the session ended.
func (s *Session) post(f func()) {
	select {
	case s.work <- f:
	case <-s.done:
	}
}

// loop runs posted work until ctx ends. It is the session's event loop.
func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.work:
			f()
		}
	}
}

func (s *Session) send(op string, args any) {
	data, err := json.Marshal(Command{Op: op, Args: args})
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Msg("encode command")
		return
	}
	select {
	case s.out <- data:
	default:
		// A browser that cannot keep up would see a map out of step with
		// the session; drop it instead.
		s.log.Warn().Str("op", op).Msg("send buffer full, closing session")
		s.stop()
	}
}

// dispatch applies one browser event. It runs on the loop.
func (s *Session) dispatch(ev Event) {
	switch ev.Type {
	case EvMarkerClick, EvMarkerOver, EvMarkerOut:
		mk, ok := s.markers[ev.ID]
		if !ok {
			return
		}
		switch ev.Type {
		case EvMarkerClick:
			mk.Fire(mapview.EventClick)
		case EvMarkerOver:
			mk.Fire(mapview.EventMouseOver)
		default:
			mk.Fire(mapview.EventMouseOut)
		}
	case EvMapClick:
		// Leaflet closes the open popup on a background click.
		s.openPopup = 0
		s.Fire(mapview.EventClick)
	case EvMoveEnd:
		// A move that ended before the latest commanded movement was applied
		// belongs to an older command.
		if ev.Seq < s.moveSeq {
			s.log.Debug().Int("seq", ev.Seq).Int("want", s.moveSeq).Msg("stale moveend")
			return
		}
		s.Fire(mapview.EventMoveEnd)
	case EvPopupClose:
		if s.openPopup == ev.ID {
			s.openPopup = 0
		}
	case EvSearch:
		s.shell.SetSearchTerm(ev.Term)
	case EvSelect:
		s.shell.Select(ev.Sensor)
	case EvBack:
		s.shell.Back()
	case EvReset:
		s.shell.ResetView()
	case EvOpenModal:
		s.shell.OpenModal(shell.Modal(ev.Modal))
	case EvOpenCamera:
		s.shell.OpenCamera(ev.Camera)
	case EvOpenTypeImage:
		s.shell.OpenTypeImage()
	case EvCloseModal:
		s.shell.CloseModal()
	default:
		s.log.Debug().Str("type", ev.Type).Msg("unknown event")
	}
}

// AfterFunc implements mapview.Scheduler. f runs on the loop.
func (s *Session) AfterFunc(d time.Duration, f func()) (cancel func()) {
	cancelled := false
	t := time.AfterFunc(d, func() {
		s.post(func() {
			if !cancelled {
				f()
			}
		})
	})
	return func() {
		cancelled = true
		t.Stop()
	}
}

// Render implements shell.Renderer.
func (s *Session) Render(region shell.Region, html string) {
	s.send("render", renderArgs{Region: region, HTML: html})
}

func (s *Session) NewLayerGroup() mapview.LayerGroup { return layerGroup{s: s} }

func (s *Session) NewMarker(at geo.LatLng, opts mapview.MarkerOptions) mapview.Marker {
	s.nextID++
	mk := &marker{s: s, id: s.nextID, at: at}
	s.markers[mk.id] = mk
	s.send("createMarker", markerArgs{ID: mk.id, LatLng: at, Icon: opts.Icon})
	return mk
}

func (s *Session) nextMove() int {
	s.moveSeq++
	return s.moveSeq
}

func (s *Session) FlyTo(at geo.LatLng, zoom int) {
	s.send("flyTo", viewArgs{Seq: s.nextMove(), LatLng: at, Zoom: zoom})
}

func (s *Session) SetView(at geo.LatLng, zoom int) {
	s.send("setView", viewArgs{Seq: s.nextMove(), LatLng: at, Zoom: zoom})
}

func (s *Session) FitBounds(b geo.Bounds, pad geo.Padding) {
	s.send("fitBounds", boundsArgs{Seq: s.nextMove(), Bounds: b, Padding: [2]int{pad.X, pad.Y}})
}

func (s *Session) FlyToBounds(b geo.Bounds, pad geo.Padding) {
	s.send("flyToBounds", boundsArgs{Seq: s.nextMove(), Bounds: b, Padding: [2]int{pad.X, pad.Y}})
}

func (s *Session) ClosePopup() {
	s.openPopup = 0
	s.send("closePopup", nil)
}

func (s *Session) InvalidateSize() { s.send("invalidateSize", nil) }

func (s *Session) HasLayer(mk mapview.Marker) bool {
	m, ok := mk.(*marker)
	return ok && m.s == s && s.onMap[m.id]
}

type layerGroup struct{ s *Session }

func (g layerGroup) AddLayer(mk mapview.Marker) {
	m := mk.(*marker)
	g.s.onMap[m.id] = true
	g.s.send("addLayer", idArgs{ID: m.id})
}

// RemoveLayer also forgets the marker; markers are never re-added.
func (g layerGroup) RemoveLayer(mk mapview.Marker) {
	m := mk.(*marker)
	delete(g.s.onMap, m.id)
	delete(g.s.markers, m.id)
	if g.s.openPopup == m.id {
		g.s.openPopup = 0
	}
	g.s.send("removeLayer", idArgs{ID: m.id})
}

type marker struct {
	mapview.Handlers
	s  *Session
	id int
	at geo.LatLng
}

func (m *marker) LatLng() geo.LatLng { return m.at }

func (m *marker) SetIcon(icon mapview.Icon) { m.s.send("setIcon", iconArgs{ID: m.id, Icon: icon}) }

func (m *marker) SetZIndexOffset(offset int) {
	m.s.send("setZIndexOffset", zIndexArgs{ID: m.id, Offset: offset})
}

func (m *marker) SetHovered(on bool) { m.s.send("setHovered", hoverArgs{ID: m.id, On: on}) }

func (m *marker) BindPopup(html string) { m.s.send("bindPopup", popupArgs{ID: m.id, HTML: html}) }

func (m *marker) BindTooltip(html string, opts mapview.TooltipOptions) {
	m.s.send("bindTooltip", tooltipArgs{ID: m.id, HTML: html, Options: opts})
}

func (m *marker) OpenPopup() {
	m.s.openPopup = m.id
	m.s.send("openPopup", idArgs{ID: m.id})
}

func (m *marker) IsPopupOpen() bool { return m.s.openPopup == m.id }

var (
	_ mapview.Map       = (*Session)(nil)
	_ mapview.Scheduler = (*Session)(nil)
	_ shell.Renderer    = (*Session)(nil)
)
