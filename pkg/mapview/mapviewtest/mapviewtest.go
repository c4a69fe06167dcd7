// Package mapviewtest provides a recording mapview.Map and a manual clock
// for tests that drive a Manager without a browser.
package mapviewtest

import (
	"fmt"
	"slices"
	"time"

	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/mapview"
)

// LL formats a coordinate the way Map records it.
func LL(p geo.LatLng) string { return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lng) }

// Map records viewport calls as strings such as "flyTo 39.5275,-1.5514 14".
type Map struct {
	mapview.Handlers
	Calls   []string
	Groups  int
	Created int
	OnMap   map[*Marker]bool
	Open    *Marker
}

func NewMap() *Map { return &Map{OnMap: make(map[*Marker]bool)} }

func (m *Map) record(format string, args ...any) {
	m.Calls = append(m.Calls, fmt.Sprintf(format, args...))
}

// Take returns and clears the recorded calls.
func (m *Map) Take() []string {
	c := m.Calls
	m.Calls = nil
	return c
}

func (m *Map) NewLayerGroup() mapview.LayerGroup {
	m.Groups++
	return &layer{m: m}
}

func (m *Map) NewMarker(at geo.LatLng, opts mapview.MarkerOptions) mapview.Marker {
	m.Created++
	return &Marker{Map: m, At: at, Icon: opts.Icon}
}

func (m *Map) FlyTo(at geo.LatLng, zoom int) { m.record("flyTo %s %d", LL(at), zoom) }

func (m *Map) SetView(at geo.LatLng, zoom int) { m.record("setView %s %d", LL(at), zoom) }

func (m *Map) FitBounds(b geo.Bounds, pad geo.Padding) {
	m.record("fitBounds %s %s pad %d", LL(b.SouthWest()), LL(b.NorthEast()), pad.X)
}

func (m *Map) FlyToBounds(b geo.Bounds, pad geo.Padding) {
	m.record("flyToBounds %s %s pad %d", LL(b.SouthWest()), LL(b.NorthEast()), pad.X)
}

func (m *Map) ClosePopup() {
	m.record("closePopup")
	if m.Open != nil {
		m.Open.PopupOpen = false
		m.Open = nil
	}
}

func (m *Map) InvalidateSize() { m.record("invalidateSize") }

func (m *Map) HasLayer(mk mapview.Marker) bool { return m.OnMap[mk.(*Marker)] }

type layer struct{ m *Map }

func (l *layer) AddLayer(mk mapview.Marker) { l.m.OnMap[mk.(*Marker)] = true }

func (l *layer) RemoveLayer(mk mapview.Marker) {
	fm := mk.(*Marker)
	delete(l.m.OnMap, fm)
	if l.m.Open == fm {
		fm.PopupOpen = false
		l.m.Open = nil
	}
}

// Marker keeps the last state pushed to it.
type Marker struct {
	mapview.Handlers
	Map         *Map
	At          geo.LatLng
	Icon        mapview.Icon
	Z           int
	Hovered     bool
	Popup       string
	Tooltip     string
	TooltipOpts mapview.TooltipOptions
	PopupOpen   bool
	Opens       int
}

func (mk *Marker) LatLng() geo.LatLng { return mk.At }

func (mk *Marker) SetIcon(icon mapview.Icon) { mk.Icon = icon }

func (mk *Marker) SetZIndexOffset(offset int) { mk.Z = offset }

func (mk *Marker) SetHovered(on bool) { mk.Hovered = on }

func (mk *Marker) BindPopup(html string) { mk.Popup = html }

func (mk *Marker) BindTooltip(html string, opts mapview.TooltipOptions) {
	mk.Tooltip = html
	mk.TooltipOpts = opts
}

func (mk *Marker) IsPopupOpen() bool { return mk.PopupOpen }

func (mk *Marker) OpenPopup() {
	if mk.Map.Open != nil {
		mk.Map.Open.PopupOpen = false
	}
	mk.PopupOpen = true
	mk.Opens++
	mk.Map.Open = mk
}

type timer struct {
	at        time.Duration
	f         func()
	cancelled bool
	fired     bool
}

// Scheduler fires callbacks only when the test advances its clock.
type Scheduler struct {
	now    time.Duration
	timers []*timer
}

func (s *Scheduler) AfterFunc(d time.Duration, f func()) func() {
	t := &timer{at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return func() { t.cancelled = true }
}

// Advance moves the clock and runs every callback that became due.
func (s *Scheduler) Advance(d time.Duration) {
	s.now += d
	for _, t := range slices.Clone(s.timers) {
		if t.cancelled || t.fired || t.at > s.now {
			continue
		}
		t.fired = true
		t.f()
	}
}

// Pending counts callbacks neither run nor cancelled.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.cancelled && !t.fired {
			n++
		}
	}
	return n
}

var (
	_ mapview.Map       = (*Map)(nil)
	_ mapview.Marker    = (*Marker)(nil)
	_ mapview.Scheduler = (*Scheduler)(nil)
)
