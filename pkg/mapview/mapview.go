// Package mapview keeps the sensor markers of one map in step with the
// visible sensor list and the current selection.
//
// The mapping library is reached only through the Map, LayerGroup and Marker
// interfaces, so the same choreography drives a browser over a websocket in
// production and a recording fake in tests. Every method must be called from
// the single goroutine that owns the map; handlers registered with On and
// callbacks passed to a Scheduler run on that goroutine as well.
package mapview

import (
	"slices"
	"time"

	"flood-sensor-map/pkg/geo"
)

// Event names follow Leaflet.
type Event string

const (
	EventClick     Event = "click"
	EventMoveEnd   Event = "moveend"
	EventMouseOver Event = "mouseover"
	EventMouseOut  Event = "mouseout"
)

// Emitter registers event handlers. The returned func removes the handler and
// is safe to call more than once, including from inside the handler.
type Emitter interface {
	On(ev Event, fn func()) (off func())
}

// Icon mirrors L.icon options. Anchor and PopupAnchor are pixel offsets.
type Icon struct {
	URL         string `json:"iconUrl"`
	Size        [2]int `json:"iconSize"`
	Anchor      [2]int `json:"iconAnchor"`
	PopupAnchor [2]int `json:"popupAnchor"`
	ClassName   string `json:"className"`
}

// TooltipOptions mirrors the subset of L.tooltip options in use.
type TooltipOptions struct {
	Direction string `json:"direction,omitempty"`
	Offset    [2]int `json:"offset"`
	ClassName string `json:"className,omitempty"`
	Sticky    bool   `json:"sticky,omitempty"`
}

// MarkerOptions are applied when a marker is created.
type MarkerOptions struct {
	Icon Icon `json:"icon"`
}

// Marker is a live marker handle.
type Marker interface {
	Emitter
	LatLng() geo.LatLng
	SetIcon(icon Icon)
	SetZIndexOffset(offset int)
	// SetHovered toggles the hover highlight class on the icon.
	SetHovered(on bool)
	BindPopup(html string)
	BindTooltip(html string, opts TooltipOptions)
	OpenPopup()
	IsPopupOpen() bool
}

// LayerGroup owns the markers shown on the map.
type LayerGroup interface {
	AddLayer(mk Marker)
	RemoveLayer(mk Marker)
}

// Map is the map instance.
type Map interface {
	Emitter
	NewLayerGroup() LayerGroup
	NewMarker(at geo.LatLng, opts MarkerOptions) Marker
	// FlyTo animates to at and fires EventMoveEnd when the animation ends.
	FlyTo(at geo.LatLng, zoom int)
	SetView(at geo.LatLng, zoom int)
	FitBounds(b geo.Bounds, pad geo.Padding)
	FlyToBounds(b geo.Bounds, pad geo.Padding)
	ClosePopup()
	// InvalidateSize makes the map re-read its container size.
	InvalidateSize()
	HasLayer(mk Marker) bool
}

// Scheduler runs f after d on the map's goroutine. cancel stops a pending
// call; calling it after f ran does nothing.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// Handlers is a ready-made Emitter for Map and Marker implementations.
// Handlers run in registration order. The zero value is ready to use.
type Handlers struct {
	hs map[Event][]*handler
}

type handler struct {
	fn  func()
	off bool
}

func (h *Handlers) On(ev Event, fn func()) (off func()) {
	if h.hs == nil {
		h.hs = make(map[Event][]*handler)
	}
	live := h.hs[ev][:0]
	for _, r := range h.hs[ev] {
		if !r.off {
			live = append(live, r)
		}
	}
	r := &handler{fn: fn}
	h.hs[ev] = append(live, r)
	return func() { r.off = true }
}

// Fire runs the handlers registered for ev. Handlers added while firing wait
// for the next event.
func (h *Handlers) Fire(ev Event) {
	for _, r := range slices.Clone(h.hs[ev]) {
		if !r.off {
			r.fn()
		}
	}
}

// Active counts the handlers still registered for ev.
func (h *Handlers) Active(ev Event) int {
	n := 0
	for _, r := range h.hs[ev] {
		if !r.off {
			n++
		}
	}
	return n
}

// Once is a single-use handler registration. The handler runs at most once
// and is removed from its emitter before it runs.
type Once struct {
	off  func()
	done bool
}

// OnceOn registers fn for the next ev on src. src must not fire ev from
// inside On.
func OnceOn(src Emitter, ev Event, fn func()) *Once {
	o := &Once{}
	o.off = src.On(ev, func() {
		if o.done {
			return
		}
		o.done = true
		o.off()
		fn()
	})
	return o
}

// Cancel removes the handler without running it.
func (o *Once) Cancel() {
	if o == nil || o.done {
		return
	}
	o.done = true
	o.off()
}

// Done reports whether the handler fired or was cancelled.
func (o *Once) Done() bool { return o == nil || o.done }
