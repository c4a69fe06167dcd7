package mapview

import (
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/sensors"
)

// DefaultIconURL is the flood sign drawn for every sensor.
const DefaultIconURL = "https://cdn3d.iconscout.com/3d/premium/thumb/flood-sign-3d-icon-png-download-10771912.png"

// Options tune the choreography. Zero fields take the defaults.
type Options struct {
	CloseZoom      int           // zoom used when flying to or centring on one sensor
	Padding        geo.Padding   // bounds-fit padding in pixels
	SettleDelay    time.Duration // wait before fitting after the visible list changed
	SelectedZIndex int
	IconURL        string
	IconSize       int
	Log            zerolog.Logger
}

// DefaultOptions returns the values the viewer ships with.
func DefaultOptions() Options {
	return Options{
		CloseZoom:      14,
		Padding:        geo.Uniform(100),
		SettleDelay:    100 * time.Millisecond,
		SelectedZIndex: 1000,
		IconURL:        DefaultIconURL,
		IconSize:       48,
		Log:            zerolog.Nop(),
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.CloseZoom <= 0 {
		o.CloseZoom = d.CloseZoom
	}
	if o.Padding == (geo.Padding{}) {
		o.Padding = d.Padding
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = d.SettleDelay
	}
	if o.SelectedZIndex == 0 {
		o.SelectedZIndex = d.SelectedZIndex
	}
	if o.IconURL == "" {
		o.IconURL = d.IconURL
	}
	if o.IconSize <= 0 {
		o.IconSize = d.IconSize
	}
	return o
}

// Icon returns the marker icon, anchored at the bottom centre so the tip of
// the sign stays on the sensor's coordinate at every zoom.
func (o Options) Icon(selected bool) Icon {
	size := o.IconSize
	class := "sensor-image-icon"
	if selected {
		class += " selected-sensor-icon"
	}
	return Icon{
		URL:         o.IconURL,
		Size:        [2]int{size, size},
		Anchor:      [2]int{size / 2, size},
		PopupAnchor: [2]int{0, -size},
		ClassName:   class,
	}
}

// Tooltip returns the options of the hover tooltip, placed above the icon.
func (o Options) Tooltip() TooltipOptions {
	return TooltipOptions{Direction: "top", Offset: [2]int{0, -o.IconSize}, ClassName: "sensor-tooltip"}
}

type entry struct {
	marker Marker
	offs   []func()
}

// Manager owns the markers of one map.
type Manager struct {
	m        Map
	sched    Scheduler
	onSelect func(id string)
	opts     Options
	log      zerolog.Logger

	layer      LayerGroup
	markers    map[string]*entry
	visible    []sensors.Sensor
	visibleIDs []string
	selected   string

	started      bool
	fittedOnce   bool
	popupOnce    *Once
	cancelSettle func()
	offMapClick  func()
	closed       bool
}

// NewManager wires a manager to m. onSelect is called with a sensor ID when a
// marker is clicked and with "" when the selection should be cleared; the
// caller is expected to answer with Update.
func NewManager(m Map, sched Scheduler, onSelect func(id string), opts Options) *Manager {
	opts = opts.WithDefaults()
	return &Manager{
		m:        m,
		sched:    sched,
		onSelect: onSelect,
		opts:     opts,
		log:      opts.Log.With().Str("component", "mapview").Logger(),
		markers:  make(map[string]*entry),
	}
}

// Update brings the map in line with the visible sensors and the selection.
// A selectedID that is not visible counts as no selection.
func (mg *Manager) Update(visible []sensors.Sensor, selectedID string) {
	if mg.closed {
		return
	}
	first := !mg.started
	if first {
		mg.started = true
		mg.offMapClick = mg.m.On(EventClick, mg.HandleMapClick)
	}

	ids := sensors.IDs(visible)
	listChanged := first || !slices.Equal(ids, mg.visibleIDs)
	mg.visible = visible
	mg.visibleIDs = ids
	if listChanged {
		mg.reconcile(visible)
	}

	if selectedID != "" && mg.markers[selectedID] == nil {
		selectedID = ""
	}
	selChanged := selectedID != mg.selected
	mg.selected = selectedID

	if listChanged || selChanged {
		mg.refreshIcons()
	}

	switch {
	case selChanged && selectedID != "":
		mg.flyToSelected()
	case selChanged:
		mg.cancelPopup()
		mg.m.ClosePopup()
		mg.fitVisible(false)
	}

	if listChanged && selectedID == "" {
		mg.scheduleSettle()
	}
}

// reconcile removes markers that left the list and creates markers for new
// IDs. Markers present before and after are left alone.
func (mg *Manager) reconcile(visible []sensors.Sensor) {
	if mg.layer == nil {
		mg.layer = mg.m.NewLayerGroup()
	}
	keep := make(map[string]bool, len(visible))
	for _, s := range visible {
		keep[s.ID] = true
	}
	removed := 0
	for id, e := range mg.markers {
		if keep[id] {
			continue
		}
		mg.layer.RemoveLayer(e.marker)
		for _, off := range e.offs {
			off()
		}
		delete(mg.markers, id)
		removed++
	}
	added := 0
	for _, s := range visible {
		if _, ok := mg.markers[s.ID]; ok {
			continue
		}
		mg.markers[s.ID] = mg.newMarker(s)
		added++
	}
	mg.log.Debug().Int("added", added).Int("removed", removed).Int("markers", len(mg.markers)).Msg("reconciled markers")
}

func (mg *Manager) newMarker(s sensors.Sensor) *entry {
	id := s.ID
	mk := mg.m.NewMarker(s.Location, MarkerOptions{Icon: mg.opts.Icon(false)})
	e := &entry{marker: mk}
	e.offs = append(e.offs,
		mk.On(EventClick, func() { mg.onSelect(id) }),
		mk.On(EventMouseOver, func() {
			if mg.selected != id {
				mk.SetHovered(true)
			}
		}),
		mk.On(EventMouseOut, func() { mk.SetHovered(false) }),
	)
	mk.BindPopup(PopupHTML(s))
	mk.BindTooltip(TooltipHTML(s), mg.opts.Tooltip())
	mg.layer.AddLayer(mk)
	return e
}

func (mg *Manager) refreshIcons() {
	for id, e := range mg.markers {
		selected := id == mg.selected
		z := 0
		if selected {
			z = mg.opts.SelectedZIndex
		}
		e.marker.SetIcon(mg.opts.Icon(selected))
		e.marker.SetZIndexOffset(z)
	}
}

// flyToSelected animates to the selected marker and opens its popup once the
// movement has finished, so the popup is never placed at the old position.
func (mg *Manager) flyToSelected() {
	mg.stopSettle()
	if !mg.fittedOnce {
		// A selection before the mount-time settle replaces it, including
		// the size check; later fits follow the single-sensor rule.
		mg.m.InvalidateSize()
		mg.fittedOnce = true
	}
	mg.cancelPopup()

	mk := mg.markers[mg.selected].marker
	var once *Once
	once = OnceOn(mg.m, EventMoveEnd, func() {
		if mg.popupOnce == once {
			mg.popupOnce = nil
		}
		if mg.m.HasLayer(mk) && !mk.IsPopupOpen() {
			mk.OpenPopup()
		}
	})
	mg.popupOnce = once
	mg.m.FlyTo(mk.LatLng(), mg.opts.CloseZoom)
}

func (mg *Manager) cancelPopup() {
	mg.popupOnce.Cancel()
	mg.popupOnce = nil
}

// fitVisible frames the visible sensors. One sensor is centred at the close
// zoom unless boundsOnly is set; none leaves the view alone.
func (mg *Manager) fitVisible(boundsOnly bool) {
	switch n := len(mg.visible); {
	case n == 0:
		return
	case n == 1 && !boundsOnly:
		mg.m.SetView(mg.visible[0].Location, mg.opts.CloseZoom)
	default:
		b, _ := geo.BoundsOf(sensors.Locations(mg.visible))
		mg.m.FitBounds(b, mg.opts.Padding)
	}
}

func (mg *Manager) scheduleSettle() {
	mg.stopSettle()
	mg.cancelSettle = mg.sched.AfterFunc(mg.opts.SettleDelay, func() {
		mg.cancelSettle = nil
		if mg.closed {
			return
		}
		mg.m.InvalidateSize()
		// The mount-time fit frames the whole set even when it is a single sensor.
		mg.fitVisible(!mg.fittedOnce)
		mg.fittedOnce = true
	})
}

func (mg *Manager) stopSettle() {
	if mg.cancelSettle != nil {
		mg.cancelSettle()
		mg.cancelSettle = nil
	}
}

// HandleMapClick clears the selection. It is registered on the map's click
// event; marker clicks do not reach it.
func (mg *Manager) HandleMapClick() {
	mg.onSelect("")
}

// ResetView clears the selection if there is one, which refits the view.
// Otherwise it animates back to the visible sensors.
func (mg *Manager) ResetView() {
	if mg.closed {
		return
	}
	if mg.selected != "" {
		mg.onSelect("")
		return
	}
	mg.m.ClosePopup()
	switch n := len(mg.visible); {
	case n == 0:
	case n == 1:
		mg.m.FlyTo(mg.visible[0].Location, mg.opts.CloseZoom)
	default:
		b, _ := geo.BoundsOf(sensors.Locations(mg.visible))
		mg.m.FlyToBounds(b, mg.opts.Padding)
	}
}

// Selected returns the selected sensor ID or "".
func (mg *Manager) Selected() string { return mg.selected }

// Marker returns the live marker of a sensor.
func (mg *Manager) Marker(id string) (Marker, bool) {
	e, ok := mg.markers[id]
	if !ok {
		return nil, false
	}
	return e.marker, true
}

// Registered returns the IDs that currently have a marker, sorted.
func (mg *Manager) Registered() []string {
	ids := make([]string, 0, len(mg.markers))
	for id := range mg.markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close drops pending timers and handlers. The markers stay on the map.
func (mg *Manager) Close() {
	if mg.closed {
		return
	}
	mg.closed = true
	mg.stopSettle()
	mg.cancelPopup()
	if mg.offMapClick != nil {
		mg.offMapClick()
	}
	for _, e := range mg.markers {
		for _, off := range e.offs {
			off()
		}
		e.offs = nil
	}
}
