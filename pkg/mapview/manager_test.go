package mapview_test

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/mapview"
	"flood-sensor-map/pkg/mapview/mapviewtest"
	"flood-sensor-map/pkg/sensors"
)

func testSensors() []sensors.Sensor {
	return []sensors.Sensor{
		{ID: "a", Name: "Túnel de Huerta de Colas", PKLocation: "Pk 289+800", Line: 40, Track: 1, Type: "Honeywell 470-12", Location: geo.LatLng{Lat: 39.5275, Lng: -1.5514}},
		{ID: "b", Name: "Túnel Rabosera", PKLocation: "Pk 346+650", Line: 40, Track: 1, Type: "Honeywell 470-12", Location: geo.LatLng{Lat: 39.4599, Lng: -0.9305}},
		{ID: "c", Name: "PICV 329", PKLocation: "Pk 329+138", Line: 42, Track: 2, Type: "SLB Systems Water Sensor", Location: geo.LatLng{Lat: 38.95, Lng: -1.7791}},
		{ID: "d", Name: "Bonete", PKLocation: "Pk 368+950", Line: 42, Track: 1, Type: "Honeywell 470-12", Location: geo.LatLng{Lat: 38.9054, Lng: -1.3791}},
	}
}

type harness struct {
	m        *mapviewtest.Map
	sched    *mapviewtest.Scheduler
	mg       *mapview.Manager
	selected []string
}

func newHarness() *harness {
	h := &harness{m: mapviewtest.NewMap(), sched: &mapviewtest.Scheduler{}}
	h.mg = mapview.NewManager(h.m, h.sched, func(id string) { h.selected = append(h.selected, id) }, mapview.Options{})
	return h
}

// settle lets the first fit run and forgets the calls it made.
func (h *harness) settle() {
	h.sched.Advance(time.Second)
	h.m.Take()
}

func (h *harness) marker(t *testing.T, id string) *mapviewtest.Marker {
	t.Helper()
	mk, ok := h.mg.Marker(id)
	require.True(t, ok, "no marker for %s", id)
	return mk.(*mapviewtest.Marker)
}

func TestReconcileKeepsExistingMarkers(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()

	h.mg.Update(all, "")
	assert.Equal(t, []string{"a", "b", "c", "d"}, h.mg.Registered())
	assert.Equal(t, 1, h.m.Groups)
	a, c := h.marker(t, "a"), h.marker(t, "c")
	b := h.marker(t, "b")

	h.mg.Update([]sensors.Sensor{all[0], all[2]}, "")
	assert.Equal(t, []string{"a", "c"}, h.mg.Registered())
	assert.Same(t, a, h.marker(t, "a"))
	assert.Same(t, c, h.marker(t, "c"))
	assert.False(t, h.m.OnMap[b], "removed marker must leave the map")
	assert.Zero(t, b.Active(mapview.EventClick), "removed marker keeps no handlers")

	h.mg.Update(all, "")
	assert.Equal(t, []string{"a", "b", "c", "d"}, h.mg.Registered())
	assert.Same(t, a, h.marker(t, "a"))
	assert.NotSame(t, b, h.marker(t, "b"), "re-added sensor gets a fresh marker")
	assert.Equal(t, 6, h.m.Created)
	assert.Equal(t, 1, h.m.Groups, "layer group is created once")
}

func TestRegistryMatchesFilteredList(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()

	for _, term := range []string{"", "42", "túnel", "zzz", "1", "PK 3", "", "bonete"} {
		visible := sensors.Filter(all, term)
		h.mg.Update(visible, "")
		want := sensors.IDs(visible)
		sort.Strings(want)
		assert.Equal(t, want, h.mg.Registered(), "term %q", term)
		for _, id := range want {
			assert.True(t, h.m.OnMap[h.marker(t, id)])
		}
	}
}

func TestMarkerDecoration(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.mg.Update(testSensors(), "")

	mk := h.marker(t, "a")
	assert.Equal(t, [2]int{48, 48}, mk.Icon.Size)
	assert.Equal(t, [2]int{24, 48}, mk.Icon.Anchor)
	assert.Equal(t, [2]int{0, -48}, mk.Icon.PopupAnchor)
	assert.Equal(t, mapview.DefaultIconURL, mk.Icon.URL)
	assert.Equal(t, "top", mk.TooltipOpts.Direction)
	assert.Equal(t, [2]int{0, -48}, mk.TooltipOpts.Offset)
	assert.Contains(t, mk.Popup, "Túnel de Huerta de Colas")
	assert.Contains(t, mk.Popup, "Pk 289+800")
	assert.Contains(t, mk.Tooltip, "Pk 289+800")
}

func TestSelectionFliesThenOpensPopupOnce(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()
	h.mg.Update(all, "")
	h.settle()

	h.mg.Update(all, "b")
	assert.Equal(t, []string{"flyTo 39.4599,-0.9305 14"}, h.m.Take())

	b := h.marker(t, "b")
	assert.Contains(t, b.Icon.ClassName, "selected-sensor-icon")
	assert.Equal(t, 1000, b.Z)
	for _, id := range []string{"a", "c", "d"} {
		mk := h.marker(t, id)
		assert.Equal(t, "sensor-image-icon", mk.Icon.ClassName)
		assert.Zero(t, mk.Z)
	}

	assert.False(t, b.PopupOpen, "popup waits for the end of the animation")
	assert.Equal(t, 1, h.m.Active(mapview.EventMoveEnd))

	h.m.Fire(mapview.EventMoveEnd)
	assert.True(t, b.PopupOpen)
	assert.Equal(t, 1, b.Opens)
	assert.Zero(t, h.m.Active(mapview.EventMoveEnd), "one-shot listener is detached")

	h.m.Fire(mapview.EventMoveEnd)
	assert.Equal(t, 1, b.Opens)
}

func TestPopupSkippedWhenAlreadyOpenOrOffMap(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()
	h.mg.Update(all, "")

	h.mg.Update(all, "a")
	a := h.marker(t, "a")
	a.PopupOpen = true
	h.m.Fire(mapview.EventMoveEnd)
	assert.Zero(t, a.Opens)

	h.mg.Update(all, "c")
	c := h.marker(t, "c")
	delete(h.m.OnMap, c)
	h.m.Fire(mapview.EventMoveEnd)
	assert.Zero(t, c.Opens)
}

func TestNewerSelectionCancelsPendingPopup(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()
	h.mg.Update(all, "")

	h.mg.Update(all, "a")
	h.mg.Update(all, "d")
	assert.Equal(t, 1, h.m.Active(mapview.EventMoveEnd))

	h.m.Fire(mapview.EventMoveEnd)
	assert.Zero(t, h.marker(t, "a").Opens)
	assert.Equal(t, 1, h.marker(t, "d").Opens)
}

func TestClearSelectionFitsVisible(t *testing.T) {
	t.Parallel()
	all := testSensors()

	t.Run("many", func(t *testing.T) {
		h := newHarness()
		h.mg.Update(all, "a")
		h.m.Take()
		h.mg.Update(all, "")
		assert.Equal(t, []string{
			"closePopup",
			"fitBounds 38.9054,-1.7791 39.5275,-0.9305 pad 100",
		}, h.m.Take())
		assert.Zero(t, h.m.Active(mapview.EventMoveEnd))
	})

	t.Run("one", func(t *testing.T) {
		h := newHarness()
		one := all[1:2]
		h.mg.Update(one, "b")
		h.m.Take()
		h.mg.Update(one, "")
		assert.Equal(t, []string{"closePopup", "setView 39.4599,-0.9305 14"}, h.m.Take())
		h.sched.Advance(time.Second)
		assert.Empty(t, h.m.Take(), "unchanged list schedules no settle fit")
	})

	t.Run("none", func(t *testing.T) {
		h := newHarness()
		h.mg.Update(all, "a")
		h.m.Take()
		h.mg.Update(nil, "")
		assert.Equal(t, []string{"closePopup"}, h.m.Take())
		h.sched.Advance(time.Second)
		assert.Equal(t, []string{"invalidateSize"}, h.m.Take())
	})
}

func TestSelectedMarkerOpenPopupClosedOnClear(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()
	h.mg.Update(all, "a")
	h.m.Fire(mapview.EventMoveEnd)
	a := h.marker(t, "a")
	require.True(t, a.PopupOpen)

	h.mg.Update(all, "")
	assert.False(t, a.PopupOpen)
	assert.Equal(t, "sensor-image-icon", a.Icon.ClassName)
	assert.Zero(t, a.Z)
}

func TestSettleFitAfterListChange(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()

	h.mg.Update(all, "")
	assert.Empty(t, h.m.Calls)
	h.sched.Advance(99 * time.Millisecond)
	assert.Empty(t, h.m.Calls)
	h.sched.Advance(time.Millisecond)
	assert.Equal(t, []string{
		"invalidateSize",
		"fitBounds 38.9054,-1.7791 39.5275,-0.9305 pad 100",
	}, h.m.Take())

	h.mg.Update(all[3:], "")
	h.sched.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"invalidateSize", "setView 38.9054,-1.3791 14"}, h.m.Take())

	// A burst of list changes fits once, for the last list.
	h.mg.Update(all[:2], "")
	h.sched.Advance(50 * time.Millisecond)
	h.mg.Update(all[2:], "")
	h.sched.Advance(60 * time.Millisecond)
	assert.Empty(t, h.m.Calls)
	h.sched.Advance(40 * time.Millisecond)
	assert.Equal(t, []string{
		"invalidateSize",
		"fitBounds 38.9054,-1.7791 38.9500,-1.3791 pad 100",
	}, h.m.Take())
	assert.Zero(t, h.sched.Pending())
}

func TestFirstFitFramesSingleSensor(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.mg.Update(testSensors()[:1], "")
	h.sched.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{
		"invalidateSize",
		"fitBounds 39.5275,-1.5514 39.5275,-1.5514 pad 100",
	}, h.m.Take())
}

func TestSelectionCancelsPendingSettle(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()
	h.mg.Update(all, "")
	h.mg.Update(all, "c")
	h.sched.Advance(time.Second)
	assert.Equal(t, []string{"invalidateSize", "flyTo 38.9500,-1.7791 14"}, h.m.Take())
}

func TestEarlySelectionEndsFirstFitRule(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()

	// Deep link: the selection arrives before the mount-time settle.
	h.mg.Update(all, "")
	h.mg.Update(all, "c")
	h.sched.Advance(time.Second)
	assert.Equal(t, []string{"invalidateSize", "flyTo 38.9500,-1.7791 14"}, h.m.Take())

	h.mg.Update(all, "")
	assert.Equal(t, []string{"closePopup", "fitBounds 38.9054,-1.7791 39.5275,-0.9305 pad 100"}, h.m.Take())
	h.sched.Advance(time.Second)
	h.m.Take()

	h.mg.Update(all[3:], "")
	h.sched.Advance(time.Second)
	assert.Equal(t, []string{"invalidateSize", "setView 38.9054,-1.3791 14"}, h.m.Take())
}

func TestSelectionAfterMountFitSkipsInvalidate(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()
	h.mg.Update(all, "")
	h.settle()

	h.mg.Update(all[:2], "")
	h.mg.Update(all[:2], "a")
	assert.Equal(t, []string{"flyTo 39.5275,-1.5514 14"}, h.m.Take())
}

func TestInvisibleSelectionCountsAsNone(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.mg.Update(testSensors()[:2], "d")
	assert.Empty(t, h.mg.Selected())
	assert.Empty(t, h.m.Calls)
	assert.Zero(t, h.m.Active(mapview.EventMoveEnd))
}

func TestClicksAndHover(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()
	h.mg.Update(all, "")

	h.marker(t, "c").Fire(mapview.EventClick)
	h.m.Fire(mapview.EventClick)
	assert.Equal(t, []string{"c", ""}, h.selected)

	h.mg.Update(all, "c")
	c, d := h.marker(t, "c"), h.marker(t, "d")
	c.Fire(mapview.EventMouseOver)
	d.Fire(mapview.EventMouseOver)
	assert.False(t, c.Hovered, "selected marker is not highlighted")
	assert.True(t, d.Hovered)
	d.Fire(mapview.EventMouseOut)
	assert.False(t, d.Hovered)
}

func TestResetView(t *testing.T) {
	t.Parallel()
	all := testSensors()

	t.Run("clears selection", func(t *testing.T) {
		h := newHarness()
		h.mg.Update(all, "a")
		h.m.Take()
		h.mg.ResetView()
		assert.Equal(t, []string{""}, h.selected)
		assert.Empty(t, h.m.Calls)
	})

	t.Run("flies to visible", func(t *testing.T) {
		h := newHarness()
		h.mg.Update(all, "")
		h.settle()
		h.mg.ResetView()
		assert.Equal(t, []string{
			"closePopup",
			"flyToBounds 38.9054,-1.7791 39.5275,-0.9305 pad 100",
		}, h.m.Take())
	})

	t.Run("single sensor", func(t *testing.T) {
		h := newHarness()
		h.mg.Update(all[:1], "")
		h.settle()
		h.mg.ResetView()
		assert.Equal(t, []string{"closePopup", "flyTo 39.5275,-1.5514 14"}, h.m.Take())
	})

	t.Run("nothing visible", func(t *testing.T) {
		h := newHarness()
		h.mg.Update(nil, "")
		h.settle()
		h.mg.ResetView()
		assert.Equal(t, []string{"closePopup"}, h.m.Take())
	})
}

func TestCloseDetachesEverything(t *testing.T) {
	t.Parallel()
	h := newHarness()
	all := testSensors()
	h.mg.Update(all, "")
	h.mg.Update(all[:3], "b")
	h.mg.Update(all, "")

	h.mg.Close()
	assert.Zero(t, h.sched.Pending())
	assert.Zero(t, h.m.Active(mapview.EventClick))
	assert.Zero(t, h.m.Active(mapview.EventMoveEnd))
	assert.Zero(t, h.marker(t, "a").Active(mapview.EventClick))

	h.m.Take()
	h.mg.Update(all[:1], "a")
	h.mg.ResetView()
	assert.Empty(t, h.m.Calls)
}

func TestCustomOptions(t *testing.T) {
	t.Parallel()
	m, sched := mapviewtest.NewMap(), &mapviewtest.Scheduler{}
	mg := mapview.NewManager(m, sched, func(string) {}, mapview.Options{CloseZoom: 16, Padding: geo.Uniform(20), SettleDelay: time.Second, IconSize: 32})
	all := testSensors()
	mg.Update(all, "")
	sched.Advance(999 * time.Millisecond)
	assert.Empty(t, m.Calls)
	sched.Advance(time.Millisecond)
	assert.True(t, strings.HasSuffix(m.Take()[1], "pad 20"))

	mg.Update(all, "a")
	assert.Equal(t, []string{"flyTo 39.5275,-1.5514 16"}, m.Take())
	mk, _ := mg.Marker("a")
	assert.Equal(t, [2]int{16, 32}, mk.(*mapviewtest.Marker).Icon.Anchor)
}

func TestContentEscapes(t *testing.T) {
	t.Parallel()
	s := sensors.Sensor{Name: `<b>x</b>`, PKLocation: "Pk 1", Line: 40, Track: 2, Type: "T"}
	html := mapview.PopupHTML(s)
	assert.NotContains(t, html, "<b>x</b>")
	assert.Contains(t, html, "&lt;b&gt;x&lt;/b&gt;")
	assert.Contains(t, html, "Vía:")
	assert.Contains(t, mapview.TooltipHTML(s), "Pk 1")
}

func TestOnce(t *testing.T) {
	t.Parallel()
	var e mapview.Handlers
	n := 0
	o := mapview.OnceOn(&e, mapview.EventMoveEnd, func() { n++ })
	assert.False(t, o.Done())
	e.Fire(mapview.EventMoveEnd)
	e.Fire(mapview.EventMoveEnd)
	assert.Equal(t, 1, n)
	assert.True(t, o.Done())

	o2 := mapview.OnceOn(&e, mapview.EventMoveEnd, func() { n++ })
	o2.Cancel()
	e.Fire(mapview.EventMoveEnd)
	assert.Equal(t, 1, n)
	assert.Zero(t, e.Active(mapview.EventMoveEnd))

	var nilOnce *mapview.Once
	nilOnce.Cancel()
	assert.True(t, nilOnce.Done())
}
