// Package shell holds the interaction state of one viewer session and renders
// its side panel and modals.
//
// A Shell is not safe for concurrent use. The session that owns it calls every
// method from its event loop, the same loop that owns the map.
package shell

import (
	"context"

	"github.com/rs/zerolog"

	"flood-sensor-map/pkg/docs"
	"flood-sensor-map/pkg/mapview"
	"flood-sensor-map/pkg/sensors"
)

// Texts shown in place of missing data.
const (
	NoCamera         = "Sin cámara asociada"
	ViewImage        = "Ver imagen"
	ImageUnavailable = "Imagen no disponible"
	NotAssigned      = "No asignada"
	NoSensors        = "No se encontraron sensores."
)

type SensorLister interface {
	ListAll(ctx context.Context) []sensors.Sensor
}

type CameraLookup interface {
	ImageURL(ctx context.Context, camera string) (string, bool)
}

type TypeLookup interface {
	ImageURL(sensorType string) (string, bool)
}

// Deps are shared by every session.
type Deps struct {
	Sensors SensorLister
	Cameras CameraLookup
	Types   TypeLookup
	Map     mapview.Options
	// Log is the parent logger. The shell and its marker manager each add
	// their own component field, and Map.Log is replaced by it.
	Log zerolog.Logger
}

// Region names a replaceable part of the page.
type Region string

const (
	RegionPanel Region = "panel"
	RegionModal Region = "modal"
)

// Renderer receives rendered HTML for a region.
type Renderer interface {
	Render(region Region, html string)
}

// Modal identifies the open dialog.
type Modal string

const (
	ModalNone      Modal = ""
	ModalCSI       Modal = "csi"
	ModalSystem    Modal = "system"
	ModalDocs      Modal = "docs"
	ModalCamera    Modal = "camera"
	ModalTypeImage Modal = "typeImage"
)

// Shell is one session's state.
type Shell struct {
	ctx  context.Context
	deps Deps
	r    Renderer
	mgr  *mapview.Manager
	log  zerolog.Logger

	all      []sensors.Sensor
	term     string
	visible  []sensors.Sensor
	selected string
	modal    Modal
	camera   string
}

// New loads the sensors, puts their markers on m and renders the first panel.
// ctx bounds fixture and camera lookups for the session's lifetime.
func New(ctx context.Context, deps Deps, m mapview.Map, sched mapview.Scheduler, r Renderer) *Shell {
	s := &Shell{
		ctx:  ctx,
		deps: deps,
		r:    r,
		log:  deps.Log.With().Str("component", "shell").Logger(),
	}
	opts := deps.Map
	opts.Log = deps.Log
	s.mgr = mapview.NewManager(m, sched, s.Select, opts)
	s.all = deps.Sensors.ListAll(ctx)
	s.sync()
	return s
}

// SetSearchTerm filters the list. A selection that no longer matches is dropped.
func (s *Shell) SetSearchTerm(term string) {
	if term == s.term {
		return
	}
	s.term = term
	s.sync()
}

// Select selects a visible sensor; "" clears the selection. Unknown or
// filtered-out IDs are ignored.
func (s *Shell) Select(id string) {
	if id != "" && !sensors.Contains(s.visible, id) {
		s.log.Debug().Str("sensor", id).Msg("ignoring selection of a sensor that is not shown")
		return
	}
	if id == s.selected {
		return
	}
	s.selected = id
	s.closeSensorModal()
	s.sync()
}

// Back leaves the detail panel.
func (s *Shell) Back() { s.Select("") }

// ResetView handles the reset control on the map.
func (s *Shell) ResetView() { s.mgr.ResetView() }

// MapClick handles a click on the map background.
func (s *Shell) MapClick() { s.mgr.HandleMapClick() }

// OpenModal opens one of the footer dialogs.
func (s *Shell) OpenModal(kind Modal) {
	switch kind {
	case ModalCSI, ModalSystem, ModalDocs:
	default:
		s.log.Debug().Str("modal", string(kind)).Msg("unknown modal")
		return
	}
	s.modal = kind
	s.camera = ""
	s.renderModal()
}

// OpenCamera shows the snapshot of a camera of the selected sensor.
func (s *Shell) OpenCamera(name string) {
	sel, ok := sensors.Find(s.visible, s.selected)
	if !ok {
		return
	}
	found := false
	for _, c := range sel.CameraList() {
		if c == name {
			found = true
			break
		}
	}
	if !found {
		s.log.Debug().Str("camera", name).Str("sensor", sel.ID).Msg("camera not associated with sensor")
		return
	}
	s.modal = ModalCamera
	s.camera = name
	s.renderModal()
}

// OpenTypeImage shows the illustration of the selected sensor's hardware.
func (s *Shell) OpenTypeImage() {
	if s.selected == "" {
		return
	}
	s.modal = ModalTypeImage
	s.camera = ""
	s.renderModal()
}

// CloseModal closes whatever dialog is open.
func (s *Shell) CloseModal() {
	if s.modal == ModalNone {
		return
	}
	s.modal = ModalNone
	s.camera = ""
	s.renderModal()
}

// Selected returns the selected sensor ID or "".
func (s *Shell) Selected() string { return s.selected }

// Manager exposes the marker manager for diagnostics.
func (s *Shell) Manager() *mapview.Manager { return s.mgr }

// Close releases the manager's timers and handlers.
func (s *Shell) Close() { s.mgr.Close() }

func (s *Shell) closeSensorModal() {
	if s.modal == ModalCamera || s.modal == ModalTypeImage {
		s.modal = ModalNone
		s.camera = ""
	}
}

// sync recomputes the visible list, drops a stale selection, moves the map
// and re-renders.
func (s *Shell) sync() {
	s.visible = sensors.Filter(s.all, s.term)
	if s.selected != "" && !sensors.Contains(s.visible, s.selected) {
		s.log.Debug().Str("sensor", s.selected).Str("term", s.term).Msg("selection filtered out, clearing")
		s.selected = ""
		s.closeSensorModal()
	}
	s.mgr.Update(s.visible, s.selected)
	s.renderPanel()
	s.renderModal()
}

func (s *Shell) renderPanel() {
	html, err := RenderPanel(s.View())
	if err != nil {
		s.log.Error().Err(err).Msg("render panel")
		return
	}
	s.r.Render(RegionPanel, html)
}

func (s *Shell) renderModal() {
	html, err := RenderModal(s.View())
	if err != nil {
		s.log.Error().Err(err).Msg("render modal")
		return
	}
	s.r.Render(RegionModal, html)
}

// View builds the view model of the current state.
func (s *Shell) View() View {
	v := View{
		Term:  s.term,
		Shown: len(s.visible),
		Rows:  make([]Row, len(s.visible)),
		Modal: s.modal,
		Docs:  docs.All(),
	}
	for i, sn := range s.visible {
		v.Rows[i] = Row{
			ID:       sn.ID,
			Name:     sn.Name,
			PK:       sn.PKLocation,
			Line:     sn.Line,
			Track:    sn.Track,
			Selected: sn.ID == s.selected,
		}
	}
	if sel, ok := sensors.Find(s.visible, s.selected); ok {
		d := NewDetail(sel, s.deps.Types)
		v.Detail = &d
	}
	switch s.modal {
	case ModalCamera:
		url, ok := s.deps.Cameras.ImageURL(s.ctx, s.camera)
		v.Camera = &CameraView{Name: s.camera, URL: url, Found: ok}
	case ModalTypeImage:
		if v.Detail != nil {
			v.TypeImage = &TypeImageView{Type: v.Detail.Type, URL: v.Detail.TypeImageURL, Found: v.Detail.HasTypeImage}
		}
	}
	return v
}
