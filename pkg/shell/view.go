package shell

import (
	"bytes"
	"embed"
	"html/template"

	"flood-sensor-map/pkg/docs"
	"flood-sensor-map/pkg/sensors"
)

// Row is one entry of the sensor list.
type Row struct {
	ID       string
	Name     string
	PK       string
	Line     int
	Track    int
	Selected bool
}

// Detail is the detail panel of the selected sensor.
type Detail struct {
	ID              string
	Name            string
	PK              string
	Line            int
	Track           int
	Type            string
	MaintenanceBase string
	TypeImageURL    string
	HasTypeImage    bool
	// Cameras is never nil; an empty list renders the no-camera placeholder.
	Cameras []string
}

// NewDetail normalises a sensor for the detail panel.
func NewDetail(s sensors.Sensor, types TypeLookup) Detail {
	d := Detail{
		ID:              s.ID,
		Name:            s.Name,
		PK:              s.PKLocation,
		Line:            s.Line,
		Track:           s.Track,
		Type:            s.Type,
		MaintenanceBase: s.MaintenanceBase,
		Cameras:         s.CameraList(),
	}
	if d.MaintenanceBase == "" {
		d.MaintenanceBase = NotAssigned
	}
	if types != nil {
		d.TypeImageURL, d.HasTypeImage = types.ImageURL(s.Type)
	}
	return d
}

type CameraView struct {
	Name  string
	URL   string
	Found bool
}

type TypeImageView struct {
	Type  string
	URL   string
	Found bool
}

// View is everything the templates need.
type View struct {
	Term      string
	Shown     int
	Rows      []Row
	Detail    *Detail
	Modal     Modal
	Camera    *CameraView
	TypeImage *TypeImageView
	Docs      docs.Library
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("shell").Funcs(template.FuncMap{
	"noCamera":         func() string { return NoCamera },
	"viewImage":        func() string { return ViewImage },
	"imageUnavailable": func() string { return ImageUnavailable },
	"notAssigned":      func() string { return NotAssigned },
	"noSensors":        func() string { return NoSensors },
}).ParseFS(templateFS, "templates/*.html"))

// RenderPanel renders the dashboard, or the detail panel when a sensor is selected.
func RenderPanel(v View) (string, error) { return execute("panel", v) }

// RenderModal renders the open dialog; it is empty when none is open.
func RenderModal(v View) (string, error) { return execute("modal", v) }

func execute(name string, v View) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
