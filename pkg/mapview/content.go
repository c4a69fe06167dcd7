package mapview

import (
	"bytes"
	"html/template"

	"flood-sensor-map/pkg/sensors"
)

var popupTmpl = template.Must(template.New("popup").Parse(`<div class="sensor-popup">
  <div class="sensor-popup-title">{{.Name}}:</div>
  <div class="sensor-popup-row"><span class="sensor-popup-label">Línea:</span> <span>{{.Line}}</span></div>
  <div class="sensor-popup-row"><span class="sensor-popup-label">PK:</span> <span>{{.PKLocation}}</span></div>
  <div class="sensor-popup-row"><span class="sensor-popup-label">Vía:</span> <span>{{.Track}}</span></div>
  <div class="sensor-popup-row"><span class="sensor-popup-label">Tipo:</span> <span>{{.Type}}</span></div>
</div>`))

var tooltipTmpl = template.Must(template.New("tooltip").Parse(`<div class="sensor-tooltip-body">
  <div class="sensor-tooltip-name">{{.Name}}</div>
  <div class="sensor-tooltip-pk">{{.PKLocation}}</div>
</div>`))

// PopupHTML renders the popup bound to a sensor marker.
func PopupHTML(s sensors.Sensor) string { return render(popupTmpl, s) }

// TooltipHTML renders the hover tooltip of a sensor marker.
func TooltipHTML(s sensors.Sensor) string { return render(tooltipTmpl, s) }

func render(t *template.Template, s sensors.Sensor) string {
	var buf bytes.Buffer
	// Fields are plain strings and ints; Execute cannot fail on them.
	_ = t.Execute(&buf, s)
	return buf.String()
}
