package sensors

import (
	"encoding/json"
	"fmt"

	"flood-sensor-map/pkg/geo"
)

// Sensor is one flood-detection device as published in the fixtures.
type Sensor struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	PKLocation      string     `json:"pk_location"` // kilometre marker, e.g. "Pk 289+800"
	Location        geo.LatLng `json:"location"`
	Type            string     `json:"type"`
	Line            int        `json:"linea"`
	Track           int        `json:"via"`
	MaintenanceBase string     `json:"maintenanceBase"`
	Cameras         Cameras    `json:"associatedCamera,omitempty"`
}

// CameraList returns the associated cameras as a slice that is never nil,
// so templates and JSON clients always see a list.
func (s Sensor) CameraList() []string {
	if len(s.Cameras) == 0 {
		return []string{}
	}
	out := make([]string, len(s.Cameras))
	copy(out, s.Cameras)
	return out
}

// Cameras decodes the fixture field that is either absent, a single camera
// name or an array of names.
type Cameras []string

// UnmarshalJSON accepts null, "CAM" and ["CAM1", "CAM2"]. Empty names are dropped.
func (c *Cameras) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*c = nil
		} else {
			*c = Cameras{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("associatedCamera: %w", err)
	}
	out := make(Cameras, 0, len(many))
	for _, name := range many {
		if name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		out = nil
	}
	*c = out
	return nil
}

// Locations extracts the coordinates of list in order.
func Locations(list []Sensor) []geo.LatLng {
	out := make([]geo.LatLng, len(list))
	for i, s := range list {
		out[i] = s.Location
	}
	return out
}

// IDs extracts the identifiers of list in order.
func IDs(list []Sensor) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}
