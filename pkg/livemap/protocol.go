package livemap

import (
	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/mapview"
	"flood-sensor-map/pkg/railway"
	"flood-sensor-map/pkg/shell"
)

// Command is one instruction for the browser shim.
type Command struct {
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

// Event is one message from the browser shim.
type Event struct {
	Type   string `json:"type"`
	ID     int    `json:"id,omitempty"`     // marker events and popupClose
	Seq    int    `json:"seq,omitempty"`    // moveEnd: last movement command applied
	Sensor string `json:"sensor,omitempty"` // select
	Term   string `json:"term"`             // search
	Modal  string `json:"modal,omitempty"`  // openModal
	Camera string `json:"camera,omitempty"` // openCamera
}

// Browser event types.
const (
	EvMarkerClick   = "markerClick"
	EvMarkerOver    = "markerOver"
	EvMarkerOut     = "markerOut"
	EvMapClick      = "mapClick"
	EvMoveEnd       = "moveEnd"
	EvPopupClose    = "popupClose"
	EvSearch        = "search"
	EvSelect        = "select"
	EvBack          = "back"
	EvReset         = "reset"
	EvOpenModal     = "openModal"
	EvOpenCamera    = "openCamera"
	EvOpenTypeImage = "openTypeImage"
	EvCloseModal    = "closeModal"
)

// InitArgs configure the Leaflet map before anything else arrives.
type InitArgs struct {
	TileURL string       `json:"tileUrl"`
	Bounds  *geo.Bounds  `json:"bounds,omitempty"`
	Padding [2]int       `json:"padding"`
	Legend  []LegendItem `json:"legend"`
	IconURL string       `json:"iconUrl"`
}

// LegendItem is one row of the map legend; a row with Color draws a line swatch.
type LegendItem struct {
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

type markerArgs struct {
	ID     int          `json:"id"`
	LatLng geo.LatLng   `json:"latlng"`
	Icon   mapview.Icon `json:"icon"`
}

type idArgs struct {
	ID int `json:"id"`
}

type iconArgs struct {
	ID   int          `json:"id"`
	Icon mapview.Icon `json:"icon"`
}

type zIndexArgs struct {
	ID     int `json:"id"`
	Offset int `json:"offset"`
}

type hoverArgs struct {
	ID int  `json:"id"`
	On bool `json:"on"`
}

type popupArgs struct {
	ID   int    `json:"id"`
	HTML string `json:"html"`
}

type tooltipArgs struct {
	ID      int                    `json:"id"`
	HTML    string                 `json:"html"`
	Options mapview.TooltipOptions `json:"options"`
}

type viewArgs struct {
	Seq    int        `json:"seq"`
	LatLng geo.LatLng `json:"latlng"`
	Zoom   int        `json:"zoom"`
}

type boundsArgs struct {
	Seq     int        `json:"seq"`
	Bounds  geo.Bounds `json:"bounds"`
	Padding [2]int     `json:"padding"`
}

type renderArgs struct {
	Region shell.Region `json:"region"`
	HTML   string       `json:"html"`
}

type polylineArgs struct {
	railway.Line
	Sticky bool `json:"sticky"`
}
