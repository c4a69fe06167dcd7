package api

import (
	"github.com/paulmach/orb/geojson"

	"flood-sensor-map/pkg/railway"
	"flood-sensor-map/pkg/sensors"
)

// sensorCollection renders sensors as points. Properties use the fixture
// field names so the export can be read back by the same tools.
func sensorCollection(list []sensors.Sensor) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range list {
		f := geojson.NewFeature(s.Location.Point())
		f.ID = s.ID
		f.Properties["id"] = s.ID
		f.Properties["name"] = s.Name
		f.Properties["pk_location"] = s.PKLocation
		f.Properties["type"] = s.Type
		f.Properties["linea"] = s.Line
		f.Properties["via"] = s.Track
		f.Properties["maintenanceBase"] = s.MaintenanceBase
		f.Properties["associatedCamera"] = s.CameraList()
		fc.Append(f)
	}
	return fc
}

// lineCollection renders railway lines with their stroke style, using the
// simplestyle property names most GeoJSON viewers understand.
func lineCollection(lines []railway.Line) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range lines {
		if len(l.Path) < 2 {
			continue
		}
		f := geojson.NewFeature(l.LineString())
		f.Properties["name"] = l.Label
		f.Properties["stroke"] = l.Style.Color
		f.Properties["stroke-width"] = l.Style.Weight
		f.Properties["stroke-opacity"] = l.Style.Opacity
		fc.Append(f)
	}
	return fc
}
