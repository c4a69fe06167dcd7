// Package fixtures reads the static data the viewer plots: the sensor list,
// the camera snapshot map and the surveyed line geometry. Two stores are
// available: JSON files in any fs.FS (embedded or a directory) and a
// read-only SQL snapshot.
package fixtures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/logger"
	"flood-sensor-map/pkg/railway"
	"flood-sensor-map/pkg/sensors"
)

var (
	// ErrMissingFile is returned when a fixture file is absent from the store.
	ErrMissingFile = errors.New("fixture file missing")
	// ErrNoLocation is returned for a sensor without coordinates. A missing
	// location decodes to 0,0, which is off the coast of Africa.
	ErrNoLocation = errors.New("sensor has no location")
)

// File names inside a JSON store.
const (
	SensorsFile = "sensors.json"
	CamerasFile = "cameras.json"
	LinesFile   = "lines.json"
)

// Store is what the repositories need. Both JSONStore and SQLStore satisfy it.
type Store interface {
	sensors.Source
	LoadCameras(ctx context.Context) (map[string]string, error)
	railway.Source
}

// JSONStore reads fixtures from JSON files.
type JSONStore struct {
	fsys fs.FS
	name string
	log  *logger.LoadLog
}

// NewJSONStore reads from fsys; name labels the store in logs.
func NewJSONStore(fsys fs.FS, name string, log *logger.LoadLog) *JSONStore {
	return &JSONStore{fsys: fsys, name: name, log: log}
}

// LoadSensors decodes sensors.json and checks identifiers are unique.
func (s *JSONStore) LoadSensors(ctx context.Context) ([]sensors.Sensor, error) {
	loadID := s.name + "/" + SensorsFile
	var list []sensors.Sensor
	if err := s.decode(ctx, loadID, SensorsFile, &list); err != nil {
		return nil, err
	}
	if err := validate(list); err != nil {
		s.log.FlushError(loadID, err)
		return nil, err
	}
	s.log.Success(loadID, fmt.Sprintf("%d sensors", len(list)))
	return list, nil
}

// LoadCameras decodes cameras.json.
func (s *JSONStore) LoadCameras(ctx context.Context) (map[string]string, error) {
	loadID := s.name + "/" + CamerasFile
	m := map[string]string{}
	if err := s.decode(ctx, loadID, CamerasFile, &m); err != nil {
		return nil, err
	}
	s.log.Success(loadID, fmt.Sprintf("%d cameras", len(m)))
	return m, nil
}

// LoadLines decodes lines.json.
func (s *JSONStore) LoadLines(ctx context.Context) (railway.LineSet, error) {
	loadID := s.name + "/" + LinesFile
	var set railway.LineSet
	if err := s.decode(ctx, loadID, LinesFile, &set); err != nil {
		return railway.LineSet{}, err
	}
	s.log.Success(loadID, fmt.Sprintf("%d+%d line points", len(set.Line40), len(set.Line42)))
	return set, nil
}

func (s *JSONStore) decode(ctx context.Context, loadID, file string, v any) error {
	s.log.Begin(loadID)
	if err := ctx.Err(); err != nil {
		s.log.FlushError(loadID, err)
		return err
	}
	s.log.Append(loadID, "read "+file)
	data, err := fs.ReadFile(s.fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrMissingFile, file)
		} else {
			err = fmt.Errorf("read %s: %w", file, err)
		}
		s.log.FlushError(loadID, err)
		return err
	}
	s.log.Append(loadID, fmt.Sprintf("decode %d bytes", len(data)))
	if err := json.Unmarshal(data, v); err != nil {
		err = fmt.Errorf("decode %s: %w", file, err)
		s.log.FlushError(loadID, err)
		return err
	}
	return nil
}

func validate(list []sensors.Sensor) error {
	seen := make(map[string]bool, len(list))
	for i, s := range list {
		if s.ID == "" {
			return fmt.Errorf("sensor #%d has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate sensor id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Location == (geo.LatLng{}) {
			return fmt.Errorf("sensor %s: %w", s.ID, ErrNoLocation)
		}
		if !s.Location.Valid() {
			return fmt.Errorf("sensor %s: %w", s.ID, geo.ErrInvalidCoordinates)
		}
	}
	return nil
}
