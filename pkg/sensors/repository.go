// Package sensors exposes the flood-sensor fixture list and the free-text
// filter used by the dashboard, the marker manager and the JSON API.
package sensors

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"flood-sensor-map/pkg/memo"
)

// Source loads the complete sensor list. Implementations live in pkg/fixtures.
type Source interface {
	LoadSensors(ctx context.Context) ([]Sensor, error)
}

// Repository caches the sensor list after the first successful load.
// One instance is built at startup and handed to every consumer.
type Repository struct {
	cache *memo.Value[[]Sensor]
	log   zerolog.Logger
}

// NewRepository wires a repository around src.
func NewRepository(src Source, log zerolog.Logger) *Repository {
	return &Repository{
		cache: memo.New(src.LoadSensors),
		log:   log.With().Str("component", "sensors").Logger(),
	}
}

// ListAll returns every sensor in fixture order. A failed load is logged and
// reported as an empty list; the next call retries.
func (r *Repository) ListAll(ctx context.Context) []Sensor {
	list, cached, err := r.cache.Get(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("load sensors")
		return []Sensor{}
	}
	if !cached {
		r.log.Info().Int("count", len(list)).Msg("sensors loaded")
	}
	return list
}

// Get looks a sensor up by identifier.
func (r *Repository) Get(ctx context.Context, id string) (Sensor, bool) {
	for _, s := range r.ListAll(ctx) {
		if s.ID == id {
			return s, true
		}
	}
	return Sensor{}, false
}

// Filter keeps the sensors whose PK location, name, line or track contain
// term, ignoring case. An empty term returns list itself; otherwise a new
// slice is built and list is left untouched.
func Filter(list []Sensor, term string) []Sensor {
	needle := strings.ToLower(term)
	if needle == "" {
		return list
	}
	out := make([]Sensor, 0, len(list))
	for _, s := range list {
		if Matches(s, needle) {
			out = append(out, s)
		}
	}
	return out
}

// Matches reports whether s contains the already lower-cased needle in any
// searchable field.
func Matches(s Sensor, needle string) bool {
	return strings.Contains(strings.ToLower(s.PKLocation), needle) ||
		strings.Contains(strings.ToLower(s.Name), needle) ||
		strings.Contains(strconv.Itoa(s.Line), needle) ||
		strings.Contains(strconv.Itoa(s.Track), needle)
}

// Contains reports whether id is present in list.
func Contains(list []Sensor, id string) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Find returns the sensor with id from list.
func Find(list []Sensor, id string) (Sensor, bool) {
	for _, s := range list {
		if s.ID == id {
			return s, true
		}
	}
	return Sensor{}, false
}
