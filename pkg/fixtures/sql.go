package fixtures

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/logger"
	"flood-sensor-map/pkg/railway"
	"flood-sensor-map/pkg/sensors"
)

// Schema is the layout of a SQL snapshot. It sticks to types both SQLite and
// PostgreSQL accept so one snapshot script serves either driver; SchemaFor
// adapts it for genji.
const Schema = `
CREATE TABLE IF NOT EXISTS sensors (
	id               TEXT PRIMARY KEY,
	position         INTEGER NOT NULL,
	name             TEXT NOT NULL,
	pk_location      TEXT NOT NULL,
	lat              DOUBLE PRECISION NOT NULL,
	lng              DOUBLE PRECISION NOT NULL,
	type             TEXT NOT NULL,
	linea            INTEGER NOT NULL,
	via              INTEGER NOT NULL,
	maintenance_base TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS sensor_cameras (
	sensor_id TEXT NOT NULL,
	position  INTEGER NOT NULL,
	camera    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cameras (
	name TEXT PRIMARY KEY,
	url  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS line_points (
	line TEXT NOT NULL,
	seq  INTEGER NOT NULL,
	pk   TEXT NOT NULL,
	lat  TEXT NOT NULL,
	lon  TEXT NOT NULL
);`

// SchemaFor returns Schema in the dialect of driver.
func SchemaFor(driver string) string {
	if driver == "genji" {
		return strings.ReplaceAll(Schema, "DOUBLE PRECISION", "DOUBLE")
	}
	return Schema
}

// SQLStore reads fixtures from a snapshot database. It never writes. Queries
// read single tables without joins and order rows in Go, because genji sorts
// on one column only.
type SQLStore struct {
	db   *sql.DB
	name string
	log  *logger.LoadLog
}

// OpenSQL opens driver/dsn (driver is "sqlite", "pgx" or "genji") and checks
// the connection. The drivers package must be imported by the binary.
func OpenSQL(ctx context.Context, driver, dsn string, log *logger.LoadLog) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	switch driver {
	case "sqlite", "genji":
		// Embedded engines: one connection, so ":memory:" is one database
		// and a file is never opened twice.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return NewSQLStore(db, driver, log), nil
}

// NewSQLStore wraps an already opened database.
func NewSQLStore(db *sql.DB, name string, log *logger.LoadLog) *SQLStore {
	return &SQLStore{db: db, name: name, log: log}
}

// Close releases the database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

// LoadSensors reads sensors in position order and attaches their cameras.
func (s *SQLStore) LoadSensors(ctx context.Context) ([]sensors.Sensor, error) {
	loadID := s.name + "/sensors"
	s.log.Begin(loadID)

	rows, err := s.db.QueryContext(ctx, `SELECT id, position, name, pk_location, lat, lng, type, linea, via, maintenance_base
		FROM sensors`)
	if err != nil {
		return nil, s.fail(loadID, fmt.Errorf("query sensors: %w", err))
	}
	type row struct {
		pos int
		sn  sensors.Sensor
	}
	var read []row
	for rows.Next() {
		var (
			r        row
			lat, lng float64
		)
		if err := rows.Scan(&r.sn.ID, &r.pos, &r.sn.Name, &r.sn.PKLocation, &lat, &lng, &r.sn.Type, &r.sn.Line, &r.sn.Track, &r.sn.MaintenanceBase); err != nil {
			rows.Close()
			return nil, s.fail(loadID, fmt.Errorf("scan sensor: %w", err))
		}
		r.sn.Location = geo.LatLng{Lat: lat, Lng: lng}
		if !r.sn.Location.Valid() {
			s.log.Append(loadID, fmt.Sprintf("sensor %s: coordinates %v,%v out of range", r.sn.ID, lat, lng))
			rows.Close()
			return nil, s.fail(loadID, fmt.Errorf("sensor %s: %w", r.sn.ID, geo.ErrInvalidCoordinates))
		}
		read = append(read, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, s.fail(loadID, fmt.Errorf("iterate sensors: %w", err))
	}
	rows.Close()
	s.log.Append(loadID, fmt.Sprintf("read %d sensor rows", len(read)))
	slices.SortFunc(read, func(a, b row) int {
		return cmp.Or(cmp.Compare(a.pos, b.pos), strings.Compare(a.sn.ID, b.sn.ID))
	})
	list := make([]sensors.Sensor, len(read))
	index := make(map[string]int, len(read))
	for i, r := range read {
		list[i] = r.sn
		index[r.sn.ID] = i
	}

	camRows, err := s.db.QueryContext(ctx, `SELECT sensor_id, position, camera FROM sensor_cameras`)
	if err != nil {
		return nil, s.fail(loadID, fmt.Errorf("query sensor cameras: %w", err))
	}
	defer camRows.Close()
	type camRow struct {
		sensor, camera string
		pos            int
	}
	var cams []camRow
	for camRows.Next() {
		var c camRow
		if err := camRows.Scan(&c.sensor, &c.pos, &c.camera); err != nil {
			return nil, s.fail(loadID, fmt.Errorf("scan sensor camera: %w", err))
		}
		cams = append(cams, c)
	}
	if err := camRows.Err(); err != nil {
		return nil, s.fail(loadID, fmt.Errorf("iterate sensor cameras: %w", err))
	}
	slices.SortStableFunc(cams, func(a, b camRow) int { return cmp.Compare(a.pos, b.pos) })
	for _, c := range cams {
		i, ok := index[c.sensor]
		if !ok {
			s.log.Append(loadID, "camera "+c.camera+" references unknown sensor "+c.sensor)
			continue
		}
		list[i].Cameras = append(list[i].Cameras, c.camera)
	}
	if err := validate(list); err != nil {
		return nil, s.fail(loadID, err)
	}
	s.log.Success(loadID, fmt.Sprintf("%d sensors", len(list)))
	return list, nil
}

// LoadCameras reads the camera snapshot map.
func (s *SQLStore) LoadCameras(ctx context.Context) (map[string]string, error) {
	loadID := s.name + "/cameras"
	s.log.Begin(loadID)
	rows, err := s.db.QueryContext(ctx, `SELECT name, url FROM cameras`)
	if err != nil {
		return nil, s.fail(loadID, fmt.Errorf("query cameras: %w", err))
	}
	defer rows.Close()
	m := map[string]string{}
	for rows.Next() {
		var name, url string
		if err := rows.Scan(&name, &url); err != nil {
			return nil, s.fail(loadID, fmt.Errorf("scan camera: %w", err))
		}
		m[name] = url
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(loadID, fmt.Errorf("iterate cameras: %w", err))
	}
	s.log.Success(loadID, fmt.Sprintf("%d cameras", len(m)))
	return m, nil
}

// LoadLines reads the line points of lines 40 and 42 in survey order.
func (s *SQLStore) LoadLines(ctx context.Context) (railway.LineSet, error) {
	loadID := s.name + "/lines"
	s.log.Begin(loadID)
	rows, err := s.db.QueryContext(ctx, `SELECT line, seq, pk, lat, lon FROM line_points`)
	if err != nil {
		return railway.LineSet{}, s.fail(loadID, fmt.Errorf("query line points: %w", err))
	}
	defer rows.Close()
	type pointRow struct {
		seq int
		p   railway.LinePoint
	}
	var points []pointRow
	for rows.Next() {
		var r pointRow
		if err := rows.Scan(&r.p.Line, &r.seq, &r.p.PK, &r.p.Lat, &r.p.Lon); err != nil {
			return railway.LineSet{}, s.fail(loadID, fmt.Errorf("scan line point: %w", err))
		}
		points = append(points, r)
	}
	if err := rows.Err(); err != nil {
		return railway.LineSet{}, s.fail(loadID, fmt.Errorf("iterate line points: %w", err))
	}
	slices.SortStableFunc(points, func(a, b pointRow) int { return cmp.Compare(a.seq, b.seq) })
	var set railway.LineSet
	for _, r := range points {
		switch r.p.Line {
		case "40":
			set.Line40 = append(set.Line40, r.p)
		case "42":
			set.Line42 = append(set.Line42, r.p)
		default:
			s.log.Append(loadID, "ignoring point of line "+r.p.Line)
		}
	}
	s.log.Success(loadID, fmt.Sprintf("%d+%d line points", len(set.Line40), len(set.Line42)))
	return set, nil
}

func (s *SQLStore) fail(loadID string, err error) error {
	s.log.FlushError(loadID, err)
	return err
}
