// Package history keeps a rolling SQLite record of monitoring cycles,
// irrigation requests and mode changes. The controller writes to it as an
// observer and the site reads from it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"furitingoasis/greenhouse/internal/controller"
)

var schema = []string{
	// at is unix milliseconds, UTC.
	`CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		automatic INTEGER NOT NULL,
		stale INTEGER NOT NULL,
		temperature REAL NOT NULL,
		soil_moisture INTEGER NOT NULL,
		air_humidity INTEGER NOT NULL,
		light INTEGER NOT NULL,
		heater INTEGER NOT NULL,
		humidity_relay INTEGER NOT NULL,
		grow_light INTEGER NOT NULL,
		vent TEXT NOT NULL,
		alert INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS irrigation_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		soil_moisture INTEGER NOT NULL,
		threshold INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mode_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		automatic INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS readings_at ON readings (at)`,
}

// Reading is one stored monitoring cycle.
type Reading struct {
	At            time.Time `json:"at"`
	Automatic     bool      `json:"automatic"`
	Stale         bool      `json:"stale"`
	TemperatureC  float64   `json:"temperature_c"`
	SoilMoisture  int       `json:"soil_moisture"`
	AirHumidity   int       `json:"air_humidity"`
	Light         int       `json:"light"`
	Heater        bool      `json:"heater"`
	HumidityRelay bool      `json:"humidity_relay"`
	GrowLight     bool      `json:"grow_light"`
	Vent          string    `json:"vent"`
	Alert         bool      `json:"alert"`
}

type Store struct {
	db           *sql.DB
	writeTimeout time.Duration
	logger       *slog.Logger
}

var _ controller.Observer = (*Store)(nil)

// Open creates or opens the database at path. Each observer write is bounded
// by writeTimeout so a locked file cannot stall the control loop.
func Open(path string, writeTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "history"))

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=1000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// One connection serialises the loop's writes with pruning.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create history schema: %w", err)
		}
	}
	logger.Info("history database ready", "path", path)

	return &Store{db: db, writeTimeout: writeTimeout, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Cycle(ctx context.Context, r controller.Report) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	f, c := r.Frame, r.Command
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (at, automatic, stale, temperature, soil_moisture, air_humidity, light,
			heater, humidity_relay, grow_light, vent, alert)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.At.UnixMilli(), r.Automatic, r.Stale, f.TemperatureC, f.SoilMoisture, f.AirHumidity, f.Light,
		c.Heater, c.HumidityRelay, c.GrowLight, c.Vent.String(), c.Alert)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *Store) Irrigation(ctx context.Context, e controller.IrrigationEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO irrigation_events (at, soil_moisture, threshold) VALUES (?, ?, ?)`,
		e.At.UnixMilli(), e.SoilMoisture, e.Threshold)
	if err != nil {
		return fmt.Errorf("insert irrigation event: %w", err)
	}
	return nil
}

func (s *Store) ModeChanged(ctx context.Context, e controller.ModeEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mode_changes (at, automatic) VALUES (?, ?)`,
		e.At.UnixMilli(), e.Automatic)
	if err != nil {
		return fmt.Errorf("insert mode change: %w", err)
	}
	return nil
}

// Readings returns at most limit readings in time order. Longer histories
// are thinned by keeping every step-th row.
func (s *Store) Readings(ctx context.Context, limit int) ([]Reading, error) {
	if limit < 1 {
		return nil, errors.New("limit must be at least 1")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings").Scan(&total); err != nil {
		return nil, fmt.Errorf("count readings: %w", err)
	}
	step := 1
	if total > limit {
		step = int(math.Ceil(float64(total) / float64(limit)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT at, automatic, stale, temperature, soil_moisture, air_humidity, light,
			heater, humidity_relay, grow_light, vent, alert
		FROM readings ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	readings := make([]Reading, 0, min(total, limit))
	for i := 0; rows.Next(); i++ {
		if i%step != 0 {
			continue
		}
		var (
			r  Reading
			at int64
		)
		err := rows.Scan(&at, &r.Automatic, &r.Stale, &r.TemperatureC, &r.SoilMoisture, &r.AirHumidity, &r.Light,
			&r.Heater, &r.HumidityRelay, &r.GrowLight, &r.Vent, &r.Alert)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.At = fromMillis(at)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return readings, nil
}

// IrrigationEvents returns the latest limit events, oldest first.
func (s *Store) IrrigationEvents(ctx context.Context, limit int) ([]controller.IrrigationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, soil_moisture, threshold FROM (
			SELECT id, at, soil_moisture, threshold FROM irrigation_events ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query irrigation events: %w", err)
	}
	defer rows.Close()

	var events []controller.IrrigationEvent
	for rows.Next() {
		var (
			e  controller.IrrigationEvent
			at int64
		)
		if err := rows.Scan(&at, &e.SoilMoisture, &e.Threshold); err != nil {
			return nil, fmt.Errorf("scan irrigation event: %w", err)
		}
		e.At = fromMillis(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ModeChanges returns the latest limit mode changes, oldest first.
func (s *Store) ModeChanges(ctx context.Context, limit int) ([]controller.ModeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, automatic FROM (
			SELECT id, at, automatic FROM mode_changes ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query mode changes: %w", err)
	}
	defer rows.Close()

	var events []controller.ModeEvent
	for rows.Next() {
		var (
			e  controller.ModeEvent
			at int64
		)
		if err := rows.Scan(&at, &e.Automatic); err != nil {
			return nil, fmt.Errorf("scan mode change: %w", err)
		}
		e.At = fromMillis(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes every record older than before and returns how many rows
// were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for _, table := range []string{"readings", "irrigation_events", "mode_changes"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE at < ?", before.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return removed, nil
}

// PruneOlderThan is the periodic retention job. Errors are logged.
func (s *Store) PruneOlderThan(retention time.Duration) {
	n, err := s.Prune(context.Background(), time.Now().Add(-retention))
	if err != nil {
		s.logger.Warn("history prune failed", "error", err)
		return
	}
	s.logger.Info("history pruned", "rows", n, "retention", retention)
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
