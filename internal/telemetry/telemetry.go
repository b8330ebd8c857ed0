// Package telemetry persists the rover's command history, emergency-stop
// transitions, and periodic state snapshots to a local sqlite database.
package telemetry

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-robotics/rovercore/internal/command"
	"github.com/banshee-robotics/rovercore/internal/control"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the sqlite connection. It implements control.Recorder.
type Store struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	monitoring.Info("telemetry store opened", "path", path)
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Info("[migrate] " + fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool { return false }

// RecordCommand stores one executed command and its routing outcome.
func (s *Store) RecordCommand(cmd command.Command, outcome command.Outcome) error {
	_, err := s.Exec(`
		INSERT INTO commands (command_id, command_type, parameter, value1, value2, outcome, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), cmd.Type, cmd.Parameter, cmd.Value1, cmd.Value2, outcome.String(), cmd.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}
	return nil
}

// RecordEmergency stores one emergency-stop edge. active is true on entry
// into the stopped state and false on clear.
func (s *Store) RecordEmergency(active bool, reason string) error {
	_, err := s.Exec(`
		INSERT INTO emergency_events (event_id, active, reason)
		VALUES (?, ?, ?)
	`, uuid.NewString(), boolToInt(active), reason)
	if err != nil {
		return fmt.Errorf("failed to insert emergency event: %w", err)
	}
	return nil
}

// RecordSnapshot stores one aggregate state snapshot as JSON.
func (s *Store) RecordSnapshot(st control.Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO snapshots (snapshot_id, state)
		VALUES (?, ?)
	`, uuid.NewString(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// CommandRecord is one row of command history.
type CommandRecord struct {
	ID         string
	Type       string
	Parameter  string
	Value1     int
	Value2     int
	Outcome    string
	IssuedAt   time.Time
	RecordedAt time.Time
}

// RecentCommands returns up to limit commands, most recent first.
func (s *Store) RecentCommands(limit int) ([]CommandRecord, error) {
	rows, err := s.Query(`
		SELECT command_id, command_type, parameter, value1, value2, outcome, issued_at, recorded_at
		FROM commands
		ORDER BY recorded_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var r CommandRecord
		if err := rows.Scan(&r.ID, &r.Type, &r.Parameter, &r.Value1, &r.Value2, &r.Outcome, &r.IssuedAt, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan command row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EmergencyRecord is one emergency-stop edge.
type EmergencyRecord struct {
	ID         string
	Active     bool
	Reason     string
	RecordedAt time.Time
}

// RecentEmergencies returns up to limit emergency edges, most recent first.
func (s *Store) RecentEmergencies(limit int) ([]EmergencyRecord, error) {
	rows, err := s.Query(`
		SELECT event_id, active, reason, recorded_at
		FROM emergency_events
		ORDER BY recorded_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query emergency events: %w", err)
	}
	defer rows.Close()

	var out []EmergencyRecord
	for rows.Next() {
		var r EmergencyRecord
		var active int
		if err := rows.Scan(&r.ID, &active, &r.Reason, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan emergency row: %w", err)
		}
		r.Active = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
