// Package history keeps a DuckDB log of program runs, their events and the
// telemetry they reported.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/marcboeker/go-duckdb"
)

// flushThreshold is how many buffered event rows trigger an Appender flush.
const flushThreshold = 200

// Sample is one telemetry value reported by a run.
type Sample struct {
	RunID string `json:"runId"`
	Kind  string `json:"kind"` // "variable" or "device"
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
	State int    `json:"state,omitempty"`
	Time  int64  `json:"time"`
}

const (
	KindVariable = "variable"
	KindDevice   = "device"
)

// Store is a DuckDB-backed run history. It implements execution.Recorder.
type Store struct {
	db     *sql.DB
	dbPath string

	mu      sync.Mutex
	events  []models.RunEvent
	samples []Sample
}

// Open opens or creates the history database at dbPath. An empty path
// opens an in-memory database.
func Open(dbPath string) (*Store, error) {
	fmt.Printf("[History] Opening database at: %q\n", dbPath)
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[History] Pragma warning: %v\n", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           VARCHAR PRIMARY KEY,
			host         VARCHAR,
			target_index INTEGER NOT NULL,
			backend      VARCHAR,
			artifact     VARCHAR,
			status       VARCHAR NOT NULL,
			state        VARCHAR,
			start_time   BIGINT NOT NULL,
			end_time     BIGINT,
			error        VARCHAR,
			output_bytes INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS run_events (
			run_id VARCHAR NOT NULL,
			seq    INTEGER NOT NULL,
			type   VARCHAR NOT NULL,
			text   VARCHAR,
			ok     BOOLEAN,
			time   BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS telemetry (
			run_id VARCHAR NOT NULL,
			kind   VARCHAR NOT NULL,
			name   VARCHAR NOT NULL,
			value  VARCHAR,
			state  INTEGER,
			time   BIGINT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

// Close flushes buffered rows and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	err := s.flushLocked()
	s.mu.Unlock()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// BeginRun inserts the run row.
func (s *Store) BeginRun(info *models.RunInfo) error {
	_, err := s.db.Exec(`INSERT INTO runs
		(id, host, target_index, backend, artifact, status, state, start_time, end_time, error, output_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Host, info.TargetIndex, info.Backend, info.Artifact,
		string(info.Status), info.State, info.StartTime, info.EndTime, info.Error, info.OutputBytes)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordEvent buffers an event, and its telemetry values, for the Appender.
func (s *Store) RecordEvent(ev models.RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	if ev.Type == models.RunEventTelemetry && ev.Telemetry != nil {
		for name, v := range ev.Telemetry.Variables {
			s.samples = append(s.samples, Sample{RunID: ev.RunID, Kind: KindVariable, Name: name, Value: v.Value, Time: ev.Time})
		}
		for name, d := range ev.Telemetry.Devices {
			s.samples = append(s.samples, Sample{RunID: ev.RunID, Kind: KindDevice, Name: name, State: d.State, Time: ev.Time})
		}
	}
	if len(s.events)+len(s.samples) >= flushThreshold {
		return s.flushLocked()
	}
	return nil
}

// FinishRun flushes buffered rows and stores the final run state.
func (s *Store) FinishRun(info *models.RunInfo) error {
	s.mu.Lock()
	err := s.flushLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE runs SET status = ?, state = ?, end_time = ?, error = ?, output_bytes = ? WHERE id = ?`,
		string(info.Status), info.State, info.EndTime, info.Error, info.OutputBytes, info.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// flushLocked writes buffered rows with the native Appender API.
func (s *Store) flushLocked() error {
	if len(s.events) == 0 && len(s.samples) == 0 {
		return nil
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		events, err := duckdb.NewAppenderFromConn(dConn, "", "run_events")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer events.Close()
		for i, ev := range s.events {
			if err := events.AppendRow(ev.RunID, int32(ev.Seq), string(ev.Type), ev.Text, ev.OK, ev.Time); err != nil {
				return fmt.Errorf("failed to append event %d: %w", i, err)
			}
		}
		if err := events.Flush(); err != nil {
			return err
		}

		samples, err := duckdb.NewAppenderFromConn(dConn, "", "telemetry")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer samples.Close()
		for i, sm := range s.samples {
			value := ""
			if sm.Kind == KindVariable {
				raw, err := json.Marshal(sm.Value)
				if err != nil {
					return fmt.Errorf("failed to encode sample %d: %w", i, err)
				}
				value = string(raw)
			}
			if err := samples.AppendRow(sm.RunID, sm.Kind, sm.Name, value, int32(sm.State), sm.Time); err != nil {
				return fmt.Errorf("failed to append sample %d: %w", i, err)
			}
		}
		return samples.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	s.events = s.events[:0]
	s.samples = s.samples[:0]
	return nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(limit int) ([]*models.RunInfo, error) {
	query := `SELECT id, host, target_index, backend, artifact, status, state,
		start_time, COALESCE(end_time, 0), COALESCE(error, ''), COALESCE(output_bytes, 0)
		FROM runs ORDER BY start_time DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunInfo
	for rows.Next() {
		var r models.RunInfo
		var status string
		if err := rows.Scan(&r.ID, &r.Host, &r.TargetIndex, &r.Backend, &r.Artifact, &status, &r.State,
			&r.StartTime, &r.EndTime, &r.Error, &r.OutputBytes); err != nil {
			return nil, err
		}
		r.Status = models.RunStatus(status)
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// Events returns the recorded events of a run in emission order.
func (s *Store) Events(runID string) ([]models.RunEvent, error) {
	if err := s.flush(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT run_id, seq, type, COALESCE(text, ''), COALESCE(ok, false), time
		FROM run_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.RunEvent
	for rows.Next() {
		var ev models.RunEvent
		var typ string
		if err := rows.Scan(&ev.RunID, &ev.Seq, &typ, &ev.Text, &ev.OK, &ev.Time); err != nil {
			return nil, err
		}
		ev.Type = models.RunEventType(typ)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Telemetry returns every telemetry value a run reported, ordered by time
// then kind and name.
func (s *Store) Telemetry(runID string) ([]Sample, error) {
	if err := s.flush(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT run_id, kind, name, COALESCE(value, ''), COALESCE(state, 0), time
		FROM telemetry WHERE run_id = ? ORDER BY time, kind DESC, name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sm Sample
		var raw string
		if err := rows.Scan(&sm.RunID, &sm.Kind, &sm.Name, &raw, &sm.State, &sm.Time); err != nil {
			return nil, err
		}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &sm.Value); err != nil {
				return nil, fmt.Errorf("failed to decode sample %s: %w", sm.Name, err)
			}
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// Latest folds a run's samples into its last reported telemetry record.
func Latest(samples []Sample) *models.Telemetry {
	t := &models.Telemetry{
		Variables: map[string]models.VariableReport{},
		Devices:   map[string]models.DeviceReport{},
	}
	sorted := append([]Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	for _, sm := range sorted {
		if sm.Kind == KindDevice {
			t.Devices[sm.Name] = models.DeviceReport{State: sm.State}
		} else {
			t.Variables[sm.Name] = models.VariableReport{Value: sm.Value}
		}
	}
	return t
}

// CleanupBefore deletes runs started before cutoff together with their
// events and telemetry. It returns how many runs were removed.
func (s *Store) CleanupBefore(cutoff time.Time) (int, error) {
	if err := s.flush(); err != nil {
		return 0, err
	}
	ms := cutoff.UnixMilli()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM run_events WHERE run_id IN (SELECT id FROM runs WHERE start_time < ?)`,
		`DELETE FROM telemetry WHERE run_id IN (SELECT id FROM runs WHERE start_time < ?)`,
	} {
		if _, err := tx.Exec(stmt, ms); err != nil {
			return 0, fmt.Errorf("failed to delete history: %w", err)
		}
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE start_time < ?`, ms)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		fmt.Printf("[History] Removed %d runs older than %s\n", n, cutoff.Format(time.RFC3339))
	}
	return int(n), nil
}

func (s *Store) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}
