// Package resultstore persists sweeps and their per-case results in SQLite.
package resultstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

// ErrNotFound is returned when a sweep does not exist
var ErrNotFound = errors.New("resultstore: not found")

// Store provides SQLite-backed result persistence. It also serves as a
// sweep.Sink recording one sweep at a time.
type Store struct {
	db      *sql.DB
	current string // sweep being recorded
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// every connection would otherwise open its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a new sweep row
func (s *Store) Begin(info sweep.Info) error {
	_, err := s.db.Exec(`
		INSERT INTO sweeps (id, plan, workers, started_at, total)
		VALUES (?, ?, ?, ?, ?)
	`, info.ID, info.Name, info.Workers, info.Started, info.Total)
	if err != nil {
		return fmt.Errorf("recording sweep %s: %w", info.ID, err)
	}
	s.current = info.ID
	return nil
}

// Append inserts one result of the current sweep
func (s *Store) Append(r domain.SweepResult) error {
	if s.current == "" {
		return errors.New("resultstore: append before begin")
	}
	fractions, err := json.Marshal(r.Case.Composition.X)
	if err != nil {
		return err
	}

	var delay sql.NullFloat64
	if !math.IsNaN(r.IgnitionDelay) {
		delay = sql.NullFloat64{Float64: r.IgnitionDelay, Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO results (sweep_id, case_index, mechanism_id, composition, fractions, temperature, pressure, ignition_delay, status, error, worker, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.current,
		r.Case.Index,
		r.Case.MechanismID,
		r.Case.Composition.Label(),
		string(fractions),
		r.Case.Temperature,
		r.Case.Pressure,
		delay,
		string(r.Status),
		r.Error,
		r.Worker,
		r.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording case %d: %w", r.Case.Index, err)
	}
	return nil
}

// Finish stores the sweep totals
func (s *Store) Finish(sum sweep.Summary) error {
	_, err := s.db.Exec(`
		UPDATE sweeps SET finished_at = ?, ok = ?, undefined = ?, failed = ?, cancelled = ?
		WHERE id = ?
	`, sum.Finished, sum.OK, sum.Undefined, sum.Failed, sum.Cancelled, sum.ID)
	s.current = ""
	return err
}

// SweepRecord is a stored sweep
type SweepRecord struct {
	ID         string
	Plan       string
	Workers    int
	StartedAt  time.Time
	FinishedAt *time.Time // nil while running or after an aborted sweep
	Total      int
	OK         int
	Undefined  int
	Failed     int
	Cancelled  bool
}

// Written returns the number of results recorded
func (r SweepRecord) Written() int {
	return r.OK + r.Undefined + r.Failed
}

const sweepColumns = `id, plan, workers, started_at, finished_at, total, ok, undefined, failed, cancelled`

// GetSweep retrieves a sweep by ID
func (s *Store) GetSweep(id string) (*SweepRecord, error) {
	row := s.db.QueryRow(`SELECT `+sweepColumns+` FROM sweeps WHERE id = ?`, id)
	rec, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListSweeps returns the most recent sweeps first; limit <= 0 returns all
func (s *Store) ListSweeps(limit int) ([]*SweepRecord, error) {
	query := `SELECT ` + sweepColumns + ` FROM sweeps ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sweeps []*SweepRecord
	for rows.Next() {
		rec, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, rec)
	}
	return sweeps, rows.Err()
}

// ListOptions filters results
type ListOptions struct {
	MechanismID string
	Status      domain.ResultStatus
}

// ListResults returns the results of a sweep ordered by case index
func (s *Store) ListResults(sweepID string, opts ListOptions) ([]domain.SweepResult, error) {
	query := `SELECT case_index, mechanism_id, composition, fractions, temperature, pressure, ignition_delay, status, error, worker, elapsed_ms
		FROM results WHERE sweep_id = ?`
	args := []interface{}{sweepID}

	if opts.MechanismID != "" {
		query += " AND mechanism_id = ?"
		args = append(args, opts.MechanismID)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY case_index"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.SweepResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSweep(row scanner) (*SweepRecord, error) {
	var rec SweepRecord
	var plan sql.NullString
	var finished sql.NullTime

	err := row.Scan(&rec.ID, &plan, &rec.Workers, &rec.StartedAt, &finished, &rec.Total, &rec.OK, &rec.Undefined, &rec.Failed, &rec.Cancelled)
	if err != nil {
		return nil, err
	}
	rec.Plan = plan.String
	if finished.Valid {
		rec.FinishedAt = &finished.Time
	}
	return &rec, nil
}

func scanResult(row scanner) (domain.SweepResult, error) {
	var r domain.SweepResult
	var label, fractions, status string
	var delay sql.NullFloat64
	var errText sql.NullString
	var worker, elapsedMS sql.NullInt64

	err := row.Scan(&r.Case.Index, &r.Case.MechanismID, &label, &fractions, &r.Case.Temperature, &r.Case.Pressure, &delay, &status, &errText, &worker, &elapsedMS)
	if err != nil {
		return r, err
	}

	r.Case.Composition = domain.Composition{Name: label}
	if err := json.Unmarshal([]byte(fractions), &r.Case.Composition.X); err != nil {
		return r, fmt.Errorf("case %d fractions: %w", r.Case.Index, err)
	}
	// a label equal to the rendered fractions means the composition was unnamed
	if label == r.Case.Composition.String() {
		r.Case.Composition.Name = ""
	}

	r.Status = domain.ResultStatus(status)
	r.IgnitionDelay = math.NaN()
	if delay.Valid {
		r.IgnitionDelay = delay.Float64
	}
	r.Error = errText.String
	r.Worker = int(worker.Int64)
	r.Elapsed = time.Duration(elapsedMS.Int64) * time.Millisecond
	return r, nil
}
