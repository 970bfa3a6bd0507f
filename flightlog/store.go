package flightlog

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
	"github.com/RocketScienceOfficial/rocket-nav-lib/geo"
)

// ErrNoRun reports a run ID that is not in the store.
var ErrNoRun = errors.New("flightlog: no such run")

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite flight log.
type Store struct {
	*sql.DB
}

// Run describes one recorded run.
type Run struct {
	ID      string
	Name    string
	Model   string
	Origin  geo.Origin
	Config  string
	Started float64 // Unix seconds
	Ended   sql.NullFloat64
	Steps   int
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("flightlog: schema: %w", err)
	}
	log.Printf("flightlog: opened %s\n", path)
	return &Store{db}, nil
}

// StartRun inserts a new run and returns its ID.
func (s *Store) StartRun(name, model string, origin geo.Origin, config string) (string, error) {
	id := uuid.NewString()
	_, err := s.Exec(`
		INSERT INTO runs (id, name, model, origin_lat, origin_lon, origin_alt, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, name, model, origin.Lat, origin.Lon, origin.Alt, config)
	if err != nil {
		return "", fmt.Errorf("flightlog: start run: %w", err)
	}
	return id, nil
}

// SetOrigin records the origin of a run once it is known.
func (s *Store) SetOrigin(runID string, origin geo.Origin) error {
	res, err := s.Exec(`UPDATE runs SET origin_lat = ?, origin_lon = ?, origin_alt = ? WHERE id = ?`,
		origin.Lat, origin.Lon, origin.Alt, runID)
	if err != nil {
		return fmt.Errorf("flightlog: set origin: %w", err)
	}
	return mustTouch(res, runID)
}

// EndRun stamps the end time and step count of a run.
func (s *Store) EndRun(runID string) error {
	res, err := s.Exec(`
		UPDATE runs
		SET ended_at = UNIXEPOCH('subsec'),
		    steps = (SELECT COUNT(*) FROM estimates WHERE run_id = ?)
		WHERE id = ?
	`, runID, runID)
	if err != nil {
		return fmt.Errorf("flightlog: end run: %w", err)
	}
	return mustTouch(res, runID)
}

func mustTouch(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoRun, runID)
	}
	return nil
}

// AddEstimates inserts a batch of estimates in one transaction.
func (s *Store) AddEstimates(runID string, es []Estimate) (err error) {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	stmt, err := tx.Prepare(`
		INSERT INTO estimates (run_id, t, phase, altitude, climb_rate,
			vel_n, vel_e, vel_d, pos_n, pos_e, pos_d,
			roll, pitch, heading, alt_variance, checkpoint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("flightlog: prepare: %w", err)
	}
	defer stmt.Close()
	for _, e := range es {
		var cp sql.NullString
		if e.Checkpoint != "" {
			cp = sql.NullString{String: e.Checkpoint, Valid: true}
		}
		if _, err = stmt.Exec(runID, e.T, e.Phase.String(), e.Altitude, e.ClimbRate,
			e.Vel[0], e.Vel[1], e.Vel[2], e.Pos[0], e.Pos[1], e.Pos[2],
			e.Roll, e.Pitch, e.Heading, e.AltVariance, cp); err != nil {
			return fmt.Errorf("flightlog: insert estimate: %w", err)
		}
	}
	return tx.Commit()
}

// AddEvent inserts one flight-phase event.
func (s *Store) AddEvent(runID string, ev flightphase.Event) error {
	_, err := s.Exec(`
		INSERT INTO events (run_id, kind, from_phase, to_phase, t, altitude)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, ev.Kind.String(), ev.From.String(), ev.To.String(), ev.T, ev.Altitude)
	if err != nil {
		return fmt.Errorf("flightlog: insert event: %w", err)
	}
	return nil
}

// Run returns one run.
func (s *Store) Run(runID string) (r Run, err error) {
	var config sql.NullString
	err = s.QueryRow(`
		SELECT id, name, model, origin_lat, origin_lon, origin_alt, config, started_at, ended_at, steps
		FROM runs WHERE id = ?
	`, runID).Scan(&r.ID, &r.Name, &r.Model, &r.Origin.Lat, &r.Origin.Lon, &r.Origin.Alt,
		&config, &r.Started, &r.Ended, &r.Steps)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrNoRun, runID)
	}
	r.Config = config.String
	return r, err
}

// Runs returns the IDs of every run, oldest first.
func (s *Store) Runs() (ids []string, err error) {
	rows, err := s.Query(`SELECT id FROM runs ORDER BY started_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Estimates returns the estimates of a run in time order.
func (s *Store) Estimates(runID string) (es []Estimate, err error) {
	rows, err := s.Query(`
		SELECT t, phase, altitude, climb_rate, vel_n, vel_e, vel_d, pos_n, pos_e, pos_d,
			roll, pitch, heading, alt_variance, checkpoint
		FROM estimates WHERE run_id = ? ORDER BY t, rowid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e     Estimate
			phase string
			cp    sql.NullString
		)
		if err := rows.Scan(&e.T, &phase, &e.Altitude, &e.ClimbRate,
			&e.Vel[0], &e.Vel[1], &e.Vel[2], &e.Pos[0], &e.Pos[1], &e.Pos[2],
			&e.Roll, &e.Pitch, &e.Heading, &e.AltVariance, &cp); err != nil {
			return nil, err
		}
		if err := e.Phase.UnmarshalText([]byte(phase)); err != nil {
			return nil, err
		}
		e.Checkpoint = cp.String
		es = append(es, e)
	}
	return es, rows.Err()
}

// Events returns the events of a run in time order.
func (s *Store) Events(runID string) (evs []flightphase.Event, err error) {
	rows, err := s.Query(`
		SELECT kind, from_phase, to_phase, t, altitude
		FROM events WHERE run_id = ? ORDER BY t, rowid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ev             flightphase.Event
			kind, from, to string
		)
		if err := rows.Scan(&kind, &from, &to, &ev.T, &ev.Altitude); err != nil {
			return nil, err
		}
		if err := ev.Kind.UnmarshalText([]byte(kind)); err != nil {
			return nil, err
		}
		if err := ev.From.UnmarshalText([]byte(from)); err != nil {
			return nil, err
		}
		if err := ev.To.UnmarshalText([]byte(to)); err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}
