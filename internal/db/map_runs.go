package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/astroarchive/internal/exposure"
	"github.com/banshee-data/astroarchive/internal/timeutil"
)

// ErrRunNotFound is returned by MapRun for an unknown run ID.
var ErrRunNotFound = errors.New("map run not found")

// MapRun records one generated map: its accumulation stats, the
// configuration it was built with and where it was written.
type MapRun struct {
	RunID      uuid.UUID
	Nside      int
	Stats      exposure.Stats
	Config     json.RawMessage
	OutputPath string
	Created    time.Time
}

func (r *MapRun) String() string {
	return fmt.Sprintf("%s nside=%d %s -> %s", r.RunID, r.Nside, r.Stats, r.OutputPath)
}

// RecordMapRun inserts run, assigning a random RunID and the current time
// when they are unset.
func (db *DB) RecordMapRun(run *MapRun) error {
	if run.RunID == uuid.Nil {
		run.RunID = uuid.New()
	}
	if run.Created.IsZero() {
		run.Created = db.Clock.Now()
	}
	cfg := run.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage("{}")
	}

	_, err := db.Exec(`
		INSERT INTO map_runs (
			run_id, nside, records, accumulated, skipped, pixels_touched,
			config_json, output_path, created_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID.String(), run.Nside,
		run.Stats.Records, run.Stats.Accumulated, run.Stats.Skipped, run.Stats.PixelsTouched,
		string(cfg), run.OutputPath, timeutil.UnixSeconds(run.Created),
	)
	if err != nil {
		return fmt.Errorf("failed to record map run: %w", err)
	}
	return nil
}

const mapRunColumns = `run_id, nside, records, accumulated, skipped, pixels_touched,
	config_json, output_path, created_unix`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMapRun(s scanner) (MapRun, error) {
	var run MapRun
	var id, cfg string
	var created float64
	err := s.Scan(
		&id, &run.Nside,
		&run.Stats.Records, &run.Stats.Accumulated, &run.Stats.Skipped, &run.Stats.PixelsTouched,
		&cfg, &run.OutputPath, &created,
	)
	if err != nil {
		return MapRun{}, err
	}
	if run.RunID, err = uuid.Parse(id); err != nil {
		return MapRun{}, fmt.Errorf("invalid run_id %q: %w", id, err)
	}
	run.Config = json.RawMessage(cfg)
	run.Created = timeutil.FromUnixSeconds(created)
	return run, nil
}

// MapRuns returns the most recent runs first. limit <= 0 returns all.
func (db *DB) MapRuns(limit int) ([]MapRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+mapRunColumns+`
		FROM map_runs
		ORDER BY created_unix DESC, run_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query map runs: %w", err)
	}
	defer rows.Close()

	var out []MapRun
	for rows.Next() {
		run, err := scanMapRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan map run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// MapRun looks up a single run.
func (db *DB) MapRun(id uuid.UUID) (MapRun, error) {
	row := db.QueryRow(`SELECT `+mapRunColumns+` FROM map_runs WHERE run_id = ?`, id.String())
	run, err := scanMapRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MapRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return MapRun{}, fmt.Errorf("failed to load map run: %w", err)
	}
	return run, nil
}
