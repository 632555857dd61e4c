package db

import (
	"fmt"

	"github.com/banshee-data/astroarchive/internal/exposure"
	"github.com/banshee-data/astroarchive/internal/geom"
	"github.com/banshee-data/astroarchive/internal/survey"
	"github.com/banshee-data/astroarchive/internal/timeutil"
)

// UpsertFootprints stores joined footprints, replacing any previous row with
// the same key, and returns the number written. All rows share one
// fetched_unix stamp.
func (db *DB) UpsertFootprints(fps []survey.Footprint) (int, error) {
	if len(fps) == 0 {
		return 0, nil
	}
	now := timeutil.UnixSeconds(db.Clock.Now())

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO footprints (
			key, md5sum, hdu_idx, filter,
			ra1, dec1, ra2, dec2, ra3, dec3, ra4, dec4,
			exposure, tau, fetched_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			md5sum = excluded.md5sum,
			hdu_idx = excluded.hdu_idx,
			filter = excluded.filter,
			ra1 = excluded.ra1, dec1 = excluded.dec1,
			ra2 = excluded.ra2, dec2 = excluded.dec2,
			ra3 = excluded.ra3, dec3 = excluded.dec3,
			ra4 = excluded.ra4, dec4 = excluded.dec4,
			exposure = excluded.exposure,
			tau = excluded.tau,
			fetched_unix = excluded.fetched_unix
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare footprint insert: %w", err)
	}
	defer stmt.Close()

	for _, fp := range fps {
		c := fp.Corners
		_, err := stmt.Exec(
			fp.Key, fp.MD5, fp.HDU, fp.Filter,
			c[0].X, c[0].Y, c[1].X, c[1].Y, c[2].X, c[2].Y, c[3].X, c[3].Y,
			fp.Exposure, fp.Tau, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert footprint %s: %w", fp.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit footprints: %w", err)
	}
	logf("stored %d footprints", len(fps))
	return len(fps), nil
}

// Footprints loads the stored records whose filter contains filter (all
// records when filter is empty), ordered by key.
func (db *DB) Footprints(filter string) ([]exposure.Record, error) {
	rows, err := db.Query(`
		SELECT key, ra1, dec1, ra2, dec2, ra3, dec3, ra4, dec4, exposure, tau
		FROM footprints
		WHERE instr(filter, ?) > 0
		ORDER BY key
	`, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query footprints: %w", err)
	}
	defer rows.Close()

	var out []exposure.Record
	for rows.Next() {
		var r exposure.Record
		var c geom.Quad
		if err := rows.Scan(
			&r.Key,
			&c[0].X, &c[0].Y, &c[1].X, &c[1].Y, &c[2].X, &c[2].Y, &c[3].X, &c[3].Y,
			&r.Exposure, &r.Tau,
		); err != nil {
			return nil, fmt.Errorf("failed to scan footprint: %w", err)
		}
		r.Corners = c
		out = append(out, r)
	}
	return out, rows.Err()
}

// FootprintCount returns the number of stored footprints.
func (db *DB) FootprintCount() (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM footprints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count footprints: %w", err)
	}
	return n, nil
}
