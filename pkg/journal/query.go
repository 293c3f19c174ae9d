package journal

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultLimit caps listings when no limit is given.
const DefaultLimit = 50

// Visits returns the most recent visits, newest first.
func (j *Journal) Visits(ctx context.Context, limit int) ([]Visit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT v.id, v.started_at, v.ended_at, v.engaged, v.closest_mm,
			(SELECT COUNT(*) FROM turns t WHERE t.visit_id = v.id),
			(SELECT COUNT(*) FROM transitions r WHERE r.visit_id = v.id)
		FROM visits v
		ORDER BY v.started_at DESC, v.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list visits: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Visit returns one visit.
func (j *Journal) Visit(ctx context.Context, id string) (Visit, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT v.id, v.started_at, v.ended_at, v.engaged, v.closest_mm,
			(SELECT COUNT(*) FROM turns t WHERE t.visit_id = v.id),
			(SELECT COUNT(*) FROM transitions r WHERE r.visit_id = v.id)
		FROM visits v WHERE v.id = ?`, id)
	v, err := scanVisit(row)
	if err == sql.ErrNoRows {
		return Visit{}, fmt.Errorf("journal: visit %s not found", id)
	}
	return v, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVisit(s scanner) (Visit, error) {
	var (
		v       Visit
		started string
		ended   sql.NullString
		engaged int
	)
	if err := s.Scan(&v.ID, &started, &ended, &engaged, &v.ClosestMM, &v.Turns, &v.Transitions); err != nil {
		if err == sql.ErrNoRows {
			return v, err
		}
		return v, fmt.Errorf("journal: scan visit: %w", err)
	}
	v.StartedAt = parseTime(sql.NullString{String: started, Valid: true})
	v.EndedAt = parseTime(ended)
	v.Engaged = engaged != 0
	return v, nil
}

// Turns returns the conversation of a visit in order. An empty visit ID
// returns turns recorded outside any visit.
func (j *Journal) Turns(ctx context.Context, visitID string) ([]Turn, error) {
	query := `SELECT id, COALESCE(visit_id, ''), role, content, at FROM turns WHERE visit_id = ? ORDER BY id`
	args := []any{visitID}
	if visitID == "" {
		query = `SELECT id, '', role, content, at FROM turns WHERE visit_id IS NULL ORDER BY id`
		args = nil
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var at string
		if err := rows.Scan(&t.ID, &t.VisitID, &t.Role, &t.Content, &at); err != nil {
			return nil, fmt.Errorf("journal: scan turn: %w", err)
		}
		t.At = parseTime(sql.NullString{String: at, Valid: true})
		out = append(out, t)
	}
	return out, rows.Err()
}

// Transitions returns the transitions of a visit in order.
func (j *Journal) Transitions(ctx context.Context, visitID string) ([]Transition, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, COALESCE(visit_id, ''), from_state, to_state, distance_mm, at
		FROM transitions WHERE visit_id = ? ORDER BY id`, visitID)
	if err != nil {
		return nil, fmt.Errorf("journal: list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var at string
		if err := rows.Scan(&t.ID, &t.VisitID, &t.From, &t.To, &t.DistanceMM, &at); err != nil {
			return nil, fmt.Errorf("journal: scan transition: %w", err)
		}
		t.At = parseTime(sql.NullString{String: at, Valid: true})
		out = append(out, t)
	}
	return out, rows.Err()
}

// Stats counts rows in each table.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := j.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM visits),
			(SELECT COUNT(*) FROM transitions),
			(SELECT COUNT(*) FROM turns)`).Scan(&s.Visits, &s.Transitions, &s.Turns)
	if err != nil {
		return s, fmt.Errorf("journal: stats: %w", err)
	}
	return s, nil
}
