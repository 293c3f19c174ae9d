// Package journal keeps a SQLite record of visits: every engagement
// transition and every conversation turn, grouped by visit.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/inference"
)

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal: closed")

const (
	// writeTimeout bounds writes made from handler callbacks.
	writeTimeout = 2 * time.Second

	// timeFormat is fixed width so stored times sort as text.
	timeFormat = "2006-01-02T15:04:05.000000000Z"
)

// Visit is one visitor's stay, from leaving IDLE until returning to it.
type Visit struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	Engaged     bool      `json:"engaged"`
	ClosestMM   int       `json:"closest_mm,omitempty"`
	Turns       int       `json:"turns"`
	Transitions int       `json:"transitions"`
}

// Open reports whether the visit is still in progress.
func (v Visit) Open() bool { return v.EndedAt.IsZero() }

// Duration returns how long the visit lasted, or has lasted until now.
func (v Visit) Duration(now time.Time) time.Duration {
	if v.Open() {
		return now.Sub(v.StartedAt)
	}
	return v.EndedAt.Sub(v.StartedAt)
}

// Transition is one committed engagement change.
type Transition struct {
	ID         string    `json:"id"`
	VisitID    string    `json:"visit_id,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	DistanceMM int       `json:"distance_mm"`
	At         time.Time `json:"at"`
}

// Turn is one message of a conversation.
type Turn struct {
	ID      string    `json:"id"`
	VisitID string    `json:"visit_id,omitempty"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Stats counts journal rows.
type Stats struct {
	Visits      int `json:"visits"`
	Transitions int `json:"transitions"`
	Turns       int `json:"turns"`
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// WithDistance sets where OnTransition reads the distance that caused a
// transition.
func WithDistance(fn func() int) Option {
	return func(j *Journal) { j.distance = fn }
}

// Journal records visits to a SQLite database. It is safe for concurrent
// use.
type Journal struct {
	db       *sql.DB
	logger   *slog.Logger
	now      func() time.Time
	distance func() int

	mu      sync.Mutex
	entropy io.Reader
	visit   string
	closed  bool
}

var _ engagement.Handler = (*Journal)(nil)

// Open opens or creates the journal at path.
func Open(path string, opts ...Option) (*Journal, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: create dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	// one writer, and one shared in-memory database
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:      db,
		logger:  log.Component("journal"),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	if err := j.resumeVisit(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: resume: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	_, err := j.db.Exec(`
	CREATE TABLE IF NOT EXISTS visits (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		ended_at    TEXT,
		engaged     INTEGER NOT NULL DEFAULT 0,
		closest_mm  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_visits_started ON visits(started_at DESC);

	CREATE TABLE IF NOT EXISTS transitions (
		id          TEXT PRIMARY KEY,
		visit_id    TEXT,
		from_state  TEXT NOT NULL,
		to_state    TEXT NOT NULL,
		distance_mm INTEGER NOT NULL,
		at          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_visit ON transitions(visit_id);

	CREATE TABLE IF NOT EXISTS turns (
		id          TEXT PRIMARY KEY,
		visit_id    TEXT,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		at          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_visit ON turns(visit_id);
	`)
	return err
}

// resumeVisit closes visits left open by a previous run.
func (j *Journal) resumeVisit() error {
	_, err := j.db.Exec(`UPDATE visits SET ended_at = started_at WHERE ended_at IS NULL`)
	return err
}

func (j *Journal) newID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), j.entropy).String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s.String)
	return t
}

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// CurrentVisit returns the ID of the visit in progress, or "".
func (j *Journal) CurrentVisit() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.visit
}

// RecordTransition stores a transition. Leaving IDLE opens a visit and
// returning to IDLE closes it.
func (j *Journal) RecordTransition(ctx context.Context, next, prev engagement.State, distanceMM int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}

	now := j.now()
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	defer tx.Rollback()

	visit := j.visit
	if visit == "" && next != engagement.Idle {
		visit = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO visits (id, started_at) VALUES (?, ?)`,
			visit, formatTime(now)); err != nil {
			return fmt.Errorf("journal: insert visit: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transitions (id, visit_id, from_state, to_state, distance_mm, at) VALUES (?, ?, ?, ?, ?, ?)`,
		j.newID(now), nullable(visit), prev.String(), next.String(), distanceMM, formatTime(now)); err != nil {
		return fmt.Errorf("journal: insert transition: %w", err)
	}

	if visit != "" {
		if next == engagement.Engaged {
			if _, err := tx.ExecContext(ctx, `UPDATE visits SET engaged = 1 WHERE id = ?`, visit); err != nil {
				return fmt.Errorf("journal: update visit: %w", err)
			}
		}
		if distanceMM > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE visits SET closest_mm = ? WHERE id = ? AND (closest_mm = 0 OR closest_mm > ?)`,
				distanceMM, visit, distanceMM); err != nil {
				return fmt.Errorf("journal: update visit: %w", err)
			}
		}
		if next == engagement.Idle {
			if _, err := tx.ExecContext(ctx,
				`UPDATE visits SET ended_at = ? WHERE id = ?`, formatTime(now), visit); err != nil {
				return fmt.Errorf("journal: close visit: %w", err)
			}
			visit = ""
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: commit: %w", err)
	}
	j.visit = visit
	return nil
}

// RecordTurn stores a conversation message against the current visit.
func (j *Journal) RecordTurn(ctx context.Context, role, content string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}

	now := j.now()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO turns (id, visit_id, role, content, at) VALUES (?, ?, ?, ?, ?)`,
		j.newID(now), nullable(j.visit), role, content, formatTime(now))
	if err != nil {
		return fmt.Errorf("journal: insert turn: %w", err)
	}
	return nil
}

// OnTransition records a transition, logging failures.
func (j *Journal) OnTransition(next, prev engagement.State) {
	distance := 0
	if j.distance != nil {
		distance = j.distance()
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.RecordTransition(ctx, next, prev, distance); err != nil {
		j.logger.Warn("recording transition", "from", prev, "to", next, "error", err)
	}
}

// OnTurn records a conversation message, logging failures.
func (j *Journal) OnTurn(role inference.Role, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.RecordTurn(ctx, string(role), content); err != nil {
		j.logger.Warn("recording turn", "role", role, "error", err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
