// Package store records published recognition results in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/display"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Store manages the PostgreSQL connection. A pgx.Conn is not safe for
// concurrent use, so every query holds mu.
type Store struct {
	mu     sync.Mutex
	conn   *pgx.Conn
	closed bool
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS results (
			id BIGSERIAL PRIMARY KEY,
			session TEXT NOT NULL,
			frame BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			device TEXT NOT NULL,
			threads TEXT NOT NULL,
			frame_size TEXT NOT NULL,
			rotation TEXT NOT NULL,
			latency_ms DOUBLE PRECISION NOT NULL,
			top_title TEXT,
			top_confidence REAL,
			results JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS results_recorded_at_idx ON results (recorded_at DESC);
		CREATE INDEX IF NOT EXISTS results_session_idx ON results (session);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close(ctx)
}

// Result is one recorded update.
type Result struct {
	ID         int64                    `json:"id"`
	Session    string                   `json:"session"`
	Frame      uint64                   `json:"frame"`
	RecordedAt time.Time                `json:"recorded_at"`
	Device     string                   `json:"device"`
	Threads    string                   `json:"threads"`
	FrameSize  string                   `json:"frame_size"`
	Rotation   string                   `json:"rotation"`
	LatencyMs  float64                  `json:"latency_ms"`
	Top        string                   `json:"top,omitempty"`
	Confidence float32                  `json:"confidence,omitempty"`
	Results    []classifier.Recognition `json:"results"`
}

// RecordResult saves one published update.
func (s *Store) RecordResult(ctx context.Context, u display.Update) error {
	raw, err := json.Marshal(u.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if u.Results == nil {
		raw = []byte("[]")
	}

	var top *string
	var conf *float32
	if len(u.Results) > 0 {
		top = &u.Results[0].Title
		conf = &u.Results[0].Confidence
	}
	at := u.Time
	if at.IsZero() {
		at = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO results (session, frame, recorded_at, device, threads, frame_size, rotation, latency_ms, top_title, top_confidence, results)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.Session, int64(u.Frame), at, string(u.Device), u.Threads, u.FrameSize, u.Rotation,
		float64(u.Latency)/float64(time.Millisecond), top, conf, raw)
	return err
}

// RecentResults returns up to limit results, newest first. A non-empty
// session restricts them to that session.
func (s *Store) RecentResults(ctx context.Context, session string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}

	var b strings.Builder
	b.WriteString(`SELECT id, session, frame, recorded_at, device, threads, frame_size, rotation, latency_ms,
		COALESCE(top_title, ''), COALESCE(top_confidence, 0), results FROM results`)
	args := []interface{}{limit}
	if session != "" {
		b.WriteString(" WHERE session = $2")
		args = append(args, session)
	}
	b.WriteString(" ORDER BY recorded_at DESC, id DESC LIMIT $1")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.conn.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var frame int64
		var raw []byte
		if err := rows.Scan(&r.ID, &r.Session, &frame, &r.RecordedAt, &r.Device, &r.Threads,
			&r.FrameSize, &r.Rotation, &r.LatencyMs, &r.Top, &r.Confidence, &raw); err != nil {
			return nil, err
		}
		r.Frame = uint64(frame)
		if err := json.Unmarshal(raw, &r.Results); err != nil {
			return nil, fmt.Errorf("decode results %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionSummary aggregates the results of one session.
type SessionSummary struct {
	Session     string    `json:"session"`
	Frames      int64     `json:"frames"`
	First       time.Time `json:"first"`
	Last        time.Time `json:"last"`
	AvgLatency  float64   `json:"avg_latency_ms"`
	TopDetected string    `json:"top_detected,omitempty"`
}

// Sessions summarizes the most recent sessions, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.conn.Query(ctx, `
		SELECT session, COUNT(*), MIN(recorded_at), MAX(recorded_at), AVG(latency_ms),
			COALESCE(MODE() WITHIN GROUP (ORDER BY top_title), '')
		FROM results
		GROUP BY session
		ORDER BY MAX(recorded_at) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.Session, &ss.Frames, &ss.First, &ss.Last, &ss.AvgLatency, &ss.TopDetected); err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}
