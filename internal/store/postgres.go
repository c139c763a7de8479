// Package store is the record-store gateway over the interview database.
// Supabase exposes its Postgres directly, so flags and result rows are plain
// SQL against the interviews and results tables.
package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/Projet-annuel-5A/api-middleware/internal/types"
)

type RecordStore interface {
	UpdateFlag(ctx context.Context, interviewID int64, name string, value bool) error
	UserID(ctx context.Context, interviewID int64) (int64, error)
	InsertResults(ctx context.Context, rows []types.ResultRow) error
	ReadField(ctx context.Context, interviewID int64, name string) (string, error)
}

// Flag and field names come from code, never from callers, but the identifier
// still cannot be a placeholder; validate before interpolating.
var validIdent = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type Postgres struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

func New(ctx context.Context, databaseURL string, log *logrus.Entry) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// UpdateFlag sets a boolean column such as audio_ok or inference_ok on the
// interview row.
func (p *Postgres) UpdateFlag(ctx context.Context, interviewID int64, name string, value bool) error {
	if !validIdent.MatchString(name) {
		return fmt.Errorf("invalid flag name %q", name)
	}
	query := fmt.Sprintf("UPDATE interviews SET %s = $1 WHERE id = $2", name)
	tag, err := p.pool.Exec(ctx, query, value, interviewID)
	if err != nil {
		return fmt.Errorf("update flag %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update flag %s: interview %d not found", name, interviewID)
	}
	p.log.WithFields(logrus.Fields{"interview_id": interviewID, "flag": name, "value": value}).Info("flag updated")
	return nil
}

func (p *Postgres) UserID(ctx context.Context, interviewID int64) (int64, error) {
	var userID int64
	err := p.pool.QueryRow(ctx, "SELECT user_id FROM interviews WHERE id = $1", interviewID).Scan(&userID)
	if err == pgx.ErrNoRows {
		return 0, fmt.Errorf("interview %d not found", interviewID)
	}
	if err != nil {
		return 0, fmt.Errorf("read user_id: %w", err)
	}
	return userID, nil
}

func (p *Postgres) ReadField(ctx context.Context, interviewID int64, name string) (string, error) {
	if !validIdent.MatchString(name) {
		return "", fmt.Errorf("invalid field name %q", name)
	}
	query := fmt.Sprintf("SELECT %s::text FROM interviews WHERE id = $1", name)
	var value string
	err := p.pool.QueryRow(ctx, query, interviewID).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", fmt.Errorf("interview %d not found", interviewID)
	}
	if err != nil {
		return "", fmt.Errorf("read field %s: %w", name, err)
	}
	return value, nil
}

// InsertResults writes one batch of transcribed segments.
func (p *Postgres) InsertResults(ctx context.Context, rows []types.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(
			`INSERT INTO results (interview_id, user_id, "start", "end", speaker, text) VALUES ($1, $2, $3, $4, $5, $6)`,
			r.InterviewID, r.UserID, r.Start, r.End, r.Speaker, r.Text,
		)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert results: %w", err)
		}
	}
	p.log.WithField("rows", len(rows)).Info("results saved to database")
	return nil
}
