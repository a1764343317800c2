package feedback

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Store persists feedback in a message_feedback table:
//
//	CREATE TABLE message_feedback (
//	    message_id TEXT PRIMARY KEY,
//	    feedback   TEXT NOT NULL
//	);
//
// Queries are written with ? placeholders and rebound for the driver, so the
// same store runs on Postgres and SQLite.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

type feedbackRow struct {
	MessageID string `db:"message_id"`
	Feedback  string `db:"feedback"`
}

const (
	createFeedback = `CREATE TABLE IF NOT EXISTS message_feedback (
    message_id TEXT PRIMARY KEY,
    feedback   TEXT NOT NULL
)`
	selectFeedback = `SELECT message_id, feedback FROM message_feedback`
	upsertFeedback = `INSERT INTO message_feedback (message_id, feedback) VALUES (?, ?)
ON CONFLICT (message_id) DO UPDATE SET feedback = excluded.feedback`
)

// NewStore wraps db
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the message_feedback table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createFeedback); err != nil {
		return fmt.Errorf("create message_feedback: %w", err)
	}
	return nil
}

// Hydrate seeds table with every persisted row. Stored values go through the
// same mapping as Derive, so multi-reason rows load as Negative.
func (s *Store) Hydrate(ctx context.Context, table Table) (int, error) {
	var rows []feedbackRow
	if err := s.db.SelectContext(ctx, &rows, selectFeedback); err != nil {
		return 0, fmt.Errorf("load message_feedback: %w", err)
	}

	n := 0
	for _, r := range rows {
		if r.MessageID == "" || r.Feedback == "" {
			continue
		}
		if err := table.Set(ctx, r.MessageID, FromPersisted(r.Feedback)); err != nil {
			return n, fmt.Errorf("seed %s: %w", r.MessageID, err)
		}
		n++
	}
	s.logger.Info("Hydrated feedback table", zap.Int("rows", len(rows)), zap.Int("seeded", n))
	return n, nil
}

// Save upserts one message's feedback.
func (s *Store) Save(ctx context.Context, messageID string, c Category) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(upsertFeedback), messageID, string(c)); err != nil {
		return fmt.Errorf("save feedback %s: %w", messageID, err)
	}
	return nil
}

// Persisted is a Table that writes through to a Store before updating the
// wrapped table.
type Persisted struct {
	Table
	store *Store
}

// WithStore wraps table so every Set is persisted first.
func WithStore(table Table, store *Store) *Persisted {
	return &Persisted{Table: table, store: store}
}

func (p *Persisted) Set(ctx context.Context, messageID string, c Category) error {
	if !c.Valid() {
		return ErrUnknownCategory
	}
	if err := p.store.Save(ctx, messageID, c); err != nil {
		return err
	}
	return p.Table.Set(ctx, messageID, c)
}
