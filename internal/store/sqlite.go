package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/mindtrap/maze-server/internal/questions"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db     *sql.DB
	retry  RetryPolicy
	logger *log.Logger
	now    func() time.Time
}

// Option configures a SQLiteDB.
type Option func(*SQLiteDB)

// WithRetryPolicy overrides the retry policy for busy writes.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *SQLiteDB) { s.retry = p }
}

// WithLogger sets the store logger. Nil keeps the default.
func WithLogger(l *log.Logger) Option {
	return func(s *SQLiteDB) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteDB) { s.now = now }
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(path string, opts ...Option) (*SQLiteDB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path
	}
	dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite is not concurrent for writes, and a second connection to
	// :memory: would see an empty database.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		// Enable WAL mode for better concurrency
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &SQLiteDB{
		db:     db,
		retry:  DefaultRetryPolicy,
		logger: log.New(os.Stdout, "[STORE] ", log.LstdFlags|log.LUTC),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ DB = (*SQLiteDB)(nil)

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate applies every pending migration. It is safe to call repeatedly.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range results {
		s.logger.Printf("migration_applied version=%d file=%s duration=%v", r.Source.Version, r.Source.Path, r.Duration)
	}
	return nil
}

func (s *SQLiteDB) timestamp() time.Time {
	return s.now().UTC()
}

// --------- Questions ---------

const questionColumns = `id, text, options_json, correct_index, difficulty, category, active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*questions.Record, error) {
	var q questions.Record
	var optionsJSON, category string
	var active int
	if err := row.Scan(&q.ID, &q.Text, &optionsJSON, &q.CorrectIndex, &q.Difficulty, &category, &active); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
		return nil, fmt.Errorf("question %s options: %w", q.ID, err)
	}
	q.Category = questions.Category(category)
	q.Active = active != 0
	return &q, nil
}

func (s *SQLiteDB) queryQuestions(ctx context.Context, query string, args ...any) ([]questions.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []questions.Record
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteDB) insertQuestion(ctx context.Context, ex execer, q *questions.Record) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	now := s.timestamp()
	_, err = ex.ExecContext(ctx,
		`INSERT INTO questions (`+questionColumns+`, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Text, string(optionsJSON), q.CorrectIndex, q.Difficulty, string(q.Category), boolInt(q.Active), now, now)
	return err
}

// CreateQuestion stores a new question, assigning an id if it has none.
func (s *SQLiteDB) CreateQuestion(ctx context.Context, q *questions.Record) error {
	return s.withRetry(ctx, "create_question", func(ctx context.Context) error {
		return s.insertQuestion(ctx, s.db, q)
	})
}

// UpdateQuestion replaces a stored question.
func (s *SQLiteDB) UpdateQuestion(ctx context.Context, q *questions.Record) error {
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "update_question", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE questions SET text = ?, options_json = ?, correct_index = ?, difficulty = ?,
				category = ?, active = ?, updated_at = ? WHERE id = ?`,
			q.Text, string(optionsJSON), q.CorrectIndex, q.Difficulty, string(q.Category),
			boolInt(q.Active), s.timestamp(), q.ID)
		return affectedOne(res, err)
	})
}

// DeleteQuestion removes a question.
func (s *SQLiteDB) DeleteQuestion(ctx context.Context, id string) error {
	return s.withRetry(ctx, "delete_question", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
		return affectedOne(res, err)
	})
}

// GetQuestion retrieves a question by id.
func (s *SQLiteDB) GetQuestion(ctx context.Context, id string) (*questions.Record, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

// ListQuestions returns every question, easiest first.
func (s *SQLiteDB) ListQuestions(ctx context.Context) ([]questions.Record, error) {
	return s.queryQuestions(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY difficulty ASC, created_at ASC, id ASC`)
}

// ActiveQuestions returns the active pool ordered by id. The order is
// stable for a given bank, which keeps seeded selection reproducible.
func (s *SQLiteDB) ActiveQuestions(ctx context.Context) ([]questions.Record, error) {
	return s.queryQuestions(ctx, `SELECT `+questionColumns+` FROM questions WHERE active = 1 ORDER BY id ASC`)
}

// CountActiveQuestions returns the size of the active pool.
func (s *SQLiteDB) CountActiveQuestions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE active = 1`).Scan(&n)
	return n, err
}

// ImportQuestions stores many questions in one transaction.
func (s *SQLiteDB) ImportQuestions(ctx context.Context, recs []questions.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	err := s.withRetry(ctx, "import_questions", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for i := range recs {
			if err := s.insertQuestion(ctx, tx, &recs[i]); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		// A failed attempt may have assigned ids that were never stored.
		return 0, err
	}
	return len(recs), nil
}

// --------- Players ---------

const playerColumns = `session_id, name, roll_number, current_node, depth, mistakes, score, status,
	questions_answered, seed, start_time, last_active_time, completed_at, suspicious,
	suspicious_reasons, tab_switch_count`

func scanPlayer(row rowScanner) (*Player, error) {
	var p Player
	var status, reasons string
	var suspicious int
	var completed sql.NullTime
	err := row.Scan(&p.SessionID, &p.Name, &p.RollNumber, &p.CurrentNode, &p.Depth, &p.Mistakes,
		&p.Score, &status, &p.QuestionsAnswered, &p.Seed, &p.StartTime, &p.LastActiveTime,
		&completed, &suspicious, &reasons, &p.TabSwitchCount)
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	p.Suspicious = suspicious != 0
	if completed.Valid {
		t := completed.Time.UTC()
		p.CompletedAt = &t
	}
	p.StartTime = p.StartTime.UTC()
	p.LastActiveTime = p.LastActiveTime.UTC()
	if err := json.Unmarshal([]byte(reasons), &p.SuspiciousReasons); err != nil {
		return nil, fmt.Errorf("player %s reasons: %w", p.SessionID, err)
	}
	return &p, nil
}

func (s *SQLiteDB) queryPlayers(ctx context.Context, query string, args ...any) ([]Player, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func playerArgs(p *Player) ([]any, error) {
	reasons := p.SuspiciousReasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return nil, err
	}
	var completed any
	if p.CompletedAt != nil {
		completed = p.CompletedAt.UTC()
	}
	return []any{
		p.Name, p.RollNumber, p.CurrentNode, p.Depth, p.Mistakes, p.Score, string(p.Status),
		p.QuestionsAnswered, p.Seed, p.StartTime.UTC(), p.LastActiveTime.UTC(), completed,
		boolInt(p.Suspicious), string(reasonsJSON), p.TabSwitchCount,
	}, nil
}

// CreatePlayer stores a new player. Zero times are set to now.
func (s *SQLiteDB) CreatePlayer(ctx context.Context, p *Player) error {
	if p.SessionID == "" {
		p.SessionID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.StartTime.IsZero() {
		p.StartTime = s.timestamp()
	}
	if p.LastActiveTime.IsZero() {
		p.LastActiveTime = p.StartTime
	}
	args, err := playerArgs(p)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "create_player", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO players (`+playerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append([]any{p.SessionID}, args...)...)
		return err
	})
}

// UpdatePlayer writes every progress field of a player.
func (s *SQLiteDB) UpdatePlayer(ctx context.Context, p *Player) error {
	args, err := playerArgs(p)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "update_player", func(ctx context.Context) error {
		return updatePlayer(ctx, s.db, p.SessionID, args)
	})
}

func updatePlayer(ctx context.Context, ex execer, sessionID string, args []any) error {
	res, err := ex.ExecContext(ctx,
		`UPDATE players SET name = ?, roll_number = ?, current_node = ?, depth = ?, mistakes = ?,
			score = ?, status = ?, questions_answered = ?, seed = ?, start_time = ?,
			last_active_time = ?, completed_at = ?, suspicious = ?, suspicious_reasons = ?,
			tab_switch_count = ?
		WHERE session_id = ?`,
		append(args, sessionID)...)
	return affectedOne(res, err)
}

// GetPlayer retrieves a player and their answers.
func (s *SQLiteDB) GetPlayer(ctx context.Context, sessionID string) (*Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Answers, err = s.answers(ctx, p.SessionID); err != nil {
		return nil, err
	}
	return p, nil
}

// FindResumable returns the most recent active or paused player with the
// roll number.
func (s *SQLiteDB) FindResumable(ctx context.Context, rollNumber string) (*Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players
		WHERE roll_number = ? AND status IN ('active', 'paused')
		ORDER BY start_time DESC LIMIT 1`, rollNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Answers, err = s.answers(ctx, p.SessionID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteDB) answers(ctx context.Context, sessionID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, correct, answered_at, time_taken_ms FROM player_answers
		WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Answer
	for rows.Next() {
		var a Answer
		var correct int
		if err := rows.Scan(&a.NodeID, &correct, &a.AnsweredAt, &a.TimeTakenMs); err != nil {
			return nil, err
		}
		a.Correct = correct != 0
		a.AnsweredAt = a.AnsweredAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListPlayers returns every player, best first.
func (s *SQLiteDB) ListPlayers(ctx context.Context) ([]Player, error) {
	return s.queryPlayers(ctx, `SELECT `+playerColumns+` FROM players ORDER BY score DESC, depth DESC`)
}

// Leaderboard returns the top active or finished players.
func (s *SQLiteDB) Leaderboard(ctx context.Context, limit int) ([]Player, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryPlayers(ctx,
		`SELECT `+playerColumns+` FROM players WHERE status IN ('active', 'finished')
		ORDER BY score DESC, depth DESC, mistakes ASC, start_time ASC LIMIT ?`, limit)
}

// SetAllStatus moves every player in one of the from states to the to state.
func (s *SQLiteDB) SetAllStatus(ctx context.Context, from []Status, to Status) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{string(to)}
	for _, st := range from {
		args = append(args, string(st))
	}

	var n int64
	err := s.withRetry(ctx, "set_all_status", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE players SET status = ? WHERE status IN (`+placeholders+`)`, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// DeletePlayer removes a player and their answers.
func (s *SQLiteDB) DeletePlayer(ctx context.Context, sessionID string) error {
	return s.withRetry(ctx, "delete_player", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM player_answers WHERE session_id = ?`, sessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE session_id = ?`, sessionID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// DeleteAllPlayers removes every player and answer.
func (s *SQLiteDB) DeleteAllPlayers(ctx context.Context) (int64, error) {
	var n int64
	err := s.withRetry(ctx, "delete_all_players", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM player_answers`); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM players`)
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	return n, err
}

// RecordAnswer appends an answer to a player's history.
func (s *SQLiteDB) RecordAnswer(ctx context.Context, sessionID string, a Answer) error {
	if a.AnsweredAt.IsZero() {
		a.AnsweredAt = s.timestamp()
	}
	return s.withRetry(ctx, "record_answer", func(ctx context.Context) error {
		return insertAnswer(ctx, s.db, sessionID, a)
	})
}

// SaveAnswer writes a player's progress and the answer that caused it in one
// transaction, so neither lands without the other.
func (s *SQLiteDB) SaveAnswer(ctx context.Context, p *Player, a Answer) error {
	args, err := playerArgs(p)
	if err != nil {
		return err
	}
	if a.AnsweredAt.IsZero() {
		a.AnsweredAt = s.timestamp()
	}
	return s.withRetry(ctx, "save_answer", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := updatePlayer(ctx, tx, p.SessionID, args); err != nil {
			return err
		}
		if err := insertAnswer(ctx, tx, p.SessionID, a); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func insertAnswer(ctx context.Context, ex execer, sessionID string, a Answer) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO player_answers (session_id, node_id, correct, answered_at, time_taken_ms) VALUES (?, ?, ?, ?, ?)`,
		sessionID, a.NodeID, boolInt(a.Correct), a.AnsweredAt.UTC(), a.TimeTakenMs)
	return err
}

// PlayerStats aggregates player and answer counts.
func (s *SQLiteDB) PlayerStats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'finished' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(suspicious), 0)
		FROM players`).Scan(&st.Total, &st.Active, &st.Finished, &st.Suspicious)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(correct), 0) FROM player_answers`).Scan(&st.AnswersTotal, &st.AnswersCorrect)
	if err != nil {
		return nil, err
	}
	if st.QuestionCount, err = s.CountActiveQuestions(ctx); err != nil {
		return nil, err
	}
	return &st, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
