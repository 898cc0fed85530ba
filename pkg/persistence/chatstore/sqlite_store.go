package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/conversation"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = &SQLiteStore{}

var sqliteSchemaIntrospectionTables = map[string]struct{}{
	"conversations": {},
	"turns":         {},
	"rounds":        {},
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSNForFile builds a DSN with WAL and a busy timeout so readers do not
// block the writer.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store: db is nil")
	}

	createTableStmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			session_id TEXT NOT NULL PRIMARY KEY,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			request TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_id, turn_id),
			FOREIGN KEY (session_id) REFERENCES conversations(session_id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			session_id TEXT NOT NULL,
			round_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			response TEXT NOT NULL DEFAULT '',
			tool_calls_json TEXT NOT NULL DEFAULT '[]',
			summary TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_id, round_id),
			FOREIGN KEY (session_id, turn_id) REFERENCES turns(session_id, turn_id) ON DELETE CASCADE
		);`,
	}
	for _, st := range createTableStmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite store: migrate")
		}
	}

	if err := s.ensureRoundsTableColumns(); err != nil {
		return errors.Wrap(err, "sqlite store: ensure rounds columns")
	}

	createIndexStmts := []string{
		`CREATE INDEX IF NOT EXISTS conversations_by_updated ON conversations(updated_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS turns_by_session_ordinal ON turns(session_id, ordinal);`,
		`CREATE INDEX IF NOT EXISTS rounds_by_turn_ordinal ON rounds(session_id, turn_id, ordinal);`,
	}
	for _, st := range createIndexStmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite store: migrate")
		}
	}
	return nil
}

// ensureRoundsTableColumns upgrades databases created before summaries
// carried a timestamp.
func (s *SQLiteStore) ensureRoundsTableColumns() error {
	cols, err := s.tableColumns("rounds")
	if err != nil {
		return err
	}
	if !cols["summarized_at_ms"] {
		if _, err := s.db.Exec(`ALTER TABLE rounds ADD COLUMN summarized_at_ms INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) tableColumns(table string) (map[string]bool, error) {
	table = strings.ToLower(strings.TrimSpace(table))
	if _, ok := sqliteSchemaIntrospectionTables[table]; !ok {
		return nil, errors.Errorf("sqlite store: unsupported table for schema introspection: %q", table)
	}
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return out, rows.Err()
}

// Save upserts the conversation structure. Stored summaries are kept; new
// in-memory summaries are written only onto rounds that have none.
// Whitespace-only summaries are stored as ''.
func (s *SQLiteStore) Save(ctx context.Context, conv *conversation.Conversation) error {
	if conv == nil {
		return errors.New("sqlite store: nil conversation")
	}
	snap := conv.Snapshot()
	nowMs := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite store: begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations(session_id, created_at_ms, updated_at_ms)
		VALUES(?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET updated_at_ms = MAX(conversations.updated_at_ms, excluded.updated_at_ms)
	`, snap.SessionID, nowMs, nowMs); err != nil {
		return errors.Wrap(err, "sqlite store: upsert conversation")
	}

	for ti, t := range snap.Turns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO turns(session_id, turn_id, ordinal, request, status)
			VALUES(?, ?, ?, ?, ?)
			ON CONFLICT(session_id, turn_id) DO UPDATE SET
				ordinal = excluded.ordinal,
				request = excluded.request,
				status = excluded.status
		`, snap.SessionID, t.ID, ti, t.Request, string(t.Status)); err != nil {
			return errors.Wrapf(err, "sqlite store: upsert turn %s", t.ID)
		}
		for ri, r := range t.Rounds {
			toolCalls := r.ToolCalls
			if toolCalls == nil {
				toolCalls = []conversation.ToolCall{}
			}
			toolCallsJSON, err := json.Marshal(toolCalls)
			if err != nil {
				return errors.Wrapf(err, "sqlite store: marshal tool calls of %s", r.ID)
			}
			summary := blankToEmpty(r.Summary)
			summarizedAt := int64(0)
			if summary != "" {
				summarizedAt = nowMs
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rounds(session_id, round_id, turn_id, ordinal, response, tool_calls_json, summary, summarized_at_ms)
				VALUES(?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(session_id, round_id) DO UPDATE SET
					turn_id = excluded.turn_id,
					ordinal = excluded.ordinal,
					response = excluded.response,
					tool_calls_json = excluded.tool_calls_json,
					summary = CASE WHEN TRIM(rounds.summary, char(32, 9, 10, 13)) = '' THEN excluded.summary ELSE rounds.summary END,
					summarized_at_ms = CASE WHEN TRIM(rounds.summary, char(32, 9, 10, 13)) = '' THEN excluded.summarized_at_ms ELSE rounds.summarized_at_ms END
			`, snap.SessionID, r.ID, t.ID, ri, r.Response, string(toolCallsJSON), summary, summarizedAt); err != nil {
				return errors.Wrapf(err, "sqlite store: upsert round %s", r.ID)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite store: commit tx")
	}
	committed = true
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*conversation.Conversation, error) {
	snap, err := s.loadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return conversation.FromSnapshot(snap)
}

func (s *SQLiteStore) loadSnapshot(ctx context.Context, sessionID string) (conversation.Snapshot, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return conversation.Snapshot{}, errors.New("sqlite store: sessionID is empty")
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversations WHERE session_id = ?`, sessionID).Scan(&exists); err != nil {
		return conversation.Snapshot{}, errors.Wrap(err, "sqlite store: lookup conversation")
	}
	if exists == 0 {
		return conversation.Snapshot{}, errors.Wrapf(ErrNotFound, "session %q", sessionID)
	}

	snap := conversation.Snapshot{SessionID: sessionID}
	turnIndex := map[string]int{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, request, status FROM turns WHERE session_id = ? ORDER BY ordinal ASC
	`, sessionID)
	if err != nil {
		return conversation.Snapshot{}, errors.Wrap(err, "sqlite store: query turns")
	}
	for rows.Next() {
		var ts conversation.TurnSnapshot
		var status string
		if err := rows.Scan(&ts.ID, &ts.Request, &status); err != nil {
			_ = rows.Close()
			return conversation.Snapshot{}, errors.Wrap(err, "sqlite store: scan turn")
		}
		ts.Status = conversation.Status(status)
		turnIndex[ts.ID] = len(snap.Turns)
		snap.Turns = append(snap.Turns, ts)
	}
	if err := rows.Close(); err != nil {
		return conversation.Snapshot{}, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT r.turn_id, r.round_id, r.response, r.tool_calls_json, r.summary
		FROM rounds r
		JOIN turns t ON t.session_id = r.session_id AND t.turn_id = r.turn_id
		WHERE r.session_id = ?
		ORDER BY t.ordinal ASC, r.ordinal ASC
	`, sessionID)
	if err != nil {
		return conversation.Snapshot{}, errors.Wrap(err, "sqlite store: query rounds")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var turnID, toolCallsJSON string
		var rs conversation.RoundSnapshot
		if err := rows.Scan(&turnID, &rs.ID, &rs.Response, &toolCallsJSON, &rs.Summary); err != nil {
			return conversation.Snapshot{}, errors.Wrap(err, "sqlite store: scan round")
		}
		rs.Summary = blankToEmpty(rs.Summary)
		if err := json.Unmarshal([]byte(toolCallsJSON), &rs.ToolCalls); err != nil {
			return conversation.Snapshot{}, errors.Wrapf(err, "sqlite store: decode tool calls of %s", rs.ID)
		}
		if len(rs.ToolCalls) == 0 {
			rs.ToolCalls = nil
		}
		i, ok := turnIndex[turnID]
		if !ok {
			return conversation.Snapshot{}, errors.Errorf("sqlite store: round %s references unknown turn %s", rs.ID, turnID)
		}
		snap.Turns[i].Rounds = append(snap.Turns[i].Rounds, rs)
	}
	return snap, rows.Err()
}

// Latest loads the most recently updated conversation.
func (s *SQLiteStore) Latest(ctx context.Context) (*conversation.Conversation, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id FROM conversations ORDER BY updated_at_ms DESC, session_id ASC LIMIT 1
	`).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, "no conversations stored")
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: latest conversation")
	}
	return s.Load(ctx, sessionID)
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, created_at_ms, updated_at_ms
		FROM conversations
		ORDER BY updated_at_ms DESC, session_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: list conversations")
	}
	type row struct {
		sessionID          string
		createdAt, updated int64
	}
	var listed []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.sessionID, &r.createdAt, &r.updated); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "sqlite store: scan conversation")
		}
		listed = append(listed, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	out := make([]ConversationRecord, 0, len(listed))
	for _, r := range listed {
		snap, err := s.loadSnapshot(ctx, r.sessionID)
		if err != nil {
			return nil, err
		}
		out = append(out, recordFromSnapshot(snap, r.createdAt, r.updated))
	}
	return out, nil
}

// CommitSummary sets a round's summary only if it has none.
func (s *SQLiteStore) CommitSummary(ctx context.Context, sessionID, roundID, summary string) error {
	if strings.TrimSpace(summary) == "" {
		return errors.Wrapf(conversation.ErrEmptySummary, "round %s", roundID)
	}
	nowMs := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE rounds SET summary = ?, summarized_at_ms = ?
		WHERE session_id = ? AND round_id = ? AND TRIM(summary, char(32, 9, 10, 13)) = ''
	`, summary, nowMs, sessionID, roundID)
	if err != nil {
		return errors.Wrap(err, "sqlite store: commit summary")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite store: commit summary")
	}
	if n == 1 {
		return s.touch(ctx, sessionID, nowMs)
	}
	found, err := s.roundExists(ctx, sessionID, roundID)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(conversation.ErrUnknownRound, "session %s round %s", sessionID, roundID)
	}
	return errors.Wrapf(conversation.ErrAlreadySummarized, "session %s round %s", sessionID, roundID)
}

func (s *SQLiteStore) ClearSummary(ctx context.Context, sessionID, roundID string) (bool, error) {
	found, err := s.roundExists(ctx, sessionID, roundID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, errors.Wrapf(conversation.ErrUnknownRound, "session %s round %s", sessionID, roundID)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE rounds SET summary = '', summarized_at_ms = 0
		WHERE session_id = ? AND round_id = ? AND TRIM(summary, char(32, 9, 10, 13)) != ''
	`, sessionID, roundID)
	if err != nil {
		return false, errors.Wrap(err, "sqlite store: clear summary")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "sqlite store: clear summary")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ClearAllSummaries(ctx context.Context, sessionID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rounds SET summary = '', summarized_at_ms = 0
		WHERE session_id = ? AND TRIM(summary, char(32, 9, 10, 13)) != ''
	`, sessionID)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite store: clear summaries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "sqlite store: clear summaries")
	}
	return int(n), nil
}

func (s *SQLiteStore) roundExists(ctx context.Context, sessionID, roundID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM rounds WHERE session_id = ? AND round_id = ?
	`, sessionID, roundID).Scan(&n); err != nil {
		return false, errors.Wrap(err, "sqlite store: lookup round")
	}
	return n > 0, nil
}

func (s *SQLiteStore) touch(ctx context.Context, sessionID string, nowMs int64) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at_ms = MAX(updated_at_ms, ?) WHERE session_id = ?
	`, nowMs, sessionID); err != nil {
		return errors.Wrap(err, "sqlite store: touch conversation")
	}
	return nil
}
