package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/truthtally/truthtally/internal/model"
	"github.com/truthtally/truthtally/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the database at path and applies pending migrations. The pool is
// limited to one connection, so transactions are serialized: a transaction's
// reads cannot be invalidated by another writer before it commits.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, path); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB, path string) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !strings.Contains(path, "mode=memory") && path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'mod', 'admin')),
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS politicians (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	party TEXT NOT NULL,
	office TEXT NOT NULL,
	region TEXT NOT NULL,
	term_start INTEGER NOT NULL,
	term_end INTEGER NOT NULL,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	pending_delete INTEGER NOT NULL DEFAULT 0,
	deleted_by TEXT,
	deleted_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	CHECK (NOT (is_deleted = 1 AND pending_delete = 1))
);
CREATE INDEX IF NOT EXISTS idx_politicians_pending ON politicians(pending_delete) WHERE pending_delete = 1;

CREATE TABLE IF NOT EXISTS statements (
	id TEXT PRIMARY KEY,
	politician_id TEXT NOT NULL,
	text TEXT NOT NULL,
	source_url TEXT NOT NULL,
	date_made INTEGER NOT NULL,
	submitted_by_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'kept', 'broken')),
	is_deleted INTEGER NOT NULL DEFAULT 0,
	pending_delete INTEGER NOT NULL DEFAULT 0,
	flagged INTEGER NOT NULL DEFAULT 0,
	deleted_by TEXT,
	deleted_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	CHECK (NOT (is_deleted = 1 AND pending_delete = 1)),
	FOREIGN KEY(politician_id) REFERENCES politicians(id),
	FOREIGN KEY(submitted_by_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_statements_politician ON statements(politician_id);
CREATE INDEX IF NOT EXISTS idx_statements_created_at ON statements(created_at DESC);

CREATE TABLE IF NOT EXISTS votes (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	statement_id TEXT NOT NULL,
	value INTEGER NOT NULL CHECK (value IN (1, -1)),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id),
	FOREIGN KEY(statement_id) REFERENCES statements(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_unique ON votes(user_id, statement_id);
CREATE INDEX IF NOT EXISTS idx_votes_statement ON votes(statement_id);

CREATE TABLE IF NOT EXISTS edit_logs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	before TEXT NOT NULL,
	after TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edit_logs_entity ON edit_logs(entity_type, entity_id, seq);

CREATE TRIGGER IF NOT EXISTS edit_logs_no_update BEFORE UPDATE ON edit_logs
BEGIN
	SELECT RAISE(ABORT, 'edit_logs is append-only');
END;
CREATE TRIGGER IF NOT EXISTS edit_logs_no_delete BEFORE DELETE ON edit_logs
BEGIN
	SELECT RAISE(ABORT, 'edit_logs is append-only');
END;

CREATE TABLE IF NOT EXISTS auth_tokens (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

// SchemaVersion reports the latest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	return v, err
}

// InTx runs fn inside one transaction. Any error from fn, or a failed commit,
// rolls back every write fn made.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return wrapErr("commit", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txStore struct {
	q querier
}

func (t *txStore) GetPolitician(ctx context.Context, id string) (model.Politician, error) {
	return getPolitician(ctx, t.q, id)
}

func (t *txStore) InsertPolitician(ctx context.Context, p model.Politician) error {
	_, err := t.q.ExecContext(ctx, `
INSERT INTO politicians (id, name, party, office, region, term_start, term_end, is_deleted, pending_delete, deleted_by, deleted_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, p.ID, p.Name, p.Party, p.Office, p.Region, toUnix(p.TermStart), toUnix(p.TermEnd),
		boolToInt(p.IsDeleted), boolToInt(p.PendingDelete), nullableString(p.DeletedBy), nullableTime(p.DeletedAt),
		toUnix(p.CreatedAt), toUnix(p.UpdatedAt))
	return wrapErr("insert politician", err)
}

func (t *txStore) UpdatePolitician(ctx context.Context, p model.Politician) error {
	res, err := t.q.ExecContext(ctx, `
UPDATE politicians
SET name = ?, party = ?, office = ?, region = ?, term_start = ?, term_end = ?,
	is_deleted = ?, pending_delete = ?, deleted_by = ?, deleted_at = ?, updated_at = ?
WHERE id = ?
`, p.Name, p.Party, p.Office, p.Region, toUnix(p.TermStart), toUnix(p.TermEnd),
		boolToInt(p.IsDeleted), boolToInt(p.PendingDelete), nullableString(p.DeletedBy), nullableTime(p.DeletedAt),
		toUnix(p.UpdatedAt), p.ID)
	if err != nil {
		return wrapErr("update politician", err)
	}
	return requireRow(res)
}

func (t *txStore) GetStatement(ctx context.Context, id string) (model.Statement, error) {
	return getStatement(ctx, t.q, id)
}

func (t *txStore) InsertStatement(ctx context.Context, st model.Statement) error {
	_, err := t.q.ExecContext(ctx, `
INSERT INTO statements (id, politician_id, text, source_url, date_made, submitted_by_id, status, is_deleted, pending_delete, flagged, deleted_by, deleted_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, st.ID, st.PoliticianID, st.Text, st.SourceURL, toUnix(st.DateMade), st.SubmittedByID, string(st.Status),
		boolToInt(st.IsDeleted), boolToInt(st.PendingDelete), boolToInt(st.Flagged),
		nullableString(st.DeletedBy), nullableTime(st.DeletedAt), toUnix(st.CreatedAt), toUnix(st.UpdatedAt))
	return wrapErr("insert statement", err)
}

func (t *txStore) UpdateStatement(ctx context.Context, st model.Statement) error {
	res, err := t.q.ExecContext(ctx, `
UPDATE statements
SET text = ?, source_url = ?, date_made = ?, status = ?, is_deleted = ?, pending_delete = ?, flagged = ?,
	deleted_by = ?, deleted_at = ?, updated_at = ?
WHERE id = ?
`, st.Text, st.SourceURL, toUnix(st.DateMade), string(st.Status), boolToInt(st.IsDeleted), boolToInt(st.PendingDelete),
		boolToInt(st.Flagged), nullableString(st.DeletedBy), nullableTime(st.DeletedAt), toUnix(st.UpdatedAt), st.ID)
	if err != nil {
		return wrapErr("update statement", err)
	}
	return requireRow(res)
}

func (t *txStore) GetVote(ctx context.Context, userID, statementID string) (model.Vote, error) {
	return getVote(ctx, t.q, userID, statementID)
}

// UpsertVote inserts the vote or overwrites the value of the existing
// (user, statement) row. Re-casting the same value leaves the row untouched.
func (t *txStore) UpsertVote(ctx context.Context, v model.Vote) (model.Vote, error) {
	_, err := t.q.ExecContext(ctx, `
INSERT INTO votes (id, user_id, statement_id, value, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, statement_id) DO UPDATE
SET value = excluded.value, updated_at = excluded.updated_at
WHERE votes.value <> excluded.value
`, v.ID, v.UserID, v.StatementID, v.Value, toUnix(v.CreatedAt), toUnix(v.UpdatedAt))
	if err != nil {
		return model.Vote{}, wrapErr("upsert vote", err)
	}
	return getVote(ctx, t.q, v.UserID, v.StatementID)
}

func (t *txStore) VoteAggregate(ctx context.Context, statementID string) (int, int, error) {
	var count, sum int
	err := t.q.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(value), 0) FROM votes WHERE statement_id = ?
`, statementID).Scan(&count, &sum)
	if err != nil {
		return 0, 0, wrapErr("vote aggregate", err)
	}
	return count, sum, nil
}

func (t *txStore) AppendEditLog(ctx context.Context, entry model.EditLog) (model.EditLog, error) {
	res, err := t.q.ExecContext(ctx, `
INSERT INTO edit_logs (id, entity_type, entity_id, actor_id, before, after, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, entry.ID, entry.EntityType, entry.EntityID, entry.ActorID, string(entry.Before), string(entry.After), toUnix(entry.CreatedAt))
	if err != nil {
		return model.EditLog{}, wrapErr("append edit log", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return model.EditLog{}, wrapErr("append edit log", err)
	}
	entry.Seq = seq
	return entry, nil
}

func (s *Store) GetPolitician(ctx context.Context, id string) (model.Politician, error) {
	return getPolitician(ctx, s.db, id)
}

func (s *Store) ListPoliticians(ctx context.Context, opts store.PoliticianListOpts) ([]model.Politician, error) {
	limit := clamp(opts.Limit, 1, 200)
	rows, err := s.db.QueryContext(ctx, `
SELECT `+politicianCols+`
FROM politicians
WHERE (? = 1 OR is_deleted = 0)
ORDER BY name ASC, created_at ASC
LIMIT ? OFFSET ?
`, boolToInt(opts.IncludeDeleted), limit, max(opts.Offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPoliticians(rows)
}

func (s *Store) ListPendingPoliticians(ctx context.Context, limit int) ([]model.Politician, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+politicianCols+`
FROM politicians
WHERE pending_delete = 1 AND is_deleted = 0
ORDER BY updated_at ASC
LIMIT ?
`, clamp(limit, 1, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPoliticians(rows)
}

func (s *Store) GetStatement(ctx context.Context, id string) (model.Statement, error) {
	return getStatement(ctx, s.db, id)
}

func (s *Store) GetStatementView(ctx context.Context, id string) (model.StatementView, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+statementViewCols+`
FROM statements s
LEFT JOIN votes v ON v.statement_id = s.id
WHERE s.id = ?
GROUP BY s.id
`, id)
	return scanStatementView(row)
}

func (s *Store) ListStatements(ctx context.Context, opts store.StatementListOpts) ([]model.StatementView, error) {
	limit := clamp(opts.Limit, 1, 200)
	rows, err := s.db.QueryContext(ctx, `
SELECT `+statementViewCols+`
FROM statements s
LEFT JOIN votes v ON v.statement_id = s.id
WHERE (? = 1 OR s.is_deleted = 0) AND (? = '' OR s.politician_id = ?)
GROUP BY s.id
ORDER BY s.created_at DESC
LIMIT ? OFFSET ?
`, boolToInt(opts.IncludeDeleted), opts.PoliticianID, opts.PoliticianID, limit, max(opts.Offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStatementViews(rows)
}

func (s *Store) ListFlaggedStatements(ctx context.Context, limit int) ([]model.StatementView, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+statementViewCols+`
FROM statements s
LEFT JOIN votes v ON v.statement_id = s.id
WHERE s.flagged = 1 AND s.is_deleted = 0
GROUP BY s.id
ORDER BY s.updated_at DESC
LIMIT ?
`, clamp(limit, 1, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStatementViews(rows)
}

func (s *Store) ListPendingStatements(ctx context.Context, limit int) ([]model.Statement, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+statementCols+`
FROM statements
WHERE pending_delete = 1 AND is_deleted = 0
ORDER BY updated_at ASC
LIMIT ?
`, clamp(limit, 1, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) ListEditLogs(ctx context.Context, entityType, entityID string) ([]model.EditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, id, entity_type, entity_id, actor_id, before, after, created_at
FROM edit_logs
WHERE entity_type = ? AND entity_id = ?
ORDER BY seq ASC
`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.EditLog
	for rows.Next() {
		var e model.EditLog
		var before, after string
		var created int64
		if err := rows.Scan(&e.Seq, &e.ID, &e.EntityType, &e.EntityID, &e.ActorID, &before, &after, &created); err != nil {
			return nil, err
		}
		e.Before = []byte(before)
		e.After = []byte(after)
		e.CreatedAt = fromUnix(created)
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, email, password_hash, role, created_at)
VALUES (?, ?, ?, ?, ?)
`, user.ID, user.Email, user.PasswordHash, string(user.Role), toUnix(user.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, password_hash, role, created_at FROM users WHERE id = ?
`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, password_hash, role, created_at FROM users WHERE email = ?
`, email)
	return scanUser(row)
}

func (s *Store) SetUserRole(ctx context.Context, id string, role model.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) CreateToken(ctx context.Context, token model.Token) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO auth_tokens (token, user_id, expires_at, created_at)
VALUES (?, ?, ?, ?)
`, token.Token, token.UserID, toUnix(token.ExpiresAt), toUnix(time.Now()))
	return err
}

func (s *Store) GetToken(ctx context.Context, token string) (model.Token, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT token, user_id, expires_at FROM auth_tokens WHERE token = ?
`, token)
	var t model.Token
	var expires int64
	if err := row.Scan(&t.Token, &t.UserID, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Token{}, store.ErrNotFound
		}
		return model.Token{}, err
	}
	t.ExpiresAt = fromUnix(expires)
	return t, nil
}

func (s *Store) DeleteToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE token = ?`, token)
	return err
}

func (s *Store) GetSiteStats(ctx context.Context) (model.SiteStats, error) {
	var stats model.SiteStats
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM users`, &stats.Users},
		{`SELECT COUNT(*) FROM politicians WHERE is_deleted = 0`, &stats.Politicians},
		{`SELECT COUNT(*) FROM statements WHERE is_deleted = 0`, &stats.Statements},
		{`SELECT COUNT(*) FROM votes`, &stats.Votes},
		{`SELECT COUNT(*) FROM statements WHERE flagged = 1 AND is_deleted = 0`, &stats.Flagged},
		{`SELECT (SELECT COUNT(*) FROM politicians WHERE pending_delete = 1) + (SELECT COUNT(*) FROM statements WHERE pending_delete = 1)`, &stats.PendingDeletes},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

const politicianCols = `id, name, party, office, region, term_start, term_end, is_deleted, pending_delete, deleted_by, deleted_at, created_at, updated_at`

const statementCols = `id, politician_id, text, source_url, date_made, submitted_by_id, status, is_deleted, pending_delete, flagged, deleted_by, deleted_at, created_at, updated_at`

const statementViewCols = `s.id, s.politician_id, s.text, s.source_url, s.date_made, s.submitted_by_id, s.status, s.is_deleted, s.pending_delete, s.flagged, s.deleted_by, s.deleted_at, s.created_at, s.updated_at,
	COUNT(v.id), COALESCE(SUM(v.value), 0)`

type scanner interface {
	Scan(dest ...any) error
}

func getPolitician(ctx context.Context, q querier, id string) (model.Politician, error) {
	row := q.QueryRowContext(ctx, `SELECT `+politicianCols+` FROM politicians WHERE id = ?`, id)
	p, err := scanPolitician(row)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return model.Politician{}, wrapErr("get politician", err)
	}
	return p, err
}

func getStatement(ctx context.Context, q querier, id string) (model.Statement, error) {
	row := q.QueryRowContext(ctx, `SELECT `+statementCols+` FROM statements WHERE id = ?`, id)
	st, err := scanStatement(row)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return model.Statement{}, wrapErr("get statement", err)
	}
	return st, err
}

func getVote(ctx context.Context, q querier, userID, statementID string) (model.Vote, error) {
	row := q.QueryRowContext(ctx, `
SELECT id, user_id, statement_id, value, created_at, updated_at
FROM votes
WHERE user_id = ? AND statement_id = ?
`, userID, statementID)
	var v model.Vote
	var created, updated int64
	if err := row.Scan(&v.ID, &v.UserID, &v.StatementID, &v.Value, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Vote{}, store.ErrNotFound
		}
		return model.Vote{}, wrapErr("get vote", err)
	}
	v.CreatedAt = fromUnix(created)
	v.UpdatedAt = fromUnix(updated)
	return v, nil
}

func scanPolitician(row scanner) (model.Politician, error) {
	var p model.Politician
	var termStart, termEnd, created, updated int64
	var isDeleted, pending int
	var deletedBy sql.NullString
	var deletedAt sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.Party, &p.Office, &p.Region, &termStart, &termEnd,
		&isDeleted, &pending, &deletedBy, &deletedAt, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Politician{}, store.ErrNotFound
		}
		return model.Politician{}, err
	}
	p.TermStart = fromUnix(termStart)
	p.TermEnd = fromUnix(termEnd)
	p.IsDeleted = isDeleted == 1
	p.PendingDelete = pending == 1
	p.DeletedBy = stringPtr(deletedBy)
	p.DeletedAt = timePtr(deletedAt)
	p.CreatedAt = fromUnix(created)
	p.UpdatedAt = fromUnix(updated)
	return p, nil
}

func collectPoliticians(rows *sql.Rows) ([]model.Politician, error) {
	var out []model.Politician
	for rows.Next() {
		p, err := scanPolitician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanStatement(row scanner) (model.Statement, error) {
	var st model.Statement
	dest, finish := statementDest(&st)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Statement{}, store.ErrNotFound
		}
		return model.Statement{}, err
	}
	finish()
	return st, nil
}

func scanStatementView(row scanner) (model.StatementView, error) {
	var v model.StatementView
	var total, net int
	dest, finish := statementDest(&v.Statement)
	dest = append(dest, &total, &net)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StatementView{}, store.ErrNotFound
		}
		return model.StatementView{}, err
	}
	finish()
	v.Upvotes, v.Downvotes = model.SplitVotes(total, net)
	return v, nil
}

func collectStatementViews(rows *sql.Rows) ([]model.StatementView, error) {
	var out []model.StatementView
	for rows.Next() {
		v, err := scanStatementView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// statementDest returns scan targets in statementCols order and a func that
// copies the raw columns into st once Scan succeeded.
func statementDest(st *model.Statement) ([]any, func()) {
	var dateMade, created, updated int64
	var status string
	var isDeleted, pending, flagged int
	var deletedBy sql.NullString
	var deletedAt sql.NullInt64
	dest := []any{&st.ID, &st.PoliticianID, &st.Text, &st.SourceURL, &dateMade, &st.SubmittedByID, &status,
		&isDeleted, &pending, &flagged, &deletedBy, &deletedAt, &created, &updated}
	return dest, func() {
		st.DateMade = fromUnix(dateMade)
		st.Status = model.StatementStatus(status)
		st.IsDeleted = isDeleted == 1
		st.PendingDelete = pending == 1
		st.Flagged = flagged == 1
		st.DeletedBy = stringPtr(deletedBy)
		st.DeletedAt = timePtr(deletedAt)
		st.CreatedAt = fromUnix(created)
		st.UpdatedAt = fromUnix(updated)
	}
}

func scanUser(row scanner) (model.User, error) {
	var u model.User
	var role string
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.CreatedAt = fromUnix(created)
	return u, nil
}

func requireRow(res sql.Result) error {
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// wrapErr classifies lock contention as store.ErrConflict so callers can retry.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return fmt.Errorf("%s: %w: %v", op, store.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

// Times are stored as unix nanoseconds and read back in UTC.
func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toUnix(*t)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
