package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const recordColumns = `id, type, title, body, slug, status, COALESCE(parent_id, 0), COALESCE(author_id, 0), created_at, modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var item Record
	err := row.Scan(
		&item.ID,
		&item.Type,
		&item.Title,
		&item.Body,
		&item.Slug,
		&item.Status,
		&item.ParentID,
		&item.AuthorID,
		&item.CreatedAt,
		&item.ModifiedAt,
	)
	return item, err
}

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, role, created_at FROM users WHERE display_name = $1
	`, name).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.CreatedAt)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	insertUser := `
		INSERT INTO users (display_name, email)
		VALUES ($1, CONCAT(LOWER(REPLACE($1, ' ', '.')), '@local.wiki.dev'))
		RETURNING id, display_name, email, role, created_at
	`
	if err := s.db.QueryRowContext(ctx, insertUser, name).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.CreatedAt); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, role, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) SetUserRole(ctx context.Context, userID int64, role string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET role=$2 WHERE id=$1`, userID, role)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// CreateRecord inserts a record of any type and returns its id.
func (s *PostgresStore) CreateRecord(ctx context.Context, item Record) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO records (type, title, body, slug, status, parent_id, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, item.Type, item.Title, item.Body, item.Slug, item.Status, nullID(item.ParentID), nullID(item.AuthorID)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create %s record: %w", item.Type, err)
	}
	return id, nil
}

// CreateEntry inserts a published entry together with its first revision.
func (s *PostgresStore) CreateEntry(ctx context.Context, draft Record) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin create entry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entry, err := scanRecord(tx.QueryRowContext(ctx, `
		INSERT INTO records (type, title, body, slug, status, author_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+recordColumns,
		TypeEntry, draft.Title, draft.Body, slugify(draft.Title), StatusPublish, nullID(draft.AuthorID)))
	if err != nil {
		return Record{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := insertRevision(ctx, tx, entry.ID, draft.Title, draft.Body, draft.AuthorID); err != nil {
		return Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit create entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id int64) (Record, error) {
	item, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return item, nil
}

func (s *PostgresStore) ListEntries(ctx context.Context) ([]Record, error) {
	return s.listRecords(ctx, "list entries", `
		SELECT `+recordColumns+`
		FROM records
		WHERE type=$1
		ORDER BY modified_at DESC, id DESC
	`, TypeEntry)
}

// ListChildren returns child ids of the given type, newest first. There is
// no upper bound on the result size.
func (s *PostgresStore) ListChildren(ctx context.Context, parentID int64, recordType, status string) ([]int64, error) {
	if status == "" {
		status = StatusAny
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM records
		WHERE parent_id=$1 AND type=$2 AND ($3 = 'any' OR status=$3)
		ORDER BY created_at DESC, id DESC
	`, parentID, recordType, status)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return ids, nil
}

// ListRevisions returns the stored snapshots of an entry, newest first.
func (s *PostgresStore) ListRevisions(ctx context.Context, entryID int64) ([]Record, error) {
	return s.listRecords(ctx, "list revisions", `
		SELECT `+recordColumns+`
		FROM records
		WHERE parent_id=$1 AND type=$2
		ORDER BY created_at DESC, id DESC
	`, entryID, TypeRevision)
}

// SaveEntry is the ordinary save path. The entry row is updated and a
// revision snapshot inserted only when title or body actually changed; the
// returned bool reports whether that happened.
func (s *PostgresStore) SaveEntry(ctx context.Context, update EntryUpdate) (Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, false, fmt.Errorf("begin save entry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanRecord(tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE id=$1 AND type=$2 FOR UPDATE
	`, update.ID, TypeEntry))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, ErrNotFound
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lock entry: %w", err)
	}
	if current.Title == update.Title && current.Body == update.Body {
		return current, false, nil
	}

	updated, err := scanRecord(tx.QueryRowContext(ctx, `
		UPDATE records
		SET title=$2, body=$3, modified_at=NOW()
		WHERE id=$1
		RETURNING `+recordColumns,
		update.ID, update.Title, update.Body))
	if err != nil {
		return Record{}, false, fmt.Errorf("update entry: %w", err)
	}
	if err := insertRevision(ctx, tx, update.ID, update.Title, update.Body, update.AuthorID); err != nil {
		return Record{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, false, fmt.Errorf("commit save entry: %w", err)
	}
	return updated, true, nil
}

func (s *PostgresStore) SetMeta(ctx context.Context, recordID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO record_meta (record_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_id, meta_key) DO UPDATE SET meta_value=EXCLUDED.meta_value
	`, recordID, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta returns the stored value or "" when the key was never set.
func (s *PostgresStore) GetMeta(ctx context.Context, recordID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT meta_value FROM record_meta WHERE record_id=$1 AND meta_key=$2
	`, recordID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) listRecords(ctx context.Context, op, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Record, 0)
	for rows.Next() {
		item, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return items, nil
}

func insertRevision(ctx context.Context, tx *sql.Tx, entryID int64, title, body string, authorID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (type, title, body, slug, status, parent_id, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, TypeRevision, title, body, fmt.Sprintf("%d-revision", entryID), StatusInherit, entryID, nullID(authorID))
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return nil
}

func nullID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
