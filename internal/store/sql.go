package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/db"

	"github.com/lib/pq"
)

const userColumns = `id, uuid, email, name, avatar_url, provider, provider_id,
	email_verified, given_name, family_name, locale, subject_id, profile_link,
	gender, hosted_domain, raw_provider_response, needs_review, is_active,
	last_profile_sync, created_at, updated_at`

const sessionColumns = `id, user_id, token_id, token, expires_at, ip_address,
	user_agent, is_active, created_at`

// SQLStore implements Store on SQLite or Postgres.
type SQLStore struct {
	db *db.DB
}

func NewSQLStore(d *db.DB) *SQLStore {
	return &SQLStore{db: d}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.Principal, error) {
	var (
		p                              auth.Principal
		raw                            string
		lastSync, createdAt, updatedAt int64
	)
	err := row.Scan(
		&p.ID, &p.ExternalID, &p.Email, &p.DisplayName, &p.AvatarURL, &p.Provider, &p.ProviderID,
		&p.EmailVerified, &p.GivenName, &p.FamilyName, &p.Locale, &p.SubjectID, &p.ProfileLink,
		&p.Gender, &p.HostedDomain, &raw, &p.NeedsReview, &p.Active,
		&lastSync, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		p.RawProviderResponse = []byte(raw)
	}
	p.LastProfileSync = fromMillis(lastSync)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func scanSession(row rowScanner) (*auth.Session, error) {
	var (
		s                    auth.Session
		expiresAt, createdAt int64
	)
	err := row.Scan(&s.ID, &s.UserID, &s.TokenID, &s.Token, &expiresAt, &s.IPAddress,
		&s.UserAgent, &s.Active, &createdAt)
	if err != nil {
		return nil, err
	}
	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	return &s, nil
}

func (s *SQLStore) FindUserByEmailOrProvider(
	ctx context.Context,
	email, provider, providerID string,
) ([]*auth.Principal, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT `+userColumns+`
		FROM users
		WHERE email = ? OR (provider = ? AND provider_id = ?)
		ORDER BY id
	`), email, provider, providerID)
	if err != nil {
		return nil, fmt.Errorf("store: find user: %w", err)
	}
	defer rows.Close()

	var out []*auth.Principal
	for rows.Next() {
		p, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: find user: %w", err)
	}
	return out, nil
}

func (s *SQLStore) UpsertUser(ctx context.Context, p *auth.Principal) error {
	if p.ID == 0 {
		return s.insertUser(ctx, p)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE users SET
			email = ?, name = ?, avatar_url = ?, provider = ?, provider_id = ?,
			email_verified = ?, given_name = ?, family_name = ?, locale = ?,
			subject_id = ?, profile_link = ?, gender = ?, hosted_domain = ?,
			raw_provider_response = ?, needs_review = ?, is_active = ?,
			last_profile_sync = ?, updated_at = ?
		WHERE id = ?
	`),
		p.Email, p.DisplayName, p.AvatarURL, p.Provider, p.ProviderID,
		p.EmailVerified, p.GivenName, p.FamilyName, p.Locale,
		p.SubjectID, p.ProfileLink, p.Gender, p.HostedDomain,
		string(p.RawProviderResponse), p.NeedsReview, p.Active,
		toMillis(p.LastProfileSync), toMillis(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return wrapWrite("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) insertUser(ctx context.Context, p *auth.Principal) error {
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO users (
			uuid, email, name, avatar_url, provider, provider_id,
			email_verified, given_name, family_name, locale, subject_id, profile_link,
			gender, hosted_domain, raw_provider_response, needs_review, is_active,
			last_profile_sync, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		p.ExternalID, p.Email, p.DisplayName, p.AvatarURL, p.Provider, p.ProviderID,
		p.EmailVerified, p.GivenName, p.FamilyName, p.Locale, p.SubjectID, p.ProfileLink,
		p.Gender, p.HostedDomain, string(p.RawProviderResponse), p.NeedsReview, p.Active,
		toMillis(p.LastProfileSync), toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	).Scan(&p.ID)
	if err != nil {
		return wrapWrite("insert user", err)
	}
	return nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int64) (*auth.Principal, error) {
	p, err := scanUser(s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+userColumns+` FROM users WHERE id = ?
	`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return p, nil
}

func (s *SQLStore) ReplaceActiveSession(ctx context.Context, sess *auth.Session) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// serializes concurrent logins of the same user
	var userID int64
	err = tx.QueryRowContext(ctx, s.db.Rebind(`SELECT id FROM users WHERE id = ?`+s.db.ForUpdate()), sess.UserID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: lock user: %w", err)
	}

	if _, err = tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM user_sessions WHERE user_id = ?`), sess.UserID); err != nil {
		return fmt.Errorf("store: delete sessions: %w", err)
	}

	err = tx.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO user_sessions (user_id, token_id, token, expires_at, ip_address, user_agent, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		sess.UserID, sess.TokenID, sess.Token, toMillis(sess.ExpiresAt),
		sess.IPAddress, sess.UserAgent, sess.Active, toMillis(sess.CreatedAt),
	).Scan(&sess.ID)
	if err != nil {
		return wrapWrite("insert session", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSessionByTokenID(ctx context.Context, tokenID string) (*auth.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+sessionColumns+` FROM user_sessions WHERE token_id = ?
	`), tokenID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) DeactivateSession(ctx context.Context, tokenID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE user_sessions SET is_active = ? WHERE token_id = ?
	`), false, tokenID)
	if err != nil {
		return fmt.Errorf("store: deactivate session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: deactivate session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func wrapWrite(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("store: %s: %w: %v", op, ErrConflict, err)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
