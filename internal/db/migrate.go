package db

import (
	"context"
	"fmt"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT UNIQUE NOT NULL,
    email TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    avatar_url TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    email_verified BOOLEAN NOT NULL DEFAULT FALSE,
    given_name TEXT NOT NULL DEFAULT '',
    family_name TEXT NOT NULL DEFAULT '',
    locale TEXT NOT NULL DEFAULT '',
    subject_id TEXT NOT NULL DEFAULT '',
    profile_link TEXT NOT NULL DEFAULT '',
    gender TEXT NOT NULL DEFAULT '',
    hosted_domain TEXT NOT NULL DEFAULT '',
    raw_provider_response TEXT NOT NULL DEFAULT '',
    needs_review BOOLEAN NOT NULL DEFAULT FALSE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    last_profile_sync BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE (provider, provider_id)
);

CREATE TABLE IF NOT EXISTS user_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token_id TEXT UNIQUE NOT NULL,
    token TEXT UNIQUE NOT NULL,
    expires_at BIGINT NOT NULL,
    ip_address TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at BIGINT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS user_sessions_one_active
ON user_sessions (user_id) WHERE is_active;
`

const postgresMigration = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    uuid text UNIQUE NOT NULL,
    email text UNIQUE NOT NULL,
    name text NOT NULL DEFAULT '',
    avatar_url text NOT NULL DEFAULT '',
    provider text NOT NULL,
    provider_id text NOT NULL,
    email_verified boolean NOT NULL DEFAULT false,
    given_name text NOT NULL DEFAULT '',
    family_name text NOT NULL DEFAULT '',
    locale text NOT NULL DEFAULT '',
    subject_id text NOT NULL DEFAULT '',
    profile_link text NOT NULL DEFAULT '',
    gender text NOT NULL DEFAULT '',
    hosted_domain text NOT NULL DEFAULT '',
    raw_provider_response text NOT NULL DEFAULT '',
    needs_review boolean NOT NULL DEFAULT false,
    is_active boolean NOT NULL DEFAULT true,
    last_profile_sync bigint NOT NULL DEFAULT 0,
    created_at bigint NOT NULL,
    updated_at bigint NOT NULL,
    CONSTRAINT users_provider_unique UNIQUE (provider, provider_id)
);

CREATE TABLE IF NOT EXISTS user_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id bigint NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token_id text UNIQUE NOT NULL,
    token text UNIQUE NOT NULL,
    expires_at bigint NOT NULL,
    ip_address text NOT NULL DEFAULT '',
    user_agent text NOT NULL DEFAULT '',
    is_active boolean NOT NULL DEFAULT true,
    created_at bigint NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS user_sessions_one_active
ON user_sessions (user_id) WHERE is_active;
`

// Migrate creates the users and user_sessions tables when missing.
func (d *DB) Migrate(ctx context.Context) error {
	schema := sqliteMigration
	if d.Dialect == Postgres {
		schema = postgresMigration
	}
	if _, err := d.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("db: migrate %s: %w", d.Dialect, err)
	}
	return nil
}
