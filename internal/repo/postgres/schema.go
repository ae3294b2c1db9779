package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS admins (
	id            text PRIMARY KEY,
	name          text NOT NULL,
	email         text NOT NULL DEFAULT '',
	username      text NOT NULL UNIQUE,
	password_hash text NOT NULL,
	tier          text NOT NULL DEFAULT 'Admin',
	created_at    timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS hosts (
	id                  text PRIMARY KEY,
	name                text NOT NULL UNIQUE,
	username            text NOT NULL UNIQUE,
	password_hash       text NOT NULL,
	department          text NOT NULL DEFAULT '',
	employee_id         text NOT NULL DEFAULT '',
	contact             text NOT NULL DEFAULT '',
	pre_approval_limit  integer NOT NULL DEFAULT 10 CHECK (pre_approval_limit > 0),
	visit_request_queue text[] NOT NULL DEFAULT '{}',
	pre_approved        text[] NOT NULL DEFAULT '{}',
	created_at          timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS gates (
	id            text PRIMARY KEY,
	name          text NOT NULL UNIQUE,
	login_id      text NOT NULL UNIQUE,
	password_hash text NOT NULL,
	created_at    timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS visitors (
	id                     text PRIMARY KEY,
	fullname               text NOT NULL,
	email                  text NOT NULL DEFAULT '',
	contact                text NOT NULL DEFAULT '',
	purpose                text NOT NULL,
	organisation           text NOT NULL DEFAULT '',
	employee_id            text NOT NULL DEFAULT '',
	photo                  text NOT NULL DEFAULT '',
	host_id                text NOT NULL,
	gate_id                text,
	status                 text NOT NULL DEFAULT 'Waiting'
	                       CHECK (status IN ('Waiting','Approved','Declined','Checked-in','Checked-out')),
	check_in               timestamptz,
	check_out              timestamptz,
	pre_approved           boolean NOT NULL DEFAULT false,
	expected_check_in_from timestamptz,
	expected_check_in_to   timestamptz,
	badge_qr               text,
	badge_issued_at        timestamptz,
	created_at             timestamptz NOT NULL DEFAULT now(),
	updated_at             timestamptz NOT NULL DEFAULT now(),
	CHECK (NOT pre_approved OR (expected_check_in_from IS NOT NULL AND expected_check_in_to >= expected_check_in_from))
)`,
	`CREATE INDEX IF NOT EXISTS visitors_host_created_idx ON visitors (host_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS visitors_host_window_idx ON visitors (host_id, expected_check_in_from) WHERE pre_approved`,
	`CREATE INDEX IF NOT EXISTS visitors_gate_created_idx ON visitors (gate_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS rate_limits (
	key          text PRIMARY KEY,
	count        integer NOT NULL,
	window_start timestamptz NOT NULL,
	expires_at   timestamptz NOT NULL
)`,
}

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
