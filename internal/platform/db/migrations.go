package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema contains the statements to set up the database. They run on
// startup and are written to be re-runnable. Ledger groups and accounts are
// keyed by name within a society: names are the identifiers residents see,
// and the taxonomy is a closed set created at bootstrap.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'resident',
    society_id BIGINT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS societies (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    total_wings INT NOT NULL,
    address_line1 TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    postal_code TEXT NOT NULL DEFAULT '',
    join_code TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS society_admins (
    society_id BIGINT NOT NULL REFERENCES societies(id),
    user_id BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (society_id, user_id)
);

CREATE TABLE IF NOT EXISTS wings (
    society_id BIGINT NOT NULL REFERENCES societies(id),
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (society_id, name)
);

CREATE TABLE IF NOT EXISTS ledger_groups (
    society_id BIGINT NOT NULL REFERENCES societies(id),
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (society_id, name)
);

CREATE TABLE IF NOT EXISTS ledger_accounts (
    society_id BIGINT NOT NULL,
    group_name TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (society_id, group_name, name),
    FOREIGN KEY (society_id, group_name) REFERENCES ledger_groups(society_id, name)
);

CREATE TABLE IF NOT EXISTS ledger_balances (
    society_id BIGINT NOT NULL,
    group_name TEXT NOT NULL,
    account_name TEXT NOT NULL,
    snapshot_date DATE NOT NULL,
    daily_change NUMERIC(14,2) NOT NULL DEFAULT 0,
    cumulative_balance NUMERIC(14,2) NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (society_id, group_name, account_name, snapshot_date),
    FOREIGN KEY (society_id, group_name, account_name) REFERENCES ledger_accounts(society_id, group_name, name)
);

CREATE TABLE IF NOT EXISTS bill_items (
    society_id BIGINT NOT NULL REFERENCES societies(id),
    name TEXT NOT NULL,
    pricing_mode TEXT NOT NULL,
    rate NUMERIC(14,2) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (society_id, name)
);

CREATE TABLE IF NOT EXISTS bill_batches (
    id BIGSERIAL PRIMARY KEY,
    society_id BIGINT NOT NULL REFERENCES societies(id),
    bill_number TEXT NOT NULL,
    name TEXT NOT NULL,
    batch_type TEXT NOT NULL,
    start_date DATE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (society_id, bill_number)
);

CREATE TABLE IF NOT EXISTS flat_bills (
    id BIGSERIAL PRIMARY KEY,
    society_id BIGINT NOT NULL REFERENCES societies(id),
    bill_number TEXT NOT NULL,
    wing TEXT NOT NULL,
    flat_number TEXT NOT NULL,
    item TEXT NOT NULL DEFAULT '',
    amount NUMERIC(14,2) NOT NULL,
    status TEXT NOT NULL DEFAULT 'unpaid',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_flat_bills_bill_number ON flat_bills (society_id, bill_number);
CREATE INDEX IF NOT EXISTS idx_flat_bills_flat ON flat_bills (society_id, wing, flat_number);

CREATE TABLE IF NOT EXISTS gate_passes (
    id BIGSERIAL PRIMARY KEY,
    society_id BIGINT NOT NULL REFERENCES societies(id),
    code UUID NOT NULL UNIQUE,
    visitor_name TEXT NOT NULL,
    visitor_phone TEXT NOT NULL DEFAULT '',
    wing TEXT NOT NULL,
    flat_number TEXT NOT NULL,
    purpose TEXT NOT NULL DEFAULT '',
    expected_at TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    created_by BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_gate_passes_day ON gate_passes (society_id, expected_at);

CREATE TABLE IF NOT EXISTS complaints (
    id BIGSERIAL PRIMARY KEY,
    society_id BIGINT NOT NULL REFERENCES societies(id),
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT 'general',
    status TEXT NOT NULL DEFAULT 'open',
    wing TEXT NOT NULL DEFAULT '',
    flat_number TEXT NOT NULL DEFAULT '',
    raised_by BIGINT NOT NULL,
    assigned_to BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_logs (
    id BIGSERIAL PRIMARY KEY,
    society_id BIGINT,
    actor_id BIGINT NOT NULL,
    action TEXT NOT NULL,
    entity TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    meta JSONB,
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    key TEXT PRIMARY KEY,
    module TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
`

// Migrate executes the schema setup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("platform/db: migrate: %w", err)
	}
	return nil
}
