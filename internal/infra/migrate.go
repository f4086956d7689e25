package infra

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/git-voucher/escrow/internal/ledger"
)

// schema is applied in order. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
        id            UUID PRIMARY KEY,
        handle        TEXT NOT NULL UNIQUE,
        secret_hash   BYTEA NOT NULL,
        token_version INTEGER NOT NULL DEFAULT 0,
        created_at    TIMESTAMPTZ NOT NULL,
        last_login    TIMESTAMPTZ
    )`,
	`CREATE TABLE IF NOT EXISTS accounts (
        id      UUID PRIMARY KEY,
        address TEXT NOT NULL UNIQUE
    )`,
	`CREATE TABLE IF NOT EXISTS transfers (
        id           UUID PRIMARY KEY,
        client_tx_id TEXT NOT NULL,
        kind         TEXT NOT NULL,
        status       TEXT NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (client_tx_id, kind)
    )`,
	`CREATE TABLE IF NOT EXISTS entries (
        id          UUID PRIMARY KEY,
        transfer_id UUID NOT NULL REFERENCES transfers (id),
        account_id  UUID NOT NULL REFERENCES accounts (id),
        amount      NUMERIC(21, 0) NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS entries_account_id_idx ON entries (account_id)`,
	`CREATE TABLE IF NOT EXISTS organizations (
        address          TEXT PRIMARY KEY,
        external_id      NUMERIC(20, 0) NOT NULL UNIQUE,
        admin            TEXT NOT NULL,
        balance          NUMERIC(20, 0) NOT NULL CHECK (balance >= 0),
        maintainers      TEXT[] NOT NULL DEFAULT '{}',
        vouchers_created NUMERIC(20, 0) NOT NULL DEFAULT 0,
        nonce            SMALLINT NOT NULL,
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS vouchers (
        address               TEXT PRIMARY KEY,
        voucher_id            TEXT NOT NULL UNIQUE CHECK (octet_length(voucher_id) <= 64),
        organization          TEXT NOT NULL REFERENCES organizations (address),
        recipient_external_id NUMERIC(20, 0) NOT NULL,
        amount                NUMERIC(20, 0) NOT NULL CHECK (amount > 0),
        created_at            BIGINT NOT NULL,
        expires_at            BIGINT NOT NULL,
        state                 TEXT NOT NULL CHECK (state IN ('pending', 'claimed', 'cancelled', 'expired')),
        metadata              TEXT NOT NULL DEFAULT '' CHECK (octet_length(metadata) <= 512),
        nonce                 SMALLINT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS vouchers_organization_idx ON vouchers (organization, expires_at, voucher_id)`,
	`CREATE INDEX IF NOT EXISTS vouchers_pending_expiry_idx ON vouchers (expires_at, voucher_id) WHERE state = 'pending'`,
}

// Migrate creates the schema and the acquirer account.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	_, err := db.Exec(ctx, `INSERT INTO accounts (id, address) VALUES ($1, $2)
        ON CONFLICT (address) DO NOTHING`, uuid.New(), ledger.AcquirerAccount.String())
	if err != nil {
		return fmt.Errorf("seed acquirer account: %w", err)
	}
	return nil
}
