package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/git-voucher/escrow/internal/ledger"
)

// Tx is the store as seen from inside one operation. Every record read
// through it stays locked until the transaction ends, and nothing written
// through it is visible to others before commit.
type Tx interface {
	Organization(ctx context.Context, addr ledger.Address) (Organization, error)
	InsertOrganization(ctx context.Context, org Organization) error
	UpdateOrganization(ctx context.Context, org Organization) error
	Voucher(ctx context.Context, addr ledger.Address) (Voucher, error)
	InsertVoucher(ctx context.Context, v Voucher) error
	UpdateVoucher(ctx context.Context, v Voucher) error
	ledger.Poster
}

// ExpiryCursor marks a position in (ExpiresAt, VoucherID) order.
type ExpiryCursor struct {
	ExpiresAt int64
	VoucherID string
}

// IsZero reports whether the cursor points before every voucher.
func (c ExpiryCursor) IsZero() bool {
	return c == ExpiryCursor{}
}

// CursorOf returns the cursor positioned at v.
func CursorOf(v Voucher) ExpiryCursor {
	return ExpiryCursor{ExpiresAt: v.ExpiresAt, VoucherID: v.VoucherID}
}

// VoucherFilter narrows ListVouchers. Zero values disable a condition.
// Results are ordered by (ExpiresAt, VoucherID); since every voucher lives
// for VoucherLifetime this is also creation order.
type VoucherFilter struct {
	Organization  ledger.Address
	State         State
	ExpiredBefore int64
	After         ExpiryCursor
	Limit         int
}

// Repository persists organizations and vouchers.
type Repository interface {
	// Atomically applies everything fn does through tx, or nothing when fn
	// returns an error.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetOrganization(ctx context.Context, addr ledger.Address) (Organization, error)
	GetVoucher(ctx context.Context, addr ledger.Address) (Voucher, error)
	ListVouchers(ctx context.Context, filter VoucherFilter) ([]Voucher, error)
}

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PostgresRepository stores escrow records in PostgreSQL.
type PostgresRepository struct {
	db         *pgxpool.Pool
	maxElapsed time.Duration
}

// NewPostgresRepository builds a repository backed by PostgreSQL. Transactions
// that lose a serialization race are retried with exponential backoff for at
// most maxElapsed.
func NewPostgresRepository(db *pgxpool.Pool, maxElapsed time.Duration) *PostgresRepository {
	return &PostgresRepository{db: db, maxElapsed: maxElapsed}
}

// Atomically runs fn in a single transaction.
func (r *PostgresRepository) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = r.maxElapsed

	return backoff.Retry(func() error {
		err := r.attempt(ctx, fn)
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

func (r *PostgresRepository) attempt(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &pgTx{tx: tx, poster: ledger.NewTxPoster(tx)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

// GetOrganization fetches an organization without locking it.
func (r *PostgresRepository) GetOrganization(ctx context.Context, addr ledger.Address) (Organization, error) {
	return scanOrganization(r.db.QueryRow(ctx, selectOrganization+` WHERE address = $1`, addr.String()))
}

// GetVoucher fetches a voucher without locking it.
func (r *PostgresRepository) GetVoucher(ctx context.Context, addr ledger.Address) (Voucher, error) {
	return scanVoucher(r.db.QueryRow(ctx, selectVoucher+` WHERE address = $1`, addr.String()))
}

// ListVouchers returns vouchers ordered by expiry, then id.
func (r *PostgresRepository) ListVouchers(ctx context.Context, filter VoucherFilter) ([]Voucher, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Organization != "" {
		args = append(args, filter.Organization.String())
		conds = append(conds, fmt.Sprintf("organization = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.ExpiredBefore != 0 {
		args = append(args, filter.ExpiredBefore)
		conds = append(conds, fmt.Sprintf("expires_at < $%d", len(args)))
	}
	if !filter.After.IsZero() {
		args = append(args, filter.After.ExpiresAt, filter.After.VoucherID)
		conds = append(conds, fmt.Sprintf("(expires_at, voucher_id) > ($%d, $%d)", len(args)-1, len(args)))
	}

	query := selectVoucher
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY expires_at, voucher_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx     pgx.Tx
	poster *ledger.TxPoster
}

func (t *pgTx) Organization(ctx context.Context, addr ledger.Address) (Organization, error) {
	return scanOrganization(t.tx.QueryRow(ctx, selectOrganization+` WHERE address = $1 FOR UPDATE`, addr.String()))
}

func (t *pgTx) InsertOrganization(ctx context.Context, org Organization) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO organizations
        (address, external_id, admin, balance, maintainers, vouchers_created, nonce, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		org.Address.String(), ledger.Numeric(org.ExternalID), string(org.Admin), ledger.Numeric(org.Balance),
		identitiesToStrings(org.Maintainers), ledger.Numeric(org.VouchersCreated), int16(org.Nonce))
	if err != nil {
		return translateInsert(err)
	}
	return t.poster.EnsureAccount(ctx, org.Address)
}

func (t *pgTx) UpdateOrganization(ctx context.Context, org Organization) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE organizations
        SET balance = $2, maintainers = $3, vouchers_created = $4
        WHERE address = $1`,
		org.Address.String(), ledger.Numeric(org.Balance), identitiesToStrings(org.Maintainers), ledger.Numeric(org.VouchersCreated))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Voucher(ctx context.Context, addr ledger.Address) (Voucher, error) {
	return scanVoucher(t.tx.QueryRow(ctx, selectVoucher+` WHERE address = $1 FOR UPDATE`, addr.String()))
}

func (t *pgTx) InsertVoucher(ctx context.Context, v Voucher) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO vouchers
        (address, voucher_id, organization, recipient_external_id, amount, created_at, expires_at, state, metadata, nonce)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.Address.String(), v.VoucherID, v.Organization.String(), ledger.Numeric(v.RecipientExternalID),
		ledger.Numeric(v.Amount), v.CreatedAt, v.ExpiresAt, string(v.State), v.Metadata, int16(v.Nonce))
	if err != nil {
		return translateInsert(err)
	}
	return t.poster.EnsureAccount(ctx, v.Address)
}

func (t *pgTx) UpdateVoucher(ctx context.Context, v Voucher) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE vouchers SET state = $2 WHERE address = $1`, v.Address.String(), string(v.State))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Transfer(ctx context.Context, from, to ledger.Address, kind string, amount uint64) error {
	return t.poster.Transfer(ctx, from, to, kind, amount)
}

const selectOrganization = `SELECT address, external_id, admin, balance, maintainers, vouchers_created, nonce
        FROM organizations`

const selectVoucher = `SELECT address, voucher_id, organization, recipient_external_id, amount,
        created_at, expires_at, state, metadata, nonce
        FROM vouchers`

func scanOrganization(row pgx.Row) (Organization, error) {
	var (
		org                                  Organization
		addr, admin                          string
		externalID, balance, vouchersCreated pgtype.Numeric
		maintainers                          []string
		nonce                                int16
	)
	if err := row.Scan(&addr, &externalID, &admin, &balance, &maintainers, &vouchersCreated, &nonce); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	var err error
	if org.ExternalID, err = ledger.Uint64(externalID); err != nil {
		return Organization{}, err
	}
	if org.Balance, err = ledger.Uint64(balance); err != nil {
		return Organization{}, err
	}
	if org.VouchersCreated, err = ledger.Uint64(vouchersCreated); err != nil {
		return Organization{}, err
	}
	org.Address = ledger.Address(addr)
	org.Admin = Identity(admin)
	org.Nonce = uint8(nonce)
	for _, m := range maintainers {
		org.Maintainers = append(org.Maintainers, Identity(m))
	}
	return org, nil
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var (
		v                  Voucher
		addr, organization string
		state              string
		recipient, amount  pgtype.Numeric
		nonce              int16
	)
	if err := row.Scan(&addr, &v.VoucherID, &organization, &recipient, &amount,
		&v.CreatedAt, &v.ExpiresAt, &state, &v.Metadata, &nonce); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, err
	}
	var err error
	if v.RecipientExternalID, err = ledger.Uint64(recipient); err != nil {
		return Voucher{}, err
	}
	if v.Amount, err = ledger.Uint64(amount); err != nil {
		return Voucher{}, err
	}
	if v.State, err = ParseState(state); err != nil {
		return Voucher{}, err
	}
	v.Address = ledger.Address(addr)
	v.Organization = ledger.Address(organization)
	v.Nonce = uint8(nonce)
	return v, nil
}

func translateInsert(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrAddressInUse
	}
	return err
}

func identitiesToStrings(ids []Identity) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
