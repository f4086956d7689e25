package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees an account exists for the provided address.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, addr Address) error {
	_, err := l.db.Exec(ctx, `INSERT INTO accounts (id, address) VALUES ($1, $2)
        ON CONFLICT (address) DO NOTHING`, uuid.New(), addr.String())
	return err
}

// Balance returns the summed balance for the specified account.
func (l *PostgresLedger) Balance(ctx context.Context, addr Address) (uint64, error) {
	const query = `
        SELECT COALESCE(SUM(e.amount), 0)
        FROM entries e
        INNER JOIN accounts a ON a.id = e.account_id
        WHERE a.address = $1`
	var sum pgtype.Numeric
	if err := l.db.QueryRow(ctx, query, addr.String()).Scan(&sum); err != nil {
		return 0, err
	}
	return Uint64(sum)
}

// CardIn records a card funding authorization crediting addr from the acquirer account.
func (l *PostgresLedger) CardIn(ctx context.Context, addr Address, clientTxID string, amount uint64) (FundingResult, error) {
	return l.card(ctx, "card_in", AcquirerAccount, addr, addr, clientTxID, amount)
}

// CardOut records a card withdrawal by debiting addr and crediting the acquirer account.
func (l *PostgresLedger) CardOut(ctx context.Context, addr Address, clientTxID string, amount uint64) (FundingResult, error) {
	return l.card(ctx, "card_out", addr, AcquirerAccount, addr, clientTxID, amount)
}

func (l *PostgresLedger) card(ctx context.Context, kind string, from, to, owner Address, clientTxID string, amount uint64) (FundingResult, error) {
	if amount == 0 {
		return FundingResult{}, fmt.Errorf("amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return FundingResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	ownerID, err := accountIDForAddress(ctx, tx, owner)
	if err != nil {
		return FundingResult{}, err
	}

	const existingQuery = `SELECT id, status FROM transfers WHERE client_tx_id = $1 AND kind = $2`
	var existingTxID uuid.UUID
	var existingStatus string
	if err := tx.QueryRow(ctx, existingQuery, clientTxID, kind).Scan(&existingTxID, &existingStatus); err == nil {
		bal, balErr := balanceForAccount(ctx, tx, ownerID)
		if balErr != nil {
			return FundingResult{}, balErr
		}
		return FundingResult{TransactionID: existingTxID.String(), Balance: bal, Status: existingStatus}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return FundingResult{}, err
	}

	txID, err := post(ctx, tx, from, to, kind, clientTxID, FundingStatusPendingSettlement, amount)
	if err != nil {
		return FundingResult{}, err
	}
	balance, err := balanceForAccount(ctx, tx, ownerID)
	if err != nil {
		return FundingResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return FundingResult{}, err
	}

	return FundingResult{TransactionID: txID.String(), Balance: balance, Status: FundingStatusPendingSettlement}, nil
}

// TxPoster posts transfers inside a caller-owned transaction.
type TxPoster struct {
	tx pgx.Tx
}

// NewTxPoster binds a poster to tx. The caller commits or rolls back.
func NewTxPoster(tx pgx.Tx) *TxPoster {
	return &TxPoster{tx: tx}
}

// EnsureAccount creates the account for addr within the transaction.
func (p *TxPoster) EnsureAccount(ctx context.Context, addr Address) error {
	_, err := p.tx.Exec(ctx, `INSERT INTO accounts (id, address) VALUES ($1, $2)
        ON CONFLICT (address) DO NOTHING`, uuid.New(), addr.String())
	return err
}

// Transfer records a balanced posting between two accounts.
func (p *TxPoster) Transfer(ctx context.Context, from, to Address, kind string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	_, err := post(ctx, p.tx, from, to, kind, uuid.NewString(), FundingStatusCompleted, amount)
	return err
}

// post writes one transfer row and its two entries. The source account is
// locked and checked for funds unless it is the acquirer account.
func post(ctx context.Context, tx pgx.Tx, from, to Address, kind, clientTxID, status string, amount uint64) (uuid.UUID, error) {
	fromID, err := accountIDForAddress(ctx, tx, from)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrInsufficientFunds
		}
		return uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO accounts (id, address) VALUES ($1, $2)
        ON CONFLICT (address) DO NOTHING`, uuid.New(), to.String()); err != nil {
		return uuid.Nil, err
	}
	toID, err := accountIDForAddress(ctx, tx, to)
	if err != nil {
		return uuid.Nil, err
	}

	if from != AcquirerAccount {
		fromBalance, err := balanceForAccount(ctx, tx, fromID)
		if err != nil {
			return uuid.Nil, err
		}
		if fromBalance < amount {
			return uuid.Nil, ErrInsufficientFunds
		}
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transfers (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`, txID, clientTxID, kind, status); err != nil {
		return uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transfer_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), txID, fromID, negNumeric(amount)); err != nil {
		return uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transfer_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), txID, toID, Numeric(amount)); err != nil {
		return uuid.Nil, err
	}
	return txID, nil
}

func accountIDForAddress(ctx context.Context, tx pgx.Tx, addr Address) (uuid.UUID, error) {
	const query = `SELECT id FROM accounts WHERE address = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, addr.String()).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("account %s not found: %w", addr, err)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (uint64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM entries WHERE account_id = $1`
	var sum pgtype.Numeric
	if err := tx.QueryRow(ctx, query, accountID).Scan(&sum); err != nil {
		return 0, err
	}
	return Uint64(sum)
}

// Numeric encodes v for NUMERIC(20,0) columns, which hold the full uint64 range.
func Numeric(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

func negNumeric(v uint64) pgtype.Numeric {
	n := Numeric(v)
	n.Int.Neg(n.Int)
	return n
}

// Uint64 decodes a NUMERIC value that must be a non-negative integer within uint64.
func Uint64(n pgtype.Numeric) (uint64, error) {
	if !n.Valid || n.Int == nil {
		return 0, nil
	}
	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		rem := new(big.Int)
		v.QuoRem(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil), rem)
		if rem.Sign() != 0 {
			return 0, fmt.Errorf("numeric %s is not an integer", n.Int)
		}
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("numeric %s out of uint64 range", v)
	}
	return v.Uint64(), nil
}
