package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowFunc adapts a closure to pgx.Row so single-row results can be scripted.
type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

// scriptTx serves queued rows to QueryRow, one per call, and satisfies the
// rest of pgx.Tx with no-ops.
type scriptTx struct {
	rows []pgx.Row
}

func (t *scriptTx) QueryRow(context.Context, string, ...any) pgx.Row {
	if len(t.rows) == 0 {
		return rowFunc(func(...any) error { return errors.New("no scripted row") })
	}
	row := t.rows[0]
	t.rows = t.rows[1:]
	return row
}

func (t *scriptTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *scriptTx) Commit(context.Context) error          { return nil }
func (t *scriptTx) Rollback(context.Context) error        { return nil }
func (t *scriptTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *scriptTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *scriptTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *scriptTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *scriptTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *scriptTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *scriptTx) Conn() *pgx.Conn { return nil }

func noRowsRow() pgx.Row {
	return rowFunc(func(...any) error { return pgx.ErrNoRows })
}

func existsRow(exists bool) pgx.Row {
	return rowFunc(func(dest ...any) error {
		*(dest[0].(*bool)) = exists
		return nil
	})
}

func balanceRow(balance int64) pgx.Row {
	return rowFunc(func(dest ...any) error {
		*(dest[0].(*int64)) = balance
		return nil
	})
}

func TestDebitDistinguishesMissingWalletFromShortBalance(t *testing.T) {
	repo := &Repository{}
	ctx := context.Background()
	walletID := uuid.New()

	// The conditional update matches nothing and the wallet does not exist.
	tx := &scriptTx{rows: []pgx.Row{noRowsRow(), existsRow(false)}}
	if _, err := repo.Debit(ctx, tx, walletID, 100); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("missing wallet: expected ErrNoRows, got %v", err)
	}

	// The wallet exists but the balance does not cover the debit.
	tx = &scriptTx{rows: []pgx.Row{noRowsRow(), existsRow(true)}}
	if _, err := repo.Debit(ctx, tx, walletID, 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("short balance: expected ErrInsufficientFunds, got %v", err)
	}
}

func TestDebitReturnsNewBalance(t *testing.T) {
	repo := &Repository{}

	tx := &scriptTx{rows: []pgx.Row{balanceRow(900)}}
	got, err := repo.Debit(context.Background(), tx, uuid.New(), 100)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if got != 900 {
		t.Errorf("new balance: got %d, want 900", got)
	}
}
