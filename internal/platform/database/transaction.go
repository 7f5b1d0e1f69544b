package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Tx is the transactional subset of DB. Commit and Rollback take a context so
// failures can be logged with request correlation.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// GetTx joins the transaction already open on ctx, or begins a new one and
// stores it on the returned context. Only the caller that opened the
// transaction can commit or roll it back; joiners get a participant whose
// Commit and Rollback do nothing, leaving the outcome to the opener.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if owner, ok := ctx.Value(txKey{}).(*ownedTx); ok && !owner.done {
		return ctx, participantTx{owner}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}

	owner := &ownedTx{Tx: tx, logger: logger}
	return context.WithValue(ctx, txKey{}, owner), owner, nil
}

type ownedTx struct {
	*sqlx.Tx
	logger ectologger.Logger
	done   bool
}

func (t *ownedTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("commit transaction: %w", err)
	}
	t.done = true
	return nil
}

func (t *ownedTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("rollback transaction: %w", err)
	}
	t.done = true
	return nil
}

// participantTx is handed to callers that joined a transaction opened further
// up the stack.
type participantTx struct {
	*ownedTx
}

func (participantTx) Commit(context.Context) error   { return nil }
func (participantTx) Rollback(context.Context) error { return nil }
