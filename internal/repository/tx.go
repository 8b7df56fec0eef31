package repository

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
)

type txKey struct{}

// WithTx runs fn inside one transaction. Repositories called with the ctx passed
// to fn join that transaction; nested calls reuse the outer one.
func WithTx(ctx context.Context, drv *entsql.Driver, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(dialect.Tx); ok {
		return fn(ctx)
	}
	tx, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// conn returns the transaction carried by ctx, or the driver itself.
func conn(ctx context.Context, drv *entsql.Driver) dialect.ExecQuerier {
	if tx, ok := ctx.Value(txKey{}).(dialect.Tx); ok {
		return tx
	}
	return drv
}

func execBuilder(ctx context.Context, drv *entsql.Driver, q entsql.Querier) (int64, error) {
	query, args := q.Query()
	var res entsql.Result
	if err := conn(ctx, drv).Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func queryBuilder(ctx context.Context, drv *entsql.Driver, q entsql.Querier) (*entsql.Rows, error) {
	query, args := q.Query()
	rows := &entsql.Rows{}
	if err := conn(ctx, drv).Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func isNotFound(err error) bool { return errors.Is(err, common.ErrNotFound) }
