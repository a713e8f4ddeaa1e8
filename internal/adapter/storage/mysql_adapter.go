package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/record-store/internal/port"
)

var (
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrDuplicate      = errors.New("duplicate key")
)

const mysqlErrDuplicateEntry = 1062

// MySQLAdapter is the persistent store for records, orders and users.
type MySQLAdapter struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// Begin pins one connection for the session and opens a transaction on it.
func (m *MySQLAdapter) Begin(ctx context.Context) (port.Tx, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	return &mysqlTx{conn: conn, tx: tx, sq: m.sq}, nil
}

// Reset empties every table. Used by seeding and tests.
func (m *MySQLAdapter) Reset(ctx context.Context) error {
	for _, table := range []string{"orders", "records", "users"} {
		if _, err := m.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

type mysqlTx struct {
	conn *sql.Conn
	tx   *sql.Tx
	sq   squirrel.StatementBuilderType

	endOnce sync.Once
	endErr  error
}

func (t *mysqlTx) Records() port.TxRecordRepository {
	return &txRecordRepository{tx: t.tx, sq: t.sq}
}

func (t *mysqlTx) Orders() port.TxOrderRepository {
	return &txOrderRepository{tx: t.tx, sq: t.sq}
}

func (t *mysqlTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

// Abort is a no-op on a transaction that already finished.
func (t *mysqlTx) Abort(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// End returns the pinned connection to the pool. Later calls return the first result.
func (t *mysqlTx) End() error {
	t.endOnce.Do(func() {
		// a transaction left open would otherwise go back to the pool
		_ = t.tx.Rollback()
		t.endErr = t.conn.Close()
	})
	return t.endErr
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}
