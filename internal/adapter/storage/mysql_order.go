package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/rl1809/record-store/internal/core/domain"
)

func (m *MySQLAdapter) MostOrdered(ctx context.Context) ([]domain.MostOrderedRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT o.record_id, r.artist, r.album, CAST(SUM(o.quantity) AS SIGNED) AS total_ordered
		FROM orders o
		JOIN records r ON r.id = o.record_id
		GROUP BY o.record_id, r.artist, r.album
		ORDER BY total_ordered DESC, o.record_id`)
	if err != nil {
		return nil, fmt.Errorf("query most ordered: %w", err)
	}
	defer rows.Close()

	result := []domain.MostOrderedRecord{}
	for rows.Next() {
		var r domain.MostOrderedRecord
		if err := rows.Scan(&r.RecordID, &r.Artist, &r.Album, &r.TotalOrdered); err != nil {
			return nil, fmt.Errorf("scan most ordered: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate most ordered: %w", err)
	}

	return result, nil
}

// CreateOrder inserts an order outside any order-placement transaction. Seeding only.
func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	return insertOrder(ctx, m.db, m.sq, order)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertOrder(ctx context.Context, db execer, sq squirrel.StatementBuilderType, order domain.Order) error {
	query, args, err := sq.Insert("orders").
		Columns("id", "record_id", "user_id", "quantity", "created_at", "updated_at").
		Values(order.ID, order.RecordID, order.UserID, order.Quantity, order.CreatedAt, order.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert order: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

type txOrderRepository struct {
	tx *sql.Tx
	sq squirrel.StatementBuilderType
}

func (r *txOrderRepository) Create(ctx context.Context, order domain.Order) error {
	return insertOrder(ctx, r.tx, r.sq, order)
}
