package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/rl1809/record-store/internal/core/domain"
)

var recordColumns = []string{
	"id", "artist", "album", "price", "qty", "`format`", "category",
	"mbid", "tracklist", "created_by", "version", "created", "last_modified",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var (
		r         domain.Record
		mbid      sql.NullString
		createdBy sql.NullString
		tracklist []byte
	)
	err := row.Scan(
		&r.ID, &r.Artist, &r.Album, &r.Price, &r.Qty, &r.Format, &r.Category,
		&mbid, &tracklist, &createdBy, &r.Version, &r.Created, &r.LastModified,
	)
	if err != nil {
		return nil, err
	}

	r.MBID = mbid.String
	r.CreatedBy = createdBy.String
	r.Tracklist = []string{}
	if len(tracklist) > 0 {
		if err := json.Unmarshal(tracklist, &r.Tracklist); err != nil {
			return nil, fmt.Errorf("decode tracklist of %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func encodeTracklist(tracks []string) ([]byte, error) {
	if tracks == nil {
		tracks = []string{}
	}
	return json.Marshal(tracks)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func recordFilterWhere(f domain.RecordFilter) squirrel.And {
	where := squirrel.And{}
	if f.Q != "" {
		p := containsPattern(f.Q)
		where = append(where, squirrel.Or{
			squirrel.Expr("LOWER(artist) LIKE ?", p),
			squirrel.Expr("LOWER(album) LIKE ?", p),
			squirrel.Expr("LOWER(category) LIKE ?", p),
		})
	}
	if f.Artist != "" {
		where = append(where, squirrel.Expr("LOWER(artist) LIKE ?", containsPattern(f.Artist)))
	}
	if f.Album != "" {
		where = append(where, squirrel.Expr("LOWER(album) LIKE ?", containsPattern(f.Album)))
	}
	if f.Format != "" {
		where = append(where, squirrel.Eq{"`format`": f.Format})
	}
	if f.Category != "" {
		where = append(where, squirrel.Eq{"category": f.Category})
	}
	return where
}

func (m *MySQLAdapter) FindAll(ctx context.Context, filter domain.RecordFilter) ([]domain.Record, int, error) {
	filter = filter.Normalize()
	where := recordFilterWhere(filter)

	var total int
	countQuery, countArgs, err := m.sq.Select("COUNT(*)").From("records").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	if err := m.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	query, args, err := m.sq.Select(recordColumns...).
		From("records").
		Where(where).
		OrderBy("created DESC", "id").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build records query: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []domain.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}

	return records, total, nil
}

func (m *MySQLAdapter) FindByID(ctx context.Context, id string) (*domain.Record, error) {
	query, args, err := m.sq.Select(recordColumns...).From("records").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build record query: %w", err)
	}

	r, err := scanRecord(m.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return r, nil
}

func (m *MySQLAdapter) Create(ctx context.Context, r domain.Record) error {
	tracklist, err := encodeTracklist(r.Tracklist)
	if err != nil {
		return fmt.Errorf("encode tracklist: %w", err)
	}

	query, args, err := m.sq.Insert("records").
		Columns(recordColumns...).
		Values(
			r.ID, r.Artist, r.Album, r.Price, r.Qty, r.Format, r.Category,
			nullString(r.MBID), tracklist, nullString(r.CreatedBy), r.Version, r.Created, r.LastModified,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert record: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("insert record %s: %w", r.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Update sets only the columns named by the patch. Stock moved by orders since the
// caller read the record is left alone unless the patch carries a quantity.
func (m *MySQLAdapter) Update(ctx context.Context, id string, p domain.RecordPatch, lastModified time.Time) (bool, error) {
	set := map[string]any{
		"version":       squirrel.Expr("version + 1"),
		"last_modified": lastModified,
	}
	if p.Artist != nil {
		set["artist"] = *p.Artist
	}
	if p.Album != nil {
		set["album"] = *p.Album
	}
	if p.Price != nil {
		set["price"] = *p.Price
	}
	if p.Qty != nil {
		set["qty"] = *p.Qty
	}
	if p.Format != nil {
		set["`format`"] = *p.Format
	}
	if p.Category != nil {
		set["category"] = *p.Category
	}
	if p.MBID != nil {
		set["mbid"] = nullString(*p.MBID)
	}
	if p.Tracklist != nil {
		tracklist, err := encodeTracklist(*p.Tracklist)
		if err != nil {
			return false, fmt.Errorf("encode tracklist: %w", err)
		}
		set["tracklist"] = tracklist
	}

	query, args, err := m.sq.Update("records").
		SetMap(set).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update record: %w", err)
	}

	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update record: %w", err)
	}

	// the version bump changes the row, so a match always counts as affected
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update record: %w", err)
	}
	return rows > 0, nil
}

func (m *MySQLAdapter) Delete(ctx context.Context, id string) (bool, error) {
	result, err := m.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return rows > 0, nil
}

type txRecordRepository struct {
	tx *sql.Tx
	sq squirrel.StatementBuilderType
}

// FindByID locks the row until the transaction ends, so concurrent orders for the
// same record queue behind each other instead of reading the same stock.
func (r *txRecordRepository) FindByID(ctx context.Context, id string) (*domain.Record, error) {
	query, args, err := r.sq.Select(recordColumns...).
		From("records").
		Where(squirrel.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build record query: %w", err)
	}

	rec, err := scanRecord(r.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return rec, nil
}

func (r *txRecordRepository) UpdateQuantity(ctx context.Context, rec domain.Record, qty int) error {
	result, err := r.tx.ExecContext(ctx, `
		UPDATE records
		SET qty = ?, version = version + 1, last_modified = UTC_TIMESTAMP(3)
		WHERE id = ? AND version = ?`,
		qty, rec.ID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}
