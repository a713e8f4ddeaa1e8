package port

import (
	"context"
	"time"

	"github.com/rl1809/record-store/internal/core/domain"
)

// RecordRepository is the non-transactional catalog store.
type RecordRepository interface {
	// FindAll returns one page of records matching the filter and the total match count
	FindAll(ctx context.Context, filter domain.RecordFilter) ([]domain.Record, int, error)

	// FindByID returns nil, nil when the record does not exist
	FindByID(ctx context.Context, id string) (*domain.Record, error)

	Create(ctx context.Context, record domain.Record) error

	// Update writes only the non-nil patch fields, bumps the version and stamps
	// lastModified. Returns false when no record has that id.
	Update(ctx context.Context, id string, patch domain.RecordPatch, lastModified time.Time) (bool, error)

	// Delete returns false when no record was removed
	Delete(ctx context.Context, id string) (bool, error)
}

type OrderRepository interface {
	// MostOrdered ranks records by total quantity ordered, descending
	MostOrdered(ctx context.Context) ([]domain.MostOrderedRecord, error)
}

type UserRepository interface {
	// FindByEmail returns nil, nil when no user has that email
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	CreateUser(ctx context.Context, user domain.User) error
}

// TxRecordRepository reads and writes records inside a transaction.
type TxRecordRepository interface {
	// FindByID reads the record and holds it against concurrent writers until the
	// transaction ends. Returns nil, nil when the record does not exist.
	FindByID(ctx context.Context, id string) (*domain.Record, error)

	// UpdateQuantity sets the stock of the record, guarded by its version
	UpdateQuantity(ctx context.Context, record domain.Record, qty int) error
}

type TxOrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
}

// Tx is one open transaction. All reads and writes made through Records and Orders
// commit or abort together. End releases the underlying session and must be called
// exactly once, after Commit or Abort.
type Tx interface {
	Records() TxRecordRepository
	Orders() TxOrderRepository
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
	End() error
}

type TxBeginner interface {
	Begin(ctx context.Context) (Tx, error)
}
