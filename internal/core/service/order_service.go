package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/metrics"
	"github.com/rl1809/record-store/internal/port"
)

type OrderService struct {
	tx             *TxCoordinator
	orders         port.OrderRepository
	cache          port.Cache
	metrics        *metrics.Metrics
	log            zerolog.Logger
	mostOrderedTTL time.Duration
	now            func() time.Time
}

func NewOrderService(
	tx *TxCoordinator,
	orders port.OrderRepository,
	cache port.Cache,
	m *metrics.Metrics,
	log zerolog.Logger,
	mostOrderedTTL time.Duration,
) *OrderService {
	return &OrderService{
		tx:             tx,
		orders:         orders,
		cache:          cache,
		metrics:        m,
		log:            log.With().Str("component", "order_service").Logger(),
		mostOrderedTTL: mostOrderedTTL,
		now:            time.Now,
	}
}

// CreateOrder checks stock, decrements it and inserts the order in one transaction.
// On commit the record listings and the most-ordered ranking are invalidated.
func (s *OrderService) CreateOrder(ctx context.Context, recordID string, quantity int, userID string) (*domain.Order, error) {
	if quantity <= 0 {
		s.metrics.OrdersRejected.WithLabelValues("invalid_quantity").Inc()
		return nil, ErrInvalidQuantity
	}

	log := s.log.With().Str("record_id", recordID).Str("user_id", userID).Int("quantity", quantity).Logger()

	order, err := RunInTransaction(ctx, s.tx, func(ctx context.Context, tx port.Tx) (*domain.Order, error) {
		log.Debug().Msg("starting transaction for order creation")

		record, err := tx.Records().FindByID(ctx, recordID)
		if err != nil {
			return nil, fmt.Errorf("find record: %w", err)
		}
		if record == nil {
			return nil, &NotFoundError{Resource: "record", ID: recordID}
		}

		if record.Qty < quantity {
			return nil, &InsufficientStockError{
				RecordID:  record.ID,
				Album:     record.Album,
				Available: record.Qty,
				Requested: quantity,
			}
		}

		if err := tx.Records().UpdateQuantity(ctx, *record, record.Qty-quantity); err != nil {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}

		now := s.now().UTC()
		order := domain.Order{
			ID:        uuid.NewString(),
			RecordID:  record.ID,
			UserID:    userID,
			Quantity:  quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return nil, fmt.Errorf("insert order: %w", err)
		}

		log.Info().Str("album", record.Album).Str("order_id", order.ID).Msg("order created")
		return &order, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			s.metrics.OrdersRejected.WithLabelValues("not_found").Inc()
			log.Warn().Err(err).Msg("order rejected")
		case errors.Is(err, ErrInsufficientStock):
			s.metrics.OrdersRejected.WithLabelValues("insufficient_stock").Inc()
			log.Warn().Err(err).Msg("order rejected")
		}
		return nil, err
	}

	s.metrics.OrdersCreated.Inc()
	invalidate(ctx, s.cache, s.metrics, log, RecordsCachePrefix, MostOrderedCacheKey)

	return order, nil
}

// MostOrderedRecords returns the full ranking of records by total quantity ordered,
// served from cache when present.
func (s *OrderService) MostOrderedRecords(ctx context.Context) ([]domain.MostOrderedRecord, error) {
	if cached, ok := getCached[[]domain.MostOrderedRecord](ctx, s.cache, s.metrics, s.log, MostOrderedCacheKey); ok {
		s.log.Debug().Msg("returning cached most ordered records")
		return cached, nil
	}

	result, err := s.orders.MostOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("most ordered records: %w", err)
	}
	if result == nil {
		result = []domain.MostOrderedRecord{}
	}

	s.log.Debug().Int("records", len(result)).Msg("fetched most ordered records")
	setCached(ctx, s.cache, s.log, MostOrderedCacheKey, result, s.mostOrderedTTL)
	return result, nil
}
