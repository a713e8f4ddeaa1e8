package handler

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
)

type stubOrders struct {
	mu sync.Mutex

	err     error
	ranking []domain.MostOrderedRecord

	gotRecordID string
	gotQuantity int
	gotUserID   string
}

func (s *stubOrders) CreateOrder(ctx context.Context, recordID string, quantity int, userID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotRecordID, s.gotQuantity, s.gotUserID = recordID, quantity, userID
	if s.err != nil {
		return nil, s.err
	}
	now := time.Now()
	return &domain.Order{
		ID:        "order-1",
		RecordID:  recordID,
		UserID:    userID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *stubOrders) MostOrderedRecords(ctx context.Context) ([]domain.MostOrderedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.ranking == nil {
		return []domain.MostOrderedRecord{}, nil
	}
	return s.ranking, nil
}

type stubRecords struct {
	mu sync.Mutex

	records map[string]domain.Record
	err     error

	gotFilter    domain.RecordFilter
	gotCreatedBy string
}

func newStubRecords(records ...domain.Record) *stubRecords {
	s := &stubRecords{records: make(map[string]domain.Record)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *stubRecords) FindRecords(ctx context.Context, filter domain.RecordFilter) (domain.Page[domain.Record], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotFilter = filter
	if s.err != nil {
		return domain.Page[domain.Record]{}, s.err
	}
	filter = filter.Normalize()
	data := make([]domain.Record, 0, len(s.records))
	for _, r := range s.records {
		data = append(data, r)
	}
	return domain.NewPage(data, len(data), filter.Page, filter.Limit), nil
}

func (s *stubRecords) CreateRecord(ctx context.Context, record domain.Record, createdBy string) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.gotCreatedBy = createdBy
	record.ID = "new-record"
	record.CreatedBy = createdBy
	record.Tracklist = []string{}
	s.records[record.ID] = record
	return &record, nil
}

func (s *stubRecords) UpdateRecord(ctx context.Context, id string, patch domain.RecordPatch) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[id]
	if !ok {
		return nil, &service.NotFoundError{Resource: "record", ID: id}
	}
	updated := patch.Apply(current)
	s.records[id] = updated
	return &updated, nil
}

func (s *stubRecords) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return &service.NotFoundError{Resource: "record", ID: id}
	}
	delete(s.records, id)
	return nil
}

const (
	adminToken = "admin-token"
	userToken  = "user-token"
)

type stubAuth struct {
	users map[string]string // email -> password
}

func newStubAuth() *stubAuth {
	return &stubAuth{users: map[string]string{"user1@example.com": "user1password"}}
}

func (s *stubAuth) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	if s.users[email] != password {
		return "", nil, service.ErrInvalidCredentials
	}
	return userToken, &domain.User{ID: "user-1", Email: email, Name: "Regular User1", Role: domain.RoleUser}, nil
}

func (s *stubAuth) VerifyToken(token string) (*domain.Claims, error) {
	switch token {
	case adminToken:
		return &domain.Claims{UserID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin}, nil
	case userToken:
		return &domain.Claims{UserID: "user-1", Email: "user1@example.com", Role: domain.RoleUser}, nil
	default:
		return nil, service.ErrInvalidToken
	}
}
