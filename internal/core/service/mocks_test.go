package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

// Mock store. Transactions are serialized by txLock, which stands in for the row lock
// the real store takes on the transactional read.
type mockStore struct {
	mu      sync.Mutex
	txLock  sync.Mutex
	records map[string]domain.Record
	orders  []domain.Order
	users   map[string]domain.User

	beginErr       error
	commitErr      error
	abortErr       error
	orderInsertErr error

	begins  int
	commits int
	aborts  int
	ends    int
}

func newMockStore(records ...domain.Record) *mockStore {
	s := &mockStore{
		records: make(map[string]domain.Record),
		users:   make(map[string]domain.User),
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *mockStore) record(id string) domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *mockStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *mockStore) counts() (begins, commits, aborts, ends int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins, s.commits, s.aborts, s.ends
}

func (s *mockStore) Begin(ctx context.Context) (port.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.txLock.Lock()

	s.mu.Lock()
	s.begins++
	s.mu.Unlock()

	return &mockTx{store: s, updates: make(map[string]int)}, nil
}

func (s *mockStore) FindAll(ctx context.Context, filter domain.RecordFilter) ([]domain.Record, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Record
	for _, r := range s.records {
		if filter.Artist != "" && !strings.Contains(strings.ToLower(r.Artist), strings.ToLower(filter.Artist)) {
			continue
		}
		if filter.Format != "" && r.Format != filter.Format {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	start := min(filter.Offset(), total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (s *mockStore) FindByID(ctx context.Context, id string) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *mockStore) Create(ctx context.Context, record domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func (s *mockStore) Update(ctx context.Context, id string, patch domain.RecordPatch, lastModified time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, nil
	}
	r = patch.Apply(r)
	r.Version++
	r.LastModified = lastModified
	s.records[id] = r
	return true, nil
}

func (s *mockStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *mockStore) MostOrdered(ctx context.Context) ([]domain.MostOrderedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[string]int)
	for _, o := range s.orders {
		totals[o.RecordID] += o.Quantity
	}
	var result []domain.MostOrderedRecord
	for id, total := range totals {
		r, ok := s.records[id]
		if !ok {
			continue
		}
		result = append(result, domain.MostOrderedRecord{RecordID: id, Artist: r.Artist, Album: r.Album, TotalOrdered: total})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalOrdered != result[j].TotalOrdered {
			return result[i].TotalOrdered > result[j].TotalOrdered
		}
		return result[i].RecordID < result[j].RecordID
	})
	return result, nil
}

func (s *mockStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *mockStore) CreateUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return errors.New("duplicate email")
	}
	s.users[user.Email] = user
	return nil
}

// Mock transaction. Writes are staged and applied on Commit.
type mockTx struct {
	store   *mockStore
	updates map[string]int
	orders  []domain.Order
	done    bool
	ended   bool
}

func (t *mockTx) Records() port.TxRecordRepository { return mockTxRecords{t} }
func (t *mockTx) Orders() port.TxOrderRepository   { return mockTxOrders{t} }

func (t *mockTx) Commit(ctx context.Context) error {
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for id, qty := range t.updates {
		r := t.store.records[id]
		r.Qty = qty
		r.Version++
		t.store.records[id] = r
	}
	t.store.orders = append(t.store.orders, t.orders...)
	t.store.commits++
	t.done = true
	return nil
}

func (t *mockTx) Abort(ctx context.Context) error {
	t.store.mu.Lock()
	t.store.aborts++
	t.store.mu.Unlock()
	t.done = true
	return t.store.abortErr
}

func (t *mockTx) End() error {
	if t.ended {
		return errors.New("session ended twice")
	}
	t.ended = true

	t.store.mu.Lock()
	t.store.ends++
	t.store.mu.Unlock()

	t.store.txLock.Unlock()
	return nil
}

type mockTxRecords struct{ tx *mockTx }

func (r mockTxRecords) FindByID(ctx context.Context, id string) (*domain.Record, error) {
	rec, err := r.tx.store.FindByID(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}
	if qty, ok := r.tx.updates[id]; ok {
		rec.Qty = qty
	}
	return rec, nil
}

func (r mockTxRecords) UpdateQuantity(ctx context.Context, record domain.Record, qty int) error {
	if qty < 0 {
		return errors.New("qty below zero")
	}
	r.tx.updates[record.ID] = qty
	return nil
}

type mockTxOrders struct{ tx *mockTx }

func (o mockTxOrders) Create(ctx context.Context, order domain.Order) error {
	if o.tx.store.orderInsertErr != nil {
		return o.tx.store.orderInsertErr
	}
	o.tx.orders = append(o.tx.orders, order)
	return nil
}

// Mock cache
type mockCache struct {
	mu       sync.Mutex
	entries  map[string][]byte
	cleared  []string
	clearErr error
	getErr   error
	sets     int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (c *mockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.sets++
	return nil
}

func (c *mockCache) ClearByPrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, prefix)
	if c.clearErr != nil {
		return c.clearErr
	}
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *mockCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	return nil
}

func (c *mockCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *mockCache) clearedPrefixes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cleared...)
}

// Mock tracklist provider
type mockTracklists struct {
	mu     sync.Mutex
	tracks map[string][]string
	err    error
	calls  int
}

func (m *mockTracklists) FetchTracklist(ctx context.Context, mbid string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.tracks[mbid], nil
}
