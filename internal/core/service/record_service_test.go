package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/metrics"
)

func newTestRecordService(store *mockStore, cache *mockCache, tracks *mockTracklists) (*RecordService, *metrics.Metrics) {
	m := metrics.NewNop()
	return NewRecordService(store, tracks, cache, m, zerolog.Nop(), time.Minute), m
}

func TestFindRecords_CachesPerFilter(t *testing.T) {
	store := newMockStore(testRecord("a", 1), testRecord("b", 2), testRecord("c", 3))
	cache := newMockCache()
	svc, m := newTestRecordService(store, cache, &mockTracklists{})
	ctx := context.Background()

	page, err := svc.FindRecords(ctx, domain.RecordFilter{Limit: 2})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(page.Data) != 2 || page.Meta.Total != 3 || page.Meta.TotalPages != 2 || page.Meta.Page != 1 {
		t.Errorf("unexpected page: %+v", page.Meta)
	}

	// the store changes behind the cache; the same filter is served from cache
	store.Create(ctx, testRecord("d", 4))
	again, _ := svc.FindRecords(ctx, domain.RecordFilter{Page: 1, Limit: 2})
	if again.Meta.Total != 3 {
		t.Errorf("expected cached total 3, got %d", again.Meta.Total)
	}
	if got := testutil.ToFloat64(m.CacheHits.WithLabelValues("records")); got != 1 {
		t.Errorf("expected 1 records cache hit, got %v", got)
	}

	other, _ := svc.FindRecords(ctx, domain.RecordFilter{Page: 2, Limit: 2})
	if other.Meta.Total != 4 {
		t.Errorf("expected fresh total 4 for a different filter, got %d", other.Meta.Total)
	}
}

func TestFindRecords_EmptyPage(t *testing.T) {
	svc, _ := newTestRecordService(newMockStore(), newMockCache(), &mockTracklists{})

	page, err := svc.FindRecords(context.Background(), domain.RecordFilter{Artist: "nobody"})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if page.Data == nil || len(page.Data) != 0 {
		t.Errorf("expected empty data, got %#v", page.Data)
	}
	if page.Meta.Total != 0 || page.Meta.TotalPages != 0 || page.Meta.Limit != domain.DefaultLimit {
		t.Errorf("unexpected meta: %+v", page.Meta)
	}
}

func TestCreateRecord_FetchesTracklist(t *testing.T) {
	store := newMockStore()
	cache := newMockCache()
	cache.entries[RecordsCachePrefix+"x"] = []byte(`{}`)
	tracks := &mockTracklists{tracks: map[string][]string{"mb-1": {"Disorder", "Day of the Lords"}}}
	svc, _ := newTestRecordService(store, cache, tracks)

	created, err := svc.CreateRecord(context.Background(), domain.Record{
		Artist:   "Joy Division",
		Album:    "Unknown Pleasures",
		Price:    decimal.NewFromInt(25),
		Qty:      10,
		Format:   domain.FormatVinyl,
		Category: domain.CategoryAlternative,
		MBID:     "mb-1",
	}, "admin-1")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if created.ID == "" || created.CreatedBy != "admin-1" || created.Created.IsZero() {
		t.Errorf("unexpected record: %+v", created)
	}
	if len(created.Tracklist) != 2 || created.Tracklist[0] != "Disorder" {
		t.Errorf("unexpected tracklist: %v", created.Tracklist)
	}
	if stored := store.record(created.ID); stored.Album != "Unknown Pleasures" {
		t.Errorf("expected stored record, got %+v", stored)
	}
	if cache.has(RecordsCachePrefix + "x") {
		t.Error("expected listings cleared")
	}
	if !cache.has(TracklistCachePrefix + "mb-1") {
		t.Error("expected tracklist cached")
	}

	// a second record with the same release reuses the cached tracklist
	if _, err := svc.CreateRecord(context.Background(), domain.Record{Album: "again", MBID: "mb-1"}, "admin-1"); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if tracks.calls != 1 {
		t.Errorf("expected 1 lookup, got %d", tracks.calls)
	}
}

func TestCreateRecord_TracklistFailureStillCreates(t *testing.T) {
	store := newMockStore()
	tracks := &mockTracklists{err: errors.New("service unavailable")}
	svc, m := newTestRecordService(store, newMockCache(), tracks)

	created, err := svc.CreateRecord(context.Background(), domain.Record{Album: "Ten", MBID: "mb-2"}, "admin-1")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if created.Tracklist == nil || len(created.Tracklist) != 0 {
		t.Errorf("expected empty tracklist, got %#v", created.Tracklist)
	}
	if got := testutil.ToFloat64(m.TracklistLookupFailures); got != 1 {
		t.Errorf("expected 1 lookup failure, got %v", got)
	}
}

func TestUpdateRecord(t *testing.T) {
	existing := testRecord("r1", 5)
	existing.MBID = "mb-1"
	existing.Tracklist = []string{"old"}
	store := newMockStore(existing)
	tracks := &mockTracklists{tracks: map[string][]string{"mb-2": {"new"}}}
	svc, _ := newTestRecordService(store, newMockCache(), tracks)
	ctx := context.Background()

	qty := 9
	updated, err := svc.UpdateRecord(ctx, "r1", domain.RecordPatch{Qty: &qty})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if updated.Qty != 9 || updated.Album != existing.Album || updated.Tracklist[0] != "old" {
		t.Errorf("unexpected merge: %+v", updated)
	}
	if tracks.calls != 0 {
		t.Errorf("expected no lookup when mbid unchanged, got %d", tracks.calls)
	}

	same := "mb-1"
	if _, err := svc.UpdateRecord(ctx, "r1", domain.RecordPatch{MBID: &same}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if tracks.calls != 0 {
		t.Errorf("expected no lookup for the same mbid, got %d", tracks.calls)
	}

	changed := "mb-2"
	updated, err = svc.UpdateRecord(ctx, "r1", domain.RecordPatch{MBID: &changed})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if tracks.calls != 1 || len(updated.Tracklist) != 1 || updated.Tracklist[0] != "new" {
		t.Errorf("expected refreshed tracklist, got %v after %d calls", updated.Tracklist, tracks.calls)
	}
}

func TestUpdateRecord_ClearingMBIDDropsTracklist(t *testing.T) {
	existing := testRecord("r1", 5)
	existing.MBID = "mb-1"
	existing.Tracklist = []string{"Disorder", "Shadowplay"}
	store := newMockStore(existing)
	tracks := &mockTracklists{}
	svc, _ := newTestRecordService(store, newMockCache(), tracks)

	cleared := ""
	updated, err := svc.UpdateRecord(context.Background(), "r1", domain.RecordPatch{MBID: &cleared})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if updated.MBID != "" || updated.Tracklist == nil || len(updated.Tracklist) != 0 {
		t.Errorf("expected no mbid and an empty tracklist, got %q %#v", updated.MBID, updated.Tracklist)
	}
	if stored := store.record("r1"); len(stored.Tracklist) != 0 {
		t.Errorf("expected stored tracklist cleared, got %v", stored.Tracklist)
	}
	if tracks.calls != 0 {
		t.Errorf("expected no lookup for an empty mbid, got %d", tracks.calls)
	}
}

// orderAfterRead runs an order right after the first record read, so it commits
// between the admin's read and write.
type orderAfterRead struct {
	*mockStore
	once  sync.Once
	order func()
}

func (s *orderAfterRead) FindByID(ctx context.Context, id string) (*domain.Record, error) {
	r, err := s.mockStore.FindByID(ctx, id)
	s.once.Do(s.order)
	return r, err
}

func TestUpdateRecord_KeepsConcurrentOrderDecrement(t *testing.T) {
	store := newMockStore(testRecord("r1", 5))
	orders, _ := newTestOrderService(store, newMockCache())

	var orderErr error
	interleaved := &orderAfterRead{mockStore: store, order: func() {
		_, orderErr = orders.CreateOrder(context.Background(), "r1", 1, "u1")
	}}
	svc := NewRecordService(interleaved, &mockTracklists{}, newMockCache(), metrics.NewNop(), zerolog.Nop(), time.Minute)

	artist := "New Order"
	updated, err := svc.UpdateRecord(context.Background(), "r1", domain.RecordPatch{Artist: &artist})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if orderErr != nil {
		t.Fatalf("order: %v", orderErr)
	}

	stored := store.record("r1")
	if stored.Qty != 4 || stored.Artist != "New Order" {
		t.Errorf("expected qty 4 and the new artist, got qty %d artist %q", stored.Qty, stored.Artist)
	}
	if updated.Qty != 4 {
		t.Errorf("expected the returned record to show qty 4, got %d", updated.Qty)
	}
}

func TestUpdateRecord_NotFound(t *testing.T) {
	svc, _ := newTestRecordService(newMockStore(), newMockCache(), &mockTracklists{})

	_, err := svc.UpdateRecord(context.Background(), "missing", domain.RecordPatch{})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", err)
	}
}

func TestDeleteRecord(t *testing.T) {
	store := newMockStore(testRecord("r1", 5))
	cache := newMockCache()
	cache.entries[MostOrderedCacheKey] = []byte(`[]`)
	svc, _ := newTestRecordService(store, cache, &mockTracklists{})

	if err := svc.DeleteRecord(context.Background(), "r1"); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if cache.has(MostOrderedCacheKey) {
		t.Error("expected ranking cleared")
	}

	err := svc.DeleteRecord(context.Background(), "r1")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound on second delete, got: %v", err)
	}
}
