package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/metrics"
	"github.com/rl1809/record-store/internal/port"
)

type RecordService struct {
	records    port.RecordRepository
	tracklists port.TracklistProvider
	cache      port.Cache
	metrics    *metrics.Metrics
	log        zerolog.Logger
	listTTL    time.Duration
	now        func() time.Time
}

func NewRecordService(
	records port.RecordRepository,
	tracklists port.TracklistProvider,
	cache port.Cache,
	m *metrics.Metrics,
	log zerolog.Logger,
	listTTL time.Duration,
) *RecordService {
	return &RecordService{
		records:    records,
		tracklists: tracklists,
		cache:      cache,
		metrics:    m,
		log:        log.With().Str("component", "record_service").Logger(),
		listTTL:    listTTL,
		now:        time.Now,
	}
}

func listCacheKey(filter domain.RecordFilter) string {
	// a struct of strings and ints always encodes
	raw, _ := json.Marshal(filter)
	return RecordsCachePrefix + string(raw)
}

// FindRecords returns one page of the catalog. Pages are cached per filter until the
// next catalog write or order.
func (s *RecordService) FindRecords(ctx context.Context, filter domain.RecordFilter) (domain.Page[domain.Record], error) {
	filter = filter.Normalize()
	key := listCacheKey(filter)

	if cached, ok := getCached[domain.Page[domain.Record]](ctx, s.cache, s.metrics, s.log, key); ok {
		s.log.Debug().Str("key", key).Msg("cache hit for query")
		return cached, nil
	}

	data, total, err := s.records.FindAll(ctx, filter)
	if err != nil {
		return domain.Page[domain.Record]{}, fmt.Errorf("fetch records: %w", err)
	}

	page := domain.NewPage(data, total, filter.Page, filter.Limit)
	setCached(ctx, s.cache, s.log, key, page, s.listTTL)
	return page, nil
}

// CreateRecord stores a new record owned by createdBy. When an MBID is given the
// tracklist is resolved first; a failed lookup leaves it empty.
func (s *RecordService) CreateRecord(ctx context.Context, record domain.Record, createdBy string) (*domain.Record, error) {
	now := s.now().UTC()
	record.ID = uuid.NewString()
	record.CreatedBy = createdBy
	record.Created = now
	record.LastModified = now
	record.Version = 0

	if record.MBID != "" {
		record.Tracklist = s.tracklist(ctx, record.MBID)
	}
	if record.Tracklist == nil {
		record.Tracklist = []string{}
	}

	if err := s.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	s.log.Info().Str("record_id", record.ID).Msg("record created")
	invalidate(ctx, s.cache, s.metrics, s.log, RecordsCachePrefix)
	return &record, nil
}

// UpdateRecord applies an admin edit. Only the fields in the patch are written, so
// orders committed meanwhile keep their stock decrement unless the edit sets qty.
// Stock set here is not checked against orders.
func (s *RecordService) UpdateRecord(ctx context.Context, id string, patch domain.RecordPatch) (*domain.Record, error) {
	existing, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	if existing == nil {
		return nil, &NotFoundError{Resource: "record", ID: id}
	}

	patch.Tracklist = nil
	if patch.MBID != nil && *patch.MBID != existing.MBID {
		tracks := []string{}
		if *patch.MBID != "" {
			tracks = s.tracklist(ctx, *patch.MBID)
		}
		patch.Tracklist = &tracks
	}

	found, err := s.records.Update(ctx, id, patch, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	if !found {
		return nil, &NotFoundError{Resource: "record", ID: id}
	}
	s.log.Info().Str("record_id", id).Msg("record updated")
	invalidate(ctx, s.cache, s.metrics, s.log, RecordsCachePrefix)

	updated, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload record: %w", err)
	}
	if updated == nil {
		return nil, &NotFoundError{Resource: "record", ID: id}
	}
	return updated, nil
}

func (s *RecordService) DeleteRecord(ctx context.Context, id string) error {
	deleted, err := s.records.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if !deleted {
		return &NotFoundError{Resource: "record", ID: id}
	}

	s.log.Info().Str("record_id", id).Msg("record deleted")
	invalidate(ctx, s.cache, s.metrics, s.log, RecordsCachePrefix, MostOrderedCacheKey)
	return nil
}

func (s *RecordService) tracklist(ctx context.Context, mbid string) []string {
	key := TracklistCachePrefix + mbid
	if cached, ok := getCached[[]string](ctx, s.cache, s.metrics, s.log, key); ok {
		return cached
	}

	tracks, err := s.tracklists.FetchTracklist(ctx, mbid)
	if err != nil {
		s.metrics.TracklistLookupFailures.Inc()
		s.log.Error().Err(err).Str("mbid", mbid).Msg("tracklist lookup failed")
		return []string{}
	}
	if tracks == nil {
		tracks = []string{}
	}

	setCached(ctx, s.cache, s.log, key, tracks, tracklistCacheTTL)
	return tracks
}
