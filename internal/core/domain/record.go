package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RecordFormat string

const (
	FormatVinyl    RecordFormat = "Vinyl"
	FormatCD       RecordFormat = "CD"
	FormatCassette RecordFormat = "Cassette"
	FormatDigital  RecordFormat = "Digital"
)

type RecordCategory string

const (
	CategoryRock        RecordCategory = "Rock"
	CategoryPop         RecordCategory = "Pop"
	CategoryJazz        RecordCategory = "Jazz"
	CategoryIndie       RecordCategory = "Indie"
	CategoryAlternative RecordCategory = "Alternative"
	CategoryClassical   RecordCategory = "Classical"
	CategoryHipHop      RecordCategory = "Hip-Hop"
)

type Record struct {
	ID           string          `json:"id"`
	Artist       string          `json:"artist"`
	Album        string          `json:"album"`
	Price        decimal.Decimal `json:"price"`
	Qty          int             `json:"qty"`
	Format       RecordFormat    `json:"format"`
	Category     RecordCategory  `json:"category"`
	MBID         string          `json:"mbid,omitempty"`
	Tracklist    []string        `json:"tracklist"`
	CreatedBy    string          `json:"createdBy,omitempty"`
	Version      int             `json:"-"` // optimistic locking
	Created      time.Time       `json:"created"`
	LastModified time.Time       `json:"lastModified"`
}

// RecordPatch carries the fields of an admin edit; nil fields are left untouched.
type RecordPatch struct {
	Artist   *string
	Album    *string
	Price    *decimal.Decimal
	Qty      *int
	Format   *RecordFormat
	Category *RecordCategory
	MBID     *string

	// set by the record service when the release changes, never from admin input
	Tracklist *[]string
}

// Apply returns a copy of r with the non-nil patch fields set.
func (p RecordPatch) Apply(r Record) Record {
	if p.Artist != nil {
		r.Artist = *p.Artist
	}
	if p.Album != nil {
		r.Album = *p.Album
	}
	if p.Price != nil {
		r.Price = *p.Price
	}
	if p.Qty != nil {
		r.Qty = *p.Qty
	}
	if p.Format != nil {
		r.Format = *p.Format
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.MBID != nil {
		r.MBID = *p.MBID
	}
	if p.Tracklist != nil {
		r.Tracklist = *p.Tracklist
	}
	return r
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

type RecordFilter struct {
	Q        string         `json:"q,omitempty"`
	Artist   string         `json:"artist,omitempty"`
	Album    string         `json:"album,omitempty"`
	Format   RecordFormat   `json:"format,omitempty"`
	Category RecordCategory `json:"category,omitempty"`
	Page     int            `json:"page"`
	Limit    int            `json:"limit"`
}

// Normalize fills in paging defaults so equal queries produce equal cache keys.
func (f RecordFilter) Normalize() RecordFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

func (f RecordFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

func NewPage[T any](data []T, total, page, limit int) Page[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Page[T]{
		Data: data,
		Meta: PageMeta{Total: total, Page: page, Limit: limit, TotalPages: totalPages},
	}
}
