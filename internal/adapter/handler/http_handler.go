package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
	"github.com/rl1809/record-store/internal/metrics"
)

type OrderUseCase interface {
	CreateOrder(ctx context.Context, recordID string, quantity int, userID string) (*domain.Order, error)
	MostOrderedRecords(ctx context.Context) ([]domain.MostOrderedRecord, error)
}

type RecordUseCase interface {
	FindRecords(ctx context.Context, filter domain.RecordFilter) (domain.Page[domain.Record], error)
	CreateRecord(ctx context.Context, record domain.Record, createdBy string) (*domain.Record, error)
	UpdateRecord(ctx context.Context, id string, patch domain.RecordPatch) (*domain.Record, error)
	DeleteRecord(ctx context.Context, id string) error
}

type AuthUseCase interface {
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	VerifyToken(token string) (*domain.Claims, error)
}

var maxPrice = decimal.NewFromInt(10000)

type HTTPHandler struct {
	orders   OrderUseCase
	records  RecordUseCase
	auth     AuthUseCase
	validate *validator.Validate
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewHTTPHandler(orders OrderUseCase, records RecordUseCase, auth AuthUseCase, m *metrics.Metrics, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		orders:   orders,
		records:  records,
		auth:     auth,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  m,
		log:      log.With().Str("component", "http_handler").Logger(),
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

type UserResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  domain.Role `json:"role"`
}

type CreateOrderRequest struct {
	RecordID string `json:"recordId" validate:"required"`
	Quantity int    `json:"quantity"`
}

type CreateRecordRequest struct {
	Artist   string                `json:"artist" validate:"required"`
	Album    string                `json:"album" validate:"required"`
	Price    *decimal.Decimal      `json:"price"`
	Qty      *int                  `json:"qty" validate:"required,gte=0,lte=100"`
	Format   domain.RecordFormat   `json:"format" validate:"required,oneof=Vinyl CD Cassette Digital"`
	Category domain.RecordCategory `json:"category" validate:"required,oneof=Rock Pop Jazz Indie Alternative Classical Hip-Hop"`
	MBID     string                `json:"mbid" validate:"omitempty,uuid"`
}

type UpdateRecordRequest struct {
	Artist   *string                `json:"artist" validate:"omitempty,min=1"`
	Album    *string                `json:"album" validate:"omitempty,min=1"`
	Price    *decimal.Decimal       `json:"price"`
	Qty      *int                   `json:"qty" validate:"omitempty,gte=0,lte=100"`
	Format   *domain.RecordFormat   `json:"format" validate:"omitempty,oneof=Vinyl CD Cassette Digital"`
	Category *domain.RecordCategory `json:"category" validate:"omitempty,oneof=Rock Pop Jazz Indie Alternative Classical Hip-Hop"`
	MBID     *string                `json:"mbid" validate:"omitempty,uuid"`
}

type listRecordsQuery struct {
	Format   domain.RecordFormat   `validate:"omitempty,oneof=Vinyl CD Cassette Digital"`
	Category domain.RecordCategory `validate:"omitempty,oneof=Rock Pop Jazz Indie Alternative Classical Hip-Hop"`
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		User:        UserResponse{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role},
	})
}

func (h *HTTPHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := positiveIntParam(q.Get("page"), domain.DefaultPage)
	if err != nil {
		h.writeError(w, r, &service.ValidationError{Msg: "page must be an integer not less than 1"})
		return
	}
	limit, err := positiveIntParam(q.Get("limit"), domain.DefaultLimit)
	if err != nil {
		h.writeError(w, r, &service.ValidationError{Msg: "limit must be an integer not less than 1"})
		return
	}

	enums := listRecordsQuery{
		Format:   domain.RecordFormat(q.Get("format")),
		Category: domain.RecordCategory(q.Get("category")),
	}
	if err := h.validate.Struct(enums); err != nil {
		h.writeError(w, r, validationError(err))
		return
	}

	result, err := h.records.FindRecords(r.Context(), domain.RecordFilter{
		Q:        strings.TrimSpace(q.Get("q")),
		Artist:   strings.TrimSpace(q.Get("artist")),
		Album:    strings.TrimSpace(q.Get("album")),
		Format:   enums.Format,
		Category: enums.Category,
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Price == nil {
		h.writeError(w, r, &service.ValidationError{Msg: "price is required"})
		return
	}
	if err := checkPrice(*req.Price); err != nil {
		h.writeError(w, r, err)
		return
	}

	claims, _ := ClaimsFromContext(r.Context())
	record, err := h.records.CreateRecord(r.Context(), domain.Record{
		Artist:   strings.TrimSpace(req.Artist),
		Album:    strings.TrimSpace(req.Album),
		Price:    *req.Price,
		Qty:      *req.Qty,
		Format:   req.Format,
		Category: req.Category,
		MBID:     req.MBID,
	}, claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *HTTPHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req UpdateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Price != nil {
		if err := checkPrice(*req.Price); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	record, err := h.records.UpdateRecord(r.Context(), chi.URLParam(r, "id"), domain.RecordPatch{
		Artist:   req.Artist,
		Album:    req.Album,
		Price:    req.Price,
		Qty:      req.Qty,
		Format:   req.Format,
		Category: req.Category,
		MBID:     req.MBID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.records.DeleteRecord(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	claims, _ := ClaimsFromContext(r.Context())
	order, err := h.orders.CreateOrder(r.Context(), req.RecordID, req.Quantity, claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

func (h *HTTPHandler) MostOrdered(w http.ResponseWriter, r *http.Request) {
	result, err := h.orders.MostOrderedRecords(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads and validates a JSON body. It writes the 400 itself and reports
// whether the handler should go on.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, &service.ValidationError{Msg: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, validationError(err))
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeErrorBody(w, r, status, message)
}

func httpStatus(err error) (int, string) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Msg
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrRecordNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, service.ErrInvalidCredentials.Error()
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, service.ErrInvalidToken.Error()
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{
		StatusCode: status,
		Message:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Path:       r.URL.RequestURI(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func validationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return &service.ValidationError{Msg: err.Error()}
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s=%s", strings.ToLower(f.Field()), f.Tag(), f.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(f.Field()), f.Tag()))
		}
	}
	return &service.ValidationError{Msg: strings.Join(msgs, "; ")}
}

func checkPrice(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(maxPrice) {
		return &service.ValidationError{Msg: "price must be between 0 and 10000"}
	}
	// stored as DECIMAL(10,2)
	if !p.Equal(p.Round(2)) {
		return &service.ValidationError{Msg: "price must have at most 2 decimal places"}
	}
	return nil
}

func positiveIntParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	return n, nil
}
