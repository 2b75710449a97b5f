package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
)

// DefaultPageSize is used when a list request has no usable page size.
const DefaultPageSize = 20

// MaxPageSize caps the page size a client can ask for.
const MaxPageSize = 100

// ValidationError reports a rejected client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MerchantQuery selects a page of merchants.
type MerchantQuery struct {
	Page   int
	Size   int
	Status string
	Search string
}

// MerchantPage is one page of merchants plus paging metadata.
type MerchantPage struct {
	Content          []*storage.Merchant `json:"content"`
	TotalElements    int64               `json:"totalElements"`
	TotalPages       int                 `json:"totalPages"`
	Size             int                 `json:"size"`
	Number           int                 `json:"number"`
	First            bool                `json:"first"`
	Last             bool                `json:"last"`
	NumberOfElements int                 `json:"numberOfElements"`
}

// MerchantUpdate is a partial edit; nil fields keep their current value.
type MerchantUpdate struct {
	Name   *string
	Status *string
}

// MerchantService exposes the local merchant store.
type MerchantService struct {
	store  storage.MerchantRepository
	logger *slog.Logger
}

// NewMerchantService creates a merchant service.
func NewMerchantService(store storage.MerchantRepository, logger *slog.Logger) *MerchantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MerchantService{store: store, logger: logger}
}

// ListMerchants returns a page of merchants, newest first.
func (s *MerchantService) ListMerchants(ctx context.Context, q MerchantQuery) (*MerchantPage, error) {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size <= 0 {
		q.Size = DefaultPageSize
	}
	if q.Size > MaxPageSize {
		q.Size = MaxPageSize
	}
	if q.Page > math.MaxInt32/q.Size {
		return nil, &ValidationError{Field: "page", Message: "out of range"}
	}

	result, err := s.store.ListMerchants(ctx, storage.MerchantFilters{
		Status: strings.TrimSpace(q.Status),
		Search: strings.TrimSpace(q.Search),
		Limit:  q.Size,
		Offset: q.Page * q.Size,
	})
	if err != nil {
		return nil, err
	}

	totalPages := int((result.TotalCount + int64(q.Size) - 1) / int64(q.Size))
	return &MerchantPage{
		Content:          result.Merchants,
		TotalElements:    result.TotalCount,
		TotalPages:       totalPages,
		Size:             q.Size,
		Number:           q.Page,
		First:            q.Page == 0,
		Last:             q.Page >= totalPages-1,
		NumberOfElements: len(result.Merchants),
	}, nil
}

// GetMerchant returns one merchant or storage.ErrNotFound.
func (s *MerchantService) GetMerchant(ctx context.Context, mid string) (*storage.Merchant, error) {
	m, err := s.store.FindByMID(ctx, mid)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, storage.ErrNotFound
	}
	return m, nil
}

// UpdateMerchant applies a manual edit and returns the updated merchant.
func (s *MerchantService) UpdateMerchant(ctx context.Context, mid string, upd MerchantUpdate) (*storage.Merchant, error) {
	current, err := s.GetMerchant(ctx, mid)
	if err != nil {
		return nil, err
	}

	name := current.Name
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, &ValidationError{Field: "name", Message: "must not be blank"}
		}
	}

	status := current.Status
	if upd.Status != nil {
		status = storage.MerchantStatus(strings.ToLower(strings.TrimSpace(*upd.Status)))
		if !status.Valid() {
			return nil, &ValidationError{Field: "status", Message: "must be active or inactive"}
		}
	}

	if err := s.store.UpdateMerchant(ctx, mid, name, status); err != nil {
		return nil, err
	}

	s.logger.Info("merchant updated", "mid", mid, "name", name, "status", status)
	return s.GetMerchant(ctx, mid)
}

// GetMerchantStats returns aggregate merchant counts.
func (s *MerchantService) GetMerchantStats(ctx context.Context) (*storage.MerchantStats, error) {
	return s.store.GetMerchantStats(ctx)
}
