package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/stwalsh4118/rentaltax/internal/logger"
	"github.com/stwalsh4118/rentaltax/internal/metrics"
	"github.com/stwalsh4118/rentaltax/internal/models"
	"github.com/stwalsh4118/rentaltax/internal/repository"
	"github.com/stwalsh4118/rentaltax/internal/tax"
)

// List size constants
const (
	DefaultListLimit = 20
	MaxListLimit     = repository.MaxListLimit
)

// Service-level errors
var (
	ErrInvalidInput     = tax.ErrInvalidInput
	ErrStoreUnavailable = repository.ErrStoreUnavailable
	ErrMissingIdentity  = fmt.Errorf("%w: no identity on request", tax.ErrInvalidInput)
)

// CalculateRequest carries one calculation and who asked for it.
type CalculateRequest struct {
	Input    tax.Input
	Identity models.Identity
	Origin   models.RequestOrigin
}

// CalculateResult is the quote returned to the caller. Persisted reports
// whether the matching record was stored; RecordID is 0 when it was not.
type CalculateResult struct {
	Quote     models.TaxQuote
	RecordID  int64
	Persisted bool
}

// TaxService defines the interface for calculation and statistics operations.
type TaxService interface {
	// Calculate computes a quote and records it for the requester.
	// Returns ErrInvalidInput for bad input; nothing is stored in that case.
	// A store failure is logged and counted but never surfaces as an error.
	Calculate(ctx context.Context, req CalculateRequest) (*CalculateResult, error)

	// ListRecords returns the requester's most recent records.
	// A limit <= 0 means DefaultListLimit; limits above MaxListLimit are capped.
	// Returns ErrInvalidInput if identity is empty.
	ListRecords(ctx context.Context, identity models.Identity, limit int) ([]models.CalcRecord, error)

	// CountRecords returns the number of stored records, or 0 if the store
	// cannot answer.
	CountRecords(ctx context.Context) int64

	// Overview aggregates every stored record.
	Overview(ctx context.Context) (*models.Overview, error)

	// RentHistogram counts records per rent bucket. Nil edges select the
	// configured defaults. Returns ErrInvalidInput for malformed edges.
	RentHistogram(ctx context.Context, edges []float64) (*models.RentHistogram, error)

	// ResetRecords removes every stored record.
	ResetRecords(ctx context.Context) error
}

// taxService is the concrete implementation of TaxService.
type taxService struct {
	repo         repository.RecordRepository
	metrics      *metrics.Collector
	log          *logger.Logger
	defaultEdges []float64
}

// NewTaxService creates a new instance of TaxService. defaultEdges must
// already be valid; nil selects models.DefaultHistogramEdges.
func NewTaxService(repo repository.RecordRepository, collector *metrics.Collector, log *logger.Logger, defaultEdges []float64) TaxService {
	if defaultEdges == nil {
		defaultEdges = models.DefaultHistogramEdges
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &taxService{
		repo:         repo,
		metrics:      collector,
		log:          log.With(map[string]interface{}{"component": "tax_service"}),
		defaultEdges: defaultEdges,
	}
}

// Calculate validates and computes the quote before touching the store.
func (s *taxService) Calculate(ctx context.Context, req CalculateRequest) (*CalculateResult, error) {
	quote, err := tax.Compute(req.Input)
	if err != nil {
		s.log.Warn("Rejected tax calculation", map[string]interface{}{
			"category": req.Input.Category,
			"rent":     req.Input.MonthlyRent,
			"error":    err.Error(),
		})
		return nil, err
	}

	s.metrics.CalculationSucceeded(quote.HouseCategory.String())
	result := &CalculateResult{Quote: quote}

	if req.Identity.IsZero() {
		s.log.Warn("Calculation has no identity, not recording it", map[string]interface{}{
			"category": quote.HouseCategory,
		})
		s.metrics.PersistFailed()
		return result, nil
	}

	rec := &models.CalcRecord{
		Identity: req.Identity,
		Origin:   req.Origin.Capped(),
		TaxQuote: quote,
	}
	id, err := s.repo.Insert(ctx, rec)
	if err != nil {
		s.log.Error("Failed to record tax calculation", err, map[string]interface{}{
			"category":      quote.HouseCategory,
			"identity_kind": req.Identity.Kind,
		})
		s.metrics.StoreFailed("insert")
		s.metrics.PersistFailed()
		return result, nil
	}

	result.RecordID = id
	result.Persisted = true

	s.log.Debug("Tax calculation recorded", map[string]interface{}{
		"record_id": id,
		"category":  quote.HouseCategory,
		"total_tax": quote.TotalTax.StringFixed(2),
	})

	return result, nil
}

// ListRecords normalizes the limit and reads the requester's records.
func (s *taxService) ListRecords(ctx context.Context, identity models.Identity, limit int) ([]models.CalcRecord, error) {
	if identity.IsZero() {
		return nil, ErrMissingIdentity
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	records, err := s.repo.ListByIdentity(ctx, identity, limit)
	if err != nil {
		s.log.Error("Failed to list records", err, map[string]interface{}{
			"identity_kind": identity.Kind,
			"limit":         limit,
		})
		s.metrics.StoreFailed("list")
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}

func (s *taxService) CountRecords(ctx context.Context) int64 {
	n, err := s.repo.Count(ctx)
	if err != nil {
		s.log.Error("Failed to count records", err, nil)
		s.metrics.StoreFailed("count")
		return 0
	}
	return n
}

func (s *taxService) Overview(ctx context.Context) (*models.Overview, error) {
	overview, err := s.repo.Overview(ctx)
	if err != nil {
		s.log.Error("Failed to aggregate records", err, nil)
		s.metrics.StoreFailed("overview")
		return nil, fmt.Errorf("failed to aggregate records: %w", err)
	}
	return overview, nil
}

func (s *taxService) RentHistogram(ctx context.Context, edges []float64) (*models.RentHistogram, error) {
	if edges == nil {
		edges = s.defaultEdges
	}
	if err := models.ValidateEdges(edges); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hist, err := s.repo.RentHistogram(ctx, edges)
	if err != nil {
		s.log.Error("Failed to build rent histogram", err, map[string]interface{}{
			"edges": len(edges),
		})
		s.metrics.StoreFailed("histogram")
		return nil, fmt.Errorf("failed to build rent histogram: %w", err)
	}
	return hist, nil
}

func (s *taxService) ResetRecords(ctx context.Context) error {
	if err := s.repo.Reset(ctx); err != nil {
		s.log.Error("Failed to reset records", err, nil)
		s.metrics.StoreFailed("reset")
		return fmt.Errorf("failed to reset records: %w", err)
	}
	s.log.Warn("All calculation records removed", nil)
	return nil
}

// IsInvalidInput reports whether err was caused by caller input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsStoreUnavailable reports whether err was caused by the record store.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
