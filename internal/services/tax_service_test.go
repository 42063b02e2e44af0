package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/rentaltax/internal/logger"
	"github.com/stwalsh4118/rentaltax/internal/metrics"
	"github.com/stwalsh4118/rentaltax/internal/models"
	"github.com/stwalsh4118/rentaltax/internal/repository"
	"github.com/stwalsh4118/rentaltax/internal/tax"
)

// MockRecordRepository is a mock implementation of RecordRepository for testing
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) Insert(ctx context.Context, rec *models.CalcRecord) (int64, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecordRepository) ListByIdentity(ctx context.Context, identity models.Identity, limit int) ([]models.CalcRecord, error) {
	args := m.Called(ctx, identity, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CalcRecord), args.Error(1)
}

func (m *MockRecordRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecordRepository) Overview(ctx context.Context) (*models.Overview, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Overview), args.Error(1)
}

func (m *MockRecordRepository) RentHistogram(ctx context.Context, edges []float64) (*models.RentHistogram, error) {
	args := m.Called(ctx, edges)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RentHistogram), args.Error(1)
}

func (m *MockRecordRepository) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockRecordRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var anonymous = models.Identity{Kind: models.IdentityAnonymous, Value: "5f0c8a52-6b5e-4a53-9a0e-0c4b8e9f1a2b"}

func storeFailure() error {
	return fmt.Errorf("%w: failed to insert calc record: connection refused", repository.ErrStoreUnavailable)
}

// counterValue gathers c and sums the named counter, restricted to series
// carrying labelValue when it is non-empty.
func counterValue(t *testing.T, c prometheus.Collector, name, labelValue string) float64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if labelValue != "" {
				matched := false
				for _, l := range m.GetLabel() {
					if l.GetValue() == labelValue {
						matched = true
					}
				}
				if !matched {
					continue
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func newTestService(repo repository.RecordRepository) (TaxService, *metrics.Collector) {
	collector := metrics.NewCollector()
	return NewTaxService(repo, collector, logger.New("test"), nil), collector
}

func TestCalculate_Success(t *testing.T) {
	// Arrange
	mockRepo := new(MockRecordRepository)
	service, collector := newTestService(mockRepo)
	ctx := context.Background()

	mockRepo.On("Insert", ctx, mock.MatchedBy(func(rec *models.CalcRecord) bool {
		return rec.Identity == anonymous &&
			rec.HouseCategory == models.Residential &&
			rec.TotalTax.StringFixed(2) == "700.00" &&
			rec.Origin.UserAgent == "curl/8.0"
	})).Return(int64(42), nil)

	// Act
	result, err := service.Calculate(ctx, CalculateRequest{
		Input:    tax.Input{Category: "residential", MonthlyRent: 5000},
		Identity: anonymous,
		Origin:   models.RequestOrigin{UserAgent: "curl/8.0", SourceAddr: "10.1.2.3"},
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Persisted)
	assert.Equal(t, int64(42), result.RecordID)
	assert.Equal(t, "200.00", result.Quote.PropertyTax.StringFixed(2))
	assert.Equal(t, "500.00", result.Quote.IncomeTax.StringFixed(2))
	assert.Equal(t, 1.0, counterValue(t, collector, "rentaltax_calculations_total", "residential"))
	mockRepo.AssertExpectations(t)
}

func TestCalculate_InvalidInput_NothingPersisted(t *testing.T) {
	cases := []tax.Input{
		{Category: "residential", MonthlyRent: 0},
		{Category: "residential", MonthlyRent: -100},
		{Category: "warehouse", MonthlyRent: 1000},
		{Category: "", MonthlyRent: 1000},
	}

	for _, in := range cases {
		t.Run(fmt.Sprintf("%s/%v", in.Category, in.MonthlyRent), func(t *testing.T) {
			mockRepo := new(MockRecordRepository)
			service, _ := newTestService(mockRepo)

			result, err := service.Calculate(context.Background(), CalculateRequest{Input: in, Identity: anonymous})

			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.True(t, IsInvalidInput(err))
			mockRepo.AssertNotCalled(t, "Insert")
		})
	}
}

func TestCalculate_StoreFailureStillAnswers(t *testing.T) {
	// Arrange
	mockRepo := new(MockRecordRepository)
	service, collector := newTestService(mockRepo)
	ctx := context.Background()

	mockRepo.On("Insert", ctx, mock.Anything).Return(int64(0), storeFailure())

	// Act
	result, err := service.Calculate(ctx, CalculateRequest{
		Input:    tax.Input{Category: "non_residential", MonthlyRent: 10000},
		Identity: anonymous,
	})

	// Assert
	require.NoError(t, err)
	assert.False(t, result.Persisted)
	assert.Zero(t, result.RecordID)
	assert.Equal(t, "3200.00", result.Quote.TotalTax.StringFixed(2))
	assert.Equal(t, 1.0, counterValue(t, collector, "rentaltax_persist_failures_total", ""))
	assert.Equal(t, 1.0, counterValue(t, collector, "rentaltax_store_failures_total", "insert"))
	mockRepo.AssertExpectations(t)
}

func TestCalculate_WithoutIdentity(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service, collector := newTestService(mockRepo)

	result, err := service.Calculate(context.Background(), CalculateRequest{
		Input: tax.Input{Category: "residential", MonthlyRent: 5000},
	})

	require.NoError(t, err)
	assert.False(t, result.Persisted)
	assert.Equal(t, "700.00", result.Quote.TotalTax.StringFixed(2))
	assert.Equal(t, 1.0, counterValue(t, collector, "rentaltax_persist_failures_total", ""))
	assert.Zero(t, counterValue(t, collector, "rentaltax_store_failures_total", ""))
	mockRepo.AssertNotCalled(t, "Insert")
}

func TestListRecords_Limits(t *testing.T) {
	cases := []struct {
		name      string
		requested int
		expected  int
	}{
		{"zero uses default", 0, DefaultListLimit},
		{"negative uses default", -3, DefaultListLimit},
		{"within range kept", 7, 7},
		{"maximum kept", MaxListLimit, MaxListLimit},
		{"above maximum capped", 500, MaxListLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := new(MockRecordRepository)
			service, _ := newTestService(mockRepo)
			ctx := context.Background()

			records := []models.CalcRecord{{ID: 3}, {ID: 2}}
			mockRepo.On("ListByIdentity", ctx, anonymous, tc.expected).Return(records, nil)

			got, err := service.ListRecords(ctx, anonymous, tc.requested)

			require.NoError(t, err)
			assert.Equal(t, records, got)
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestListRecords_MissingIdentity(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service, _ := newTestService(mockRepo)

	got, err := service.ListRecords(context.Background(), models.Identity{}, 10)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, ErrMissingIdentity)
	mockRepo.AssertNotCalled(t, "ListByIdentity")
}

func TestListRecords_StoreFailure(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service, collector := newTestService(mockRepo)
	ctx := context.Background()

	mockRepo.On("ListByIdentity", ctx, anonymous, DefaultListLimit).Return(nil, storeFailure())

	got, err := service.ListRecords(ctx, anonymous, 0)

	assert.Nil(t, got)
	assert.True(t, IsStoreUnavailable(err))
	assert.False(t, IsInvalidInput(err))
	assert.Equal(t, 1.0, counterValue(t, collector, "rentaltax_store_failures_total", "list"))
}

func TestCountRecords(t *testing.T) {
	t.Run("returns store count", func(t *testing.T) {
		mockRepo := new(MockRecordRepository)
		service, _ := newTestService(mockRepo)
		mockRepo.On("Count", mock.Anything).Return(int64(17), nil)

		assert.Equal(t, int64(17), service.CountRecords(context.Background()))
	})

	t.Run("degrades to zero", func(t *testing.T) {
		mockRepo := new(MockRecordRepository)
		service, collector := newTestService(mockRepo)
		mockRepo.On("Count", mock.Anything).Return(int64(0), storeFailure())

		assert.Equal(t, int64(0), service.CountRecords(context.Background()))
		assert.Equal(t, 1.0, counterValue(t, collector, "rentaltax_store_failures_total", "count"))
	})
}

func TestOverview(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service, _ := newTestService(mockRepo)
	ctx := context.Background()

	expected := &models.Overview{TotalRecords: 3}
	mockRepo.On("Overview", ctx).Return(expected, nil).Once()
	mockRepo.On("Overview", ctx).Return(nil, storeFailure()).Once()

	got, err := service.Overview(ctx)
	require.NoError(t, err)
	assert.Same(t, expected, got)

	got, err = service.Overview(ctx)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	mockRepo.AssertExpectations(t)
}

func TestRentHistogram_DefaultEdges(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service, _ := newTestService(mockRepo)
	ctx := context.Background()

	expected := &models.RentHistogram{Labels: models.BucketLabels(models.DefaultHistogramEdges)}
	mockRepo.On("RentHistogram", ctx, models.DefaultHistogramEdges).Return(expected, nil)

	got, err := service.RentHistogram(ctx, nil)

	require.NoError(t, err)
	assert.Same(t, expected, got)
	mockRepo.AssertExpectations(t)
}

func TestRentHistogram_ConfiguredDefaults(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	edges := []float64{0, 500}
	service := NewTaxService(mockRepo, metrics.NewCollector(), logger.New("test"), edges)
	ctx := context.Background()

	mockRepo.On("RentHistogram", ctx, edges).Return(&models.RentHistogram{}, nil)

	_, err := service.RentHistogram(ctx, nil)
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestRentHistogram_InvalidEdges(t *testing.T) {
	cases := map[string][]float64{
		"empty":          {},
		"not from zero":  {100, 200},
		"descending":     {0, 2000, 1000},
		"duplicate edge": {0, 1000, 1000},
	}

	for name, edges := range cases {
		t.Run(name, func(t *testing.T) {
			mockRepo := new(MockRecordRepository)
			service, _ := newTestService(mockRepo)

			got, err := service.RentHistogram(context.Background(), edges)

			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrInvalidInput)
			mockRepo.AssertNotCalled(t, "RentHistogram")
		})
	}
}

func TestRentHistogram_StoreFailure(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service, _ := newTestService(mockRepo)
	mockRepo.On("RentHistogram", mock.Anything, mock.Anything).Return(nil, storeFailure())

	_, err := service.RentHistogram(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestResetRecords(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service, _ := newTestService(mockRepo)
	ctx := context.Background()

	mockRepo.On("Reset", ctx).Return(nil).Once()
	mockRepo.On("Reset", ctx).Return(errors.New("boom")).Once()

	require.NoError(t, service.ResetRecords(ctx))
	assert.Error(t, service.ResetRecords(ctx))
	mockRepo.AssertExpectations(t)
}

// TestService_WithMemoryStore runs the full calculate and query path against
// the in-memory store.
func TestService_WithMemoryStore(t *testing.T) {
	repo := repository.NewMemoryRecordRepository()
	service, _ := newTestService(repo)
	ctx := context.Background()

	for _, rent := range []float64{500, 1500, 2500} {
		result, err := service.Calculate(ctx, CalculateRequest{
			Input:    tax.Input{Category: "residential", MonthlyRent: rent},
			Identity: anonymous,
		})
		require.NoError(t, err)
		require.True(t, result.Persisted)
	}

	hist, err := service.RentHistogram(ctx, []float64{0, 1000, 2000})
	require.NoError(t, err)
	assert.Equal(t, []string{"0-1000", "1000-2000", "2000+"}, hist.Labels)
	assert.Equal(t, []int64{1, 1, 1}, hist.Counts)

	records, err := service.ListRecords(ctx, anonymous, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2500", records[0].MonthlyRent.String())

	assert.Equal(t, int64(3), service.CountRecords(ctx))
}

func TestNewTaxService_Defaults(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	mockRepo.On("Count", mock.Anything).Return(int64(0), storeFailure())

	// Nil collaborators fall back to a silent logger and a private collector
	service := NewTaxService(mockRepo, nil, nil, nil)
	assert.Zero(t, service.CountRecords(context.Background()))

	hist := &models.RentHistogram{}
	mockRepo.On("RentHistogram", mock.Anything, models.DefaultHistogramEdges).Return(hist, nil)
	got, err := service.RentHistogram(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, hist, got)
}

func TestTaxService_LogsCarryComponent(t *testing.T) {
	var buf bytes.Buffer
	mockRepo := new(MockRecordRepository)
	mockRepo.On("Count", mock.Anything).Return(int64(0), storeFailure())

	service := NewTaxService(mockRepo, nil, logger.NewWithWriter(&buf, zerolog.InfoLevel), nil)
	service.CountRecords(context.Background())

	assert.Contains(t, buf.String(), `"component":"tax_service"`)
	assert.Contains(t, buf.String(), "Failed to count records")
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsInvalidInput(ErrMissingIdentity))
	assert.True(t, IsInvalidInput(fmt.Errorf("wrapped: %w", tax.ErrInvalidInput)))
	assert.False(t, IsInvalidInput(storeFailure()))
	assert.True(t, IsStoreUnavailable(fmt.Errorf("failed to list records: %w", storeFailure())))
	assert.False(t, IsStoreUnavailable(errors.New("boom")))
}
