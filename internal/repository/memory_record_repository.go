package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stwalsh4118/rentaltax/internal/models"
)

// MemoryRecordRepository keeps records in process memory. It is used by the
// memory store driver and by tests. Safe for concurrent use.
type MemoryRecordRepository struct {
	mu      sync.RWMutex
	records []models.CalcRecord
	nextID  int64
	now     func() time.Time
}

// NewMemoryRecordRepository creates an empty in-memory store.
func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRecordRepository) Insert(ctx context.Context, rec *models.CalcRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeError("insert calc record", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec.ID = r.nextID
	rec.CreatedAt = r.now()
	rec.Origin = rec.Origin.Capped()
	r.nextID++

	r.records = append(r.records, *rec)
	return rec.ID, nil
}

func (r *MemoryRecordRepository) ListByIdentity(ctx context.Context, identity models.Identity, limit int) ([]models.CalcRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("query records by identity", err)
	}

	limit = clampLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	results := []models.CalcRecord{}
	for i := len(r.records) - 1; i >= 0 && len(results) < limit; i-- {
		if r.records[i].Identity == identity {
			results = append(results, r.records[i])
		}
	}
	return results, nil
}

func (r *MemoryRecordRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeError("count records", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.records)), nil
}

func (r *MemoryRecordRepository) Overview(ctx context.Context) (*models.Overview, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("aggregate records", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type categoryTotals struct {
		tax   decimal.Decimal
		count int64
	}

	var rentSum, taxSum decimal.Decimal
	byCategory := map[models.HouseCategory]*categoryTotals{}
	for _, rec := range r.records {
		rentSum = rentSum.Add(rec.MonthlyRent)
		taxSum = taxSum.Add(rec.TotalTax)

		totals, ok := byCategory[rec.HouseCategory]
		if !ok {
			totals = &categoryTotals{}
			byCategory[rec.HouseCategory] = totals
		}
		totals.tax = totals.tax.Add(rec.TotalTax)
		totals.count++
	}

	overview := &models.Overview{
		TotalRecords: int64(len(r.records)),
		AvgRent:      average(rentSum, int64(len(r.records))),
		AvgTotalTax:  average(taxSum, int64(len(r.records))),
		SumTotalTax:  taxSum.Round(2),
		PerCategory:  make([]models.CategoryStat, 0, len(byCategory)),
	}
	for category, totals := range byCategory {
		overview.PerCategory = append(overview.PerCategory, models.CategoryStat{
			Category: category,
			AvgTax:   average(totals.tax, totals.count),
			Count:    totals.count,
		})
	}
	sort.Slice(overview.PerCategory, func(i, j int) bool {
		return overview.PerCategory[i].Category < overview.PerCategory[j].Category
	})

	return overview, nil
}

func (r *MemoryRecordRepository) RentHistogram(ctx context.Context, edges []float64) (*models.RentHistogram, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("query rent histogram", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hist := newHistogram(edges)
	for _, rec := range r.records {
		if idx := models.BucketIndex(edges, rec.MonthlyRent.InexactFloat64()); idx >= 0 {
			hist.Counts[idx]++
		}
	}
	return hist, nil
}

func (r *MemoryRecordRepository) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storeError("reset records", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = nil
	return nil
}

func (r *MemoryRecordRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storeError("ping memory store", err)
	}
	return nil
}

func average(sum decimal.Decimal, count int64) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(count)).Round(2)
}
