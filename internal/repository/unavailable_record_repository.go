package repository

import (
	"context"
	"fmt"

	"github.com/stwalsh4118/rentaltax/internal/models"
)

// unavailableRecordRepository stands in when the database could not be
// reached at startup. Calculations still succeed; every store call fails.
type unavailableRecordRepository struct {
	cause error
}

// NewUnavailableRecordRepository returns a RecordRepository whose every
// operation fails with ErrStoreUnavailable wrapping cause.
func NewUnavailableRecordRepository(cause error) RecordRepository {
	if cause == nil {
		cause = fmt.Errorf("store not configured")
	}
	return &unavailableRecordRepository{cause: cause}
}

func (r *unavailableRecordRepository) Insert(context.Context, *models.CalcRecord) (int64, error) {
	return 0, storeError("insert calc record", r.cause)
}

func (r *unavailableRecordRepository) ListByIdentity(context.Context, models.Identity, int) ([]models.CalcRecord, error) {
	return nil, storeError("query records by identity", r.cause)
}

func (r *unavailableRecordRepository) Count(context.Context) (int64, error) {
	return 0, storeError("count records", r.cause)
}

func (r *unavailableRecordRepository) Overview(context.Context) (*models.Overview, error) {
	return nil, storeError("aggregate records", r.cause)
}

func (r *unavailableRecordRepository) RentHistogram(context.Context, []float64) (*models.RentHistogram, error) {
	return nil, storeError("query rent histogram", r.cause)
}

func (r *unavailableRecordRepository) Reset(context.Context) error {
	return storeError("reset records", r.cause)
}

func (r *unavailableRecordRepository) Ping(context.Context) error {
	return storeError("ping database", r.cause)
}
