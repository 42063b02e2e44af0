package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/stwalsh4118/rentaltax/internal/models"
)

// ErrStoreUnavailable wraps every failure of the backing store. Callers may
// retry; the failure never reflects a problem with the caller's input.
var ErrStoreUnavailable = errors.New("record store unavailable")

// MaxListLimit caps the number of records returned by ListByIdentity.
const MaxListLimit = 100

// RecordRepository defines the interface for calculation record storage and
// aggregation. Records are append-only.
type RecordRepository interface {
	// Insert appends rec, assigning its ID and CreatedAt.
	// Returns the new record ID.
	Insert(ctx context.Context, rec *models.CalcRecord) (int64, error)

	// ListByIdentity returns at most limit records attributed to identity,
	// most recent first. Limits above MaxListLimit are capped.
	// Returns an empty slice if there are none (not an error).
	ListByIdentity(ctx context.Context, identity models.Identity, limit int) ([]models.CalcRecord, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// Overview aggregates all stored records.
	Overview(ctx context.Context) (*models.Overview, error)

	// RentHistogram counts records per rent bucket for validated edges.
	RentHistogram(ctx context.Context, edges []float64) (*models.RentHistogram, error)

	// Reset removes every record. Administrative use only.
	Reset(ctx context.Context) error

	// Ping reports whether the store can be reached.
	Ping(ctx context.Context) error
}

// storeError marks err as a store failure while keeping it inspectable.
func storeError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrStoreUnavailable, op, err)
}

// clampLimit bounds a requested list size to [0, MaxListLimit].
func clampLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// newHistogram returns a histogram with labels for edges and zeroed counts.
func newHistogram(edges []float64) *models.RentHistogram {
	return &models.RentHistogram{
		Labels: models.BucketLabels(edges),
		Counts: make([]int64, len(edges)),
	}
}
