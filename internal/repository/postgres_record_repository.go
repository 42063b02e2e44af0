package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stwalsh4118/rentaltax/internal/database"
	"github.com/stwalsh4118/rentaltax/internal/models"
)

// postgresRecordRepository stores records in the calc_records table.
type postgresRecordRepository struct {
	db      *database.Database
	timeout time.Duration
}

// NewPostgresRecordRepository creates a RecordRepository backed by PostgreSQL.
// Every query runs under queryTimeout.
func NewPostgresRecordRepository(db *database.Database, queryTimeout time.Duration) RecordRepository {
	return &postgresRecordRepository{
		db:      db,
		timeout: queryTimeout,
	}
}

func (r *postgresRecordRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// identityColumns splits an identity into the client_id and openid columns.
// Exactly one of them is non-nil for a resolved identity.
func identityColumns(id models.Identity) (clientID, openID *string) {
	v := id.Value
	if id.Kind == models.IdentityAuthenticated {
		return nil, &v
	}
	return &v, nil
}

// Insert appends a record and returns the store-assigned ID.
// Decimals travel as text so NUMERIC precision is preserved exactly.
func (r *postgresRecordRepository) Insert(ctx context.Context, rec *models.CalcRecord) (int64, error) {
	query := `
		INSERT INTO calc_records (
			client_id, openid, house_type, monthly_rent,
			prop_deduction, inc_deduction, prop_half,
			property_base, income_base, property_rate, income_rate,
			property_tax, income_tax, total_tax, ua, ip
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at
	`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	clientID, openID := identityColumns(rec.Identity)
	origin := rec.Origin.Capped()

	err := r.db.Pool.QueryRow(ctx, query,
		clientID,
		openID,
		rec.HouseCategory.String(),
		rec.MonthlyRent.StringFixed(2),
		rec.PropertyDeduction,
		rec.IncomeDeduction,
		rec.PropertyHalfRate,
		rec.PropertyBase.StringFixed(2),
		rec.IncomeBase.StringFixed(2),
		rec.PropertyRate.StringFixed(4),
		rec.IncomeRate.StringFixed(4),
		rec.PropertyTax.StringFixed(2),
		rec.IncomeTax.StringFixed(2),
		rec.TotalTax.StringFixed(2),
		origin.UserAgent,
		origin.SourceAddr,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return 0, storeError("insert calc record", err)
	}

	return rec.ID, nil
}

// ListByIdentity reads the newest records of one identity, filtering on the
// column that matches the identity kind.
func (r *postgresRecordRepository) ListByIdentity(ctx context.Context, identity models.Identity, limit int) ([]models.CalcRecord, error) {
	column := "client_id"
	if identity.Kind == models.IdentityAuthenticated {
		column = "openid"
	}

	query := fmt.Sprintf(`
		SELECT
			id,
			created_at,
			house_type,
			monthly_rent::text,
			prop_deduction,
			inc_deduction,
			prop_half,
			property_base::text,
			income_base::text,
			property_rate::text,
			income_rate::text,
			property_tax::text,
			income_tax::text,
			total_tax::text,
			COALESCE(ua, ''),
			COALESCE(ip, '')
		FROM calc_records
		WHERE %s = $1
		ORDER BY id DESC
		LIMIT $2
	`, column)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, query, identity.Value, clampLimit(limit))
	if err != nil {
		return nil, storeError("query records by identity", err)
	}
	defer rows.Close()

	results := []models.CalcRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		rec.Identity = identity
		results = append(results, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("iterate record rows", err)
	}

	return results, nil
}

// scanRecord reads one row of the ListByIdentity projection.
func scanRecord(rows pgx.Rows) (models.CalcRecord, error) {
	var (
		rec      models.CalcRecord
		category string
		amounts  [8]string
	)

	err := rows.Scan(
		&rec.ID,
		&rec.CreatedAt,
		&category,
		&amounts[0],
		&rec.PropertyDeduction,
		&rec.IncomeDeduction,
		&rec.PropertyHalfRate,
		&amounts[1],
		&amounts[2],
		&amounts[3],
		&amounts[4],
		&amounts[5],
		&amounts[6],
		&amounts[7],
		&rec.Origin.UserAgent,
		&rec.Origin.SourceAddr,
	)
	if err != nil {
		return rec, storeError("scan record row", err)
	}

	rec.HouseCategory = models.HouseCategory(category)

	targets := []*decimal.Decimal{
		&rec.MonthlyRent,
		&rec.PropertyBase,
		&rec.IncomeBase,
		&rec.PropertyRate,
		&rec.IncomeRate,
		&rec.PropertyTax,
		&rec.IncomeTax,
		&rec.TotalTax,
	}
	for i, target := range targets {
		d, err := decimal.NewFromString(amounts[i])
		if err != nil {
			return rec, fmt.Errorf("failed to parse amount %q of record %d: %w", amounts[i], rec.ID, err)
		}
		*target = d
	}

	return rec, nil
}

// Count returns the number of stored records.
func (r *postgresRecordRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM calc_records`).Scan(&n); err != nil {
		return 0, storeError("count records", err)
	}
	return n, nil
}

// Overview aggregates totals and per-category averages. ROUND on NUMERIC
// rounds half away from zero, matching the calculator.
func (r *postgresRecordRepository) Overview(ctx context.Context) (*models.Overview, error) {
	totalsQuery := `
		SELECT
			COUNT(*),
			COALESCE(ROUND(AVG(monthly_rent), 2), 0)::text,
			COALESCE(ROUND(AVG(total_tax), 2), 0)::text,
			COALESCE(ROUND(SUM(total_tax), 2), 0)::text
		FROM calc_records
	`
	perCategoryQuery := `
		SELECT house_type, COUNT(*), ROUND(AVG(total_tax), 2)::text
		FROM calc_records
		GROUP BY house_type
		ORDER BY house_type
	`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		overview models.Overview
		sums     [3]string
	)
	err := r.db.Pool.QueryRow(ctx, totalsQuery).Scan(&overview.TotalRecords, &sums[0], &sums[1], &sums[2])
	if err != nil {
		return nil, storeError("aggregate records", err)
	}

	for i, target := range []*decimal.Decimal{&overview.AvgRent, &overview.AvgTotalTax, &overview.SumTotalTax} {
		d, err := decimal.NewFromString(sums[i])
		if err != nil {
			return nil, fmt.Errorf("failed to parse aggregate %q: %w", sums[i], err)
		}
		*target = d
	}

	rows, err := r.db.Pool.Query(ctx, perCategoryQuery)
	if err != nil {
		return nil, storeError("aggregate records by category", err)
	}
	defer rows.Close()

	overview.PerCategory = []models.CategoryStat{}
	for rows.Next() {
		var (
			stat     models.CategoryStat
			category string
			avg      string
		)
		if err := rows.Scan(&category, &stat.Count, &avg); err != nil {
			return nil, storeError("scan category row", err)
		}
		stat.Category = models.HouseCategory(category)
		if stat.AvgTax, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("failed to parse category average %q: %w", avg, err)
		}
		overview.PerCategory = append(overview.PerCategory, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("iterate category rows", err)
	}

	return &overview, nil
}

// RentHistogram counts records per bucket in a single pass using
// width_bucket, which assigns edges[i] <= rent < edges[i+1] to bucket i+1 and
// rent >= edges[last] to bucket len(edges).
func (r *postgresRecordRepository) RentHistogram(ctx context.Context, edges []float64) (*models.RentHistogram, error) {
	query := `
		SELECT width_bucket(monthly_rent::float8, $1::float8[]) AS bucket, COUNT(*)
		FROM calc_records
		GROUP BY bucket
	`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, query, edges)
	if err != nil {
		return nil, storeError("query rent histogram", err)
	}
	defer rows.Close()

	hist := newHistogram(edges)
	for rows.Next() {
		var bucket int
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, storeError("scan histogram row", err)
		}
		// Bucket 0 holds rents below edges[0]; validated edges start at 0.
		if bucket >= 1 && bucket <= len(edges) {
			hist.Counts[bucket-1] += count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("iterate histogram rows", err)
	}

	return hist, nil
}

// Reset truncates the table. The id sequence is kept so ids stay monotonic.
func (r *postgresRecordRepository) Reset(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, `TRUNCATE calc_records`); err != nil {
		return storeError("reset records", err)
	}
	return nil
}

// Ping checks connectivity to the database.
func (r *postgresRecordRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.db.Ping(ctx); err != nil {
		return storeError("ping database", err)
	}
	return nil
}
