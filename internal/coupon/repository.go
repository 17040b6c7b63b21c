package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avolkov/smartstore/internal/domain"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrUsageExhausted means the guarded usage increment matched no row:
	// the coupon hit its limit between validation and placement.
	ErrUsageExhausted = errors.New("coupon usage limit exhausted")
)

type Store interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	RecordUsage(ctx context.Context, code string) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `SELECT code, type, value, minimum_amount, maximum_discount,
	                 usage_limit, used_count, valid_from, valid_until, is_active
	          FROM coupons WHERE code = $1`

	var (
		c           domain.Coupon
		value       string
		minimum     string
		maxDiscount sql.NullString
		usageLimit  sql.NullInt64
		validUntil  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, domain.CanonicalCode(code)).Scan(
		&c.Code,
		&c.Type,
		&value,
		&minimum,
		&maxDiscount,
		&usageLimit,
		&c.UsedCount,
		&c.ValidFrom,
		&validUntil,
		&c.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon by code: %w", err)
	}

	if c.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("invalid value for coupon %s: %w", c.Code, err)
	}
	if c.MinimumAmount, err = decimal.NewFromString(minimum); err != nil {
		return nil, fmt.Errorf("invalid minimum for coupon %s: %w", c.Code, err)
	}
	if maxDiscount.Valid {
		d, err := decimal.NewFromString(maxDiscount.String)
		if err != nil {
			return nil, fmt.Errorf("invalid maximum discount for coupon %s: %w", c.Code, err)
		}
		c.MaximumDiscount = &d
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		c.UsageLimit = &limit
	}
	if validUntil.Valid {
		until := validUntil.Time
		c.ValidUntil = &until
	}

	return &c, nil
}

// RecordUsage increments used_count, refusing to pass the usage limit. It is
// called once per placed order, never at validation time.
func (r *Repository) RecordUsage(ctx context.Context, code string) error {
	query := `UPDATE coupons
	          SET used_count = used_count + 1
	          WHERE code = $1
	            AND (usage_limit IS NULL OR used_count < usage_limit)`

	result, err := r.db.ExecContext(ctx, query, domain.CanonicalCode(code))
	if err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.GetByCode(ctx, code); errors.Is(getErr, ErrCouponNotFound) {
			return ErrCouponNotFound
		}
		return ErrUsageExhausted
	}
	return nil
}
