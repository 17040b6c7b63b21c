package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avolkov/smartstore/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

// DB exposes the underlying handle so stores sharing this database (the
// coupon repository) can reuse the pool.
func (r *Repository) DB() *sql.DB {
	return r.db
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// CreateOrder inserts the order row and its outbox event in one transaction.
// A unique checkout key violation maps to ErrDuplicateCheckout.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order, eventPayload []byte) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderQuery := `INSERT INTO orders
		(id, checkout_key, user_id, items, coupon_code, subtotal, tax_amount,
		 shipping_amount, discount_amount, total, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`

	_, insertErr := tx.ExecContext(ctx, orderQuery,
		order.ID,
		order.CheckoutKey,
		order.UserID,
		itemsJSON,
		nullIfEmpty(order.CouponCode),
		order.Subtotal.String(),
		order.TaxAmount.String(),
		order.Shipping.String(),
		order.Discount.String(),
		order.Total.String(),
		order.Currency,
		order.Status,
	)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	outboxQuery := `INSERT INTO order_outbox (aggregate_id, event_type, payload, created_at)
	                VALUES ($1, $2, $3, NOW())`
	if _, outboxErr := tx.ExecContext(ctx, outboxQuery, order.ID.String(), "order-placed", eventPayload); outboxErr != nil {
		return fmt.Errorf("insert outbox event: %w", outboxErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit order transaction: %w", commitErr)
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := selectOrder + ` WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *Repository) GetOrderByCheckoutKey(ctx context.Context, key string) (*domain.Order, error) {
	query := selectOrder + ` WHERE checkout_key = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, key))
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	query := selectOrder + ` WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *Repository) GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM order_outbox
	          WHERE published_at IS NULL
	          ORDER BY id
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		e := &OutboxEvent{}
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventPublished(ctx context.Context, id int64) error {
	query := `UPDATE order_outbox SET published_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

const selectOrder = `SELECT id, checkout_key, user_id, items, coupon_code, subtotal,
	tax_amount, shipping_amount, discount_amount, total, currency, status,
	created_at, updated_at FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOne(row *sql.Row) (*domain.Order, error) {
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order      domain.Order
		itemsJSON  []byte
		couponCode sql.NullString
		subtotal   string
		tax        string
		shipping   string
		discount   string
		total      string
	)
	err := row.Scan(
		&order.ID,
		&order.CheckoutKey,
		&order.UserID,
		&itemsJSON,
		&couponCode,
		&subtotal,
		&tax,
		&shipping,
		&discount,
		&total,
		&order.Currency,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	order.CouponCode = couponCode.String

	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&order.Subtotal, subtotal},
		{&order.TaxAmount, tax},
		{&order.Shipping, shipping},
		{&order.Discount, discount},
		{&order.Total, total},
	} {
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return nil, fmt.Errorf("invalid amount on order %s: %w", order.ID, err)
		}
		*field.dst = d
	}

	return &order, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
