package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateOrder    = errors.New("order already exists for idempotency key")
	ErrIllegalTransition = errors.New("illegal order status transition")
	uniqueViolation      = pq.ErrorCode("23505")
)

const EventCheckoutCompleted = "checkout.completed"

// OutboxEvent is a row of outbox_events waiting to be published.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// CheckoutCompleted is the payload published once an order is paid.
type CheckoutCompleted struct {
	OrderID     uuid.UUID          `json:"order_id"`
	AccountID   string             `json:"account_id"`
	Items       []domain.OrderItem `json:"items"`
	Total       string             `json:"total"`
	Currency    string             `json:"currency"`
	CompletedAt time.Time          `json:"completed_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const orderColumns = `id, account_id, idempotency_key, status, items, subtotal, tax, shipping, total,
	currency, ship_to, payment_id, failure_reason, created_at, updated_at`

func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	shipToJSON, err := json.Marshal(order.ShipTo)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	query := `INSERT INTO orders (id, account_id, idempotency_key, status, items, subtotal, tax, shipping, total, currency, ship_to, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.AccountID,
		order.IdempotencyKey,
		order.Status,
		itemsJSON,
		order.Subtotal,
		order.Tax,
		order.Shipping,
		order.Total,
		order.Currency,
		shipToJSON)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repository) GetByIdempotencyKey(ctx context.Context, accountID, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 AND idempotency_key = $2`
	return r.getOne(ctx, query, accountID, key)
}

// GetOrder only returns orders owned by accountID.
func (r *Repository) GetOrder(ctx context.Context, accountID string, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND account_id = $2`
	return r.getOne(ctx, query, id, accountID)
}

func (r *Repository) ListOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("query orders by account: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
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

// MarkPaid moves a pending order to paid and records the outbox event in the
// same transaction.
func (r *Repository) MarkPaid(ctx context.Context, order *domain.Order, paymentID string) error {
	payload, err := json.Marshal(CheckoutCompleted{
		OrderID:     order.ID,
		AccountID:   order.AccountID,
		Items:       order.Items,
		Total:       order.Total.StringFixed(2),
		Currency:    order.Currency,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal checkout event: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := transition(ctx, tx, order.ID, domain.OrderStatusPaid,
		`payment_id = $3`, paymentID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		order.ID.String(), EventCheckoutCompleted, payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := transition(ctx, tx, id, domain.OrderStatusFailed, `failure_reason = $3`, reason); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// transition locks the order row, checks the status machine and applies the
// new status together with one extra column assignment bound to $3.
func transition(ctx context.Context, tx *sql.Tx, id uuid.UUID, next domain.OrderStatus, assign string, value any) error {
	var current domain.OrderStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("lock order: %w", err)
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, `+assign+`, updated_at = NOW() WHERE id = $1`,
		id, next, value)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		order      domain.Order
		itemsJSON  []byte
		shipToJSON []byte
	)
	err := s.Scan(
		&order.ID,
		&order.AccountID,
		&order.IdempotencyKey,
		&order.Status,
		&itemsJSON,
		&order.Subtotal,
		&order.Tax,
		&order.Shipping,
		&order.Total,
		&order.Currency,
		&shipToJSON,
		&order.PaymentID,
		&order.FailureReason,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(shipToJSON, &order.ShipTo); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return &order, nil
}
