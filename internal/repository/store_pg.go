package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buffet-system/internal/domain"
)

// PGStore implements Store on PostgreSQL via database/sql. The gateway's
// per-resource serialization means reads here never race with writes on the
// same table/order/user, so plain read-committed transactions are enough.
type PGStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPGStore(db *sql.DB, logger *zap.Logger) *PGStore {
	return &PGStore{db: db, logger: logger}
}

func (s *PGStore) GetTable(ctx context.Context, tableID int) (domain.Table, error) {
	var t domain.Table
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, seat_capacity, status FROM tables WHERE id = $1
	`, tableID).Scan(&t.ID, &t.Number, &t.SeatCapacity, &t.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Table{}, fmt.Errorf("table %d: %w", tableID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Table{}, fmt.Errorf("get table: %w", err)
	}
	return t, nil
}

func (s *PGStore) ListTables(ctx context.Context) ([]domain.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, seat_capacity, status FROM tables ORDER BY number
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []domain.Table
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.Number, &t.SeatCapacity, &t.Status); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (s *PGStore) GetPlan(ctx context.Context, planID int) (domain.Plan, error) {
	var p domain.Plan
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price_per_person FROM plans WHERE id = $1
	`, planID).Scan(&p.ID, &p.Name, &p.PricePerPerson)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Plan{}, fmt.Errorf("plan %d: %w", planID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Plan{}, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

const orderColumns = `id, token, table_id, service_type, customer_quantity, plan_id, total, status, start_time`

func (s *PGStore) scanOrder(row *sql.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.Token, &o.TableID, &o.ServiceType,
		&o.CustomerQuantity, &o.PlanID, &o.Total, &o.Status, &o.StartTime)
	return o, err
}

func (s *PGStore) GetOrder(ctx context.Context, orderID int) (domain.Order, error) {
	o, err := s.scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *PGStore) GetOrderByToken(ctx context.Context, token string) (domain.Order, error) {
	o, err := s.scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order token: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order by token: %w", err)
	}
	return o, nil
}

func (s *PGStore) GetActiveOrderByTable(ctx context.Context, tableID int) (*domain.Order, error) {
	o, err := s.scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE table_id = $1 AND status IN ('active', 'awaiting_payment')`,
		tableID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active order: %w", err)
	}
	return &o, nil
}

func (s *PGStore) GetOrderItem(ctx context.Context, itemID int) (domain.OrderItem, error) {
	var it domain.OrderItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, menu_id, quantity, status, created_at
		FROM order_details WHERE id = $1
	`, itemID).Scan(&it.ID, &it.OrderID, &it.MenuID, &it.Quantity, &it.Status, &it.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OrderItem{}, fmt.Errorf("order item %d: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("get order item: %w", err)
	}
	return it, nil
}

func (s *PGStore) ListOrderItems(ctx context.Context, orderID int) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, menu_id, quantity, status, created_at
		FROM order_details WHERE order_id = $1 ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuID, &it.Quantity, &it.Status, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin: %w", conflict(err))
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (token, table_id, service_type, customer_quantity, plan_id, total, status, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, order.Token, order.TableID, order.ServiceType, order.CustomerQuantity,
		order.PlanID, order.Total, order.Status, order.StartTime).Scan(&order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", conflict(err))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tables SET status = $1 WHERE id = $2
	`, domain.TableOccupied, order.TableID); err != nil {
		return domain.Order{}, fmt.Errorf("occupy table: %w", conflict(err))
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit open table: %w", conflict(err))
	}
	return order, nil
}

func (s *PGStore) UpdateOrderStatus(ctx context.Context, orderID int, status domain.OrderStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1 WHERE id = $2
	`, status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", conflict(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	return nil
}

func (s *PGStore) CloseOrder(ctx context.Context, orderID int, status domain.OrderStatus, tableID int, payment *domain.Payment) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", conflict(err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1 WHERE id = $2
	`, status, orderID); err != nil {
		return 0, fmt.Errorf("close order: %w", conflict(err))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tables SET status = $1 WHERE id = $2
	`, domain.TableFree, tableID); err != nil {
		return 0, fmt.Errorf("free table: %w", conflict(err))
	}

	var paymentID int
	if payment != nil {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO payments (order_id, method, total, paid_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, payment.OrderID, payment.Method, payment.Total, payment.PaidAt).Scan(&paymentID)
		if err != nil {
			return 0, fmt.Errorf("insert payment: %w", conflict(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit close order: %w", conflict(err))
	}
	return paymentID, nil
}

func (s *PGStore) AddOrderItem(ctx context.Context, item domain.OrderItem) (domain.OrderItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("begin: %w", conflict(err))
	}
	defer func() { _ = tx.Rollback() }()

	// A menu with no ledger rows at all is untracked and always available.
	var available, entries int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta), 0), COUNT(*) FROM stock_ledger WHERE menu_id = $1
	`, item.MenuID).Scan(&available, &entries)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("read stock: %w", conflict(err))
	}
	if entries > 0 {
		if available < item.Quantity {
			return domain.OrderItem{}, fmt.Errorf("menu %d: %w", item.MenuID, domain.ErrOutOfStock)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_ledger (menu_id, delta, created_at) VALUES ($1, $2, $3)
		`, item.MenuID, -item.Quantity, item.CreatedAt); err != nil {
			return domain.OrderItem{}, fmt.Errorf("append stock ledger: %w", conflict(err))
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO order_details (order_id, menu_id, quantity, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, item.OrderID, item.MenuID, item.Quantity, item.Status, item.CreatedAt).Scan(&item.ID)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("insert order item: %w", conflict(err))
	}

	if err := tx.Commit(); err != nil {
		return domain.OrderItem{}, fmt.Errorf("commit add item: %w", conflict(err))
	}
	return item, nil
}

func (s *PGStore) MarkItemDelivered(ctx context.Context, itemID int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE order_details SET status = $1 WHERE id = $2
	`, domain.ItemDelivered, itemID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", conflict(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order item %d: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

func (s *PGStore) GetOpenAttendance(ctx context.Context, userID int) (*domain.AttendanceRecord, error) {
	var a domain.AttendanceRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, clock_in_time, clock_out_time
		FROM attendances WHERE user_id = $1 AND clock_out_time IS NULL
	`, userID).Scan(&a.ID, &a.UserID, &a.ClockInTime, &a.ClockOutTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open attendance: %w", err)
	}
	return &a, nil
}

func (s *PGStore) CreateAttendance(ctx context.Context, userID int, clockIn time.Time) (domain.AttendanceRecord, error) {
	rec := domain.AttendanceRecord{UserID: userID, ClockInTime: clockIn}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO attendances (user_id, clock_in_time) VALUES ($1, $2) RETURNING id
	`, userID, clockIn).Scan(&rec.ID)
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("insert attendance: %w", conflict(err))
	}
	return rec, nil
}

func (s *PGStore) CloseAttendance(ctx context.Context, attendanceID int, clockOut time.Time) (domain.AttendanceRecord, error) {
	var a domain.AttendanceRecord
	err := s.db.QueryRowContext(ctx, `
		UPDATE attendances SET clock_out_time = $1 WHERE id = $2
		RETURNING id, user_id, clock_in_time, clock_out_time
	`, clockOut, attendanceID).Scan(&a.ID, &a.UserID, &a.ClockInTime, &a.ClockOutTime)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttendanceRecord{}, fmt.Errorf("attendance %d: %w", attendanceID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("close attendance: %w", conflict(err))
	}
	return a, nil
}

// conflict maps a write-path failure to the StoreConflict rejection so the
// gateway can report "legal transition, commit failed, resubmit".
func conflict(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreConflict, err)
}
