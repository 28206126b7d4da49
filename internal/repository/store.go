// Package repository is the coordinator's view of the relational store — the
// single source of truth every decision is read from and committed to.
package repository

import (
	"context"
	"time"

	"buffet-system/internal/domain"
)

// Store groups the reads the gateway decides on and the composite write
// methods it commits with. Every write method that touches more than one row
// runs as a single transaction; a failed commit surfaces as
// domain.ErrStoreConflict.
type Store interface {
	GetTable(ctx context.Context, tableID int) (domain.Table, error)
	ListTables(ctx context.Context) ([]domain.Table, error)
	GetPlan(ctx context.Context, planID int) (domain.Plan, error)

	GetOrder(ctx context.Context, orderID int) (domain.Order, error)
	GetOrderByToken(ctx context.Context, token string) (domain.Order, error)
	GetActiveOrderByTable(ctx context.Context, tableID int) (*domain.Order, error)
	GetOrderItem(ctx context.Context, itemID int) (domain.OrderItem, error)
	ListOrderItems(ctx context.Context, orderID int) ([]domain.OrderItem, error)

	// CreateOrder inserts the order and flips its table to occupied in one
	// transaction.
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)

	// UpdateOrderStatus records a status-only transition (request-bill).
	UpdateOrderStatus(ctx context.Context, orderID int, status domain.OrderStatus) error

	// CloseOrder finishes an order (closed or cancelled), frees the table
	// and, when payment is non-nil, records it — all in one transaction. It
	// returns the payment id (zero for cancellations).
	CloseOrder(ctx context.Context, orderID int, status domain.OrderStatus, tableID int, payment *domain.Payment) (int, error)

	// AddOrderItem checks the stock ledger, appends the consumption row and
	// inserts the item in one transaction. Insufficient stock surfaces as
	// domain.ErrOutOfStock.
	AddOrderItem(ctx context.Context, item domain.OrderItem) (domain.OrderItem, error)
	MarkItemDelivered(ctx context.Context, itemID int) error

	// GetOpenAttendance returns nil when the user has no open record.
	GetOpenAttendance(ctx context.Context, userID int) (*domain.AttendanceRecord, error)
	CreateAttendance(ctx context.Context, userID int, clockIn time.Time) (domain.AttendanceRecord, error)
	CloseAttendance(ctx context.Context, attendanceID int, clockOut time.Time) (domain.AttendanceRecord, error)
}
