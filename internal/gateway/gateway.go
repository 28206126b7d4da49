// Package gateway is the only path by which a state transition is committed.
// Each operation validates its payload, takes the resource's critical
// section, reads current state, asks the lifecycle engine for a decision,
// commits it as one store transaction, and on success hands exactly one
// event to the broadcast hub.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"buffet-system/internal/domain"
	"buffet-system/internal/lifecycle"
	"buffet-system/internal/repository"
)

// Publisher receives one event per committed transition. Delivery failures
// to individual observers are the hub's problem, never the mutation
// caller's.
type Publisher interface {
	Publish(evt domain.Event)
}

// PaymentNotifier is poked after a payment commits. Implementations must not
// block the mutation path.
type PaymentNotifier interface {
	PaymentRecorded(order domain.Order, payment domain.Payment)
}

const defaultLockWait = 2 * time.Second

type Gateway struct {
	store    repository.Store
	hub      Publisher
	notifier PaymentNotifier // optional
	locks    *keyedLock
	logger   *zap.Logger

	// LockWait bounds how long an operation queues for its critical section
	// before failing with Busy.
	LockWait time.Duration
	// Now and NewToken exist so tests can pin time and tokens.
	Now      func() time.Time
	NewToken func() string
}

func New(store repository.Store, hub Publisher, logger *zap.Logger) *Gateway {
	return &Gateway{
		store:    store,
		hub:      hub,
		locks:    newKeyedLock(),
		logger:   logger,
		LockWait: defaultLockWait,
		Now:      time.Now,
		NewToken: uuid.NewString,
	}
}

// SetPaymentNotifier wires the optional outbound webhook.
func (g *Gateway) SetPaymentNotifier(n PaymentNotifier) { g.notifier = n }

func tableKey(tableID int) string { return fmt.Sprintf("table:%d", tableID) }
func userKey(userID int) string   { return fmt.Sprintf("user:%d", userID) }

// OpenTable opens a Free table: creates the active order with its snapshot
// total and public token, flips the table to occupied. Under concurrent
// calls on one table exactly one wins; losers see InvalidTransition.
func (g *Gateway) OpenTable(ctx context.Context, tableID int, req domain.OpenTableRequest) (domain.OpenTableResponse, error) {
	if req.CustomerQuantity <= 0 {
		return domain.OpenTableResponse{}, domain.Invalid("customer_quantity", "must be positive")
	}
	if req.PlanID <= 0 {
		return domain.OpenTableResponse{}, domain.Invalid("plan_id", "required")
	}
	if req.ServiceType == "" {
		return domain.OpenTableResponse{}, domain.Invalid("service_type", "required")
	}

	release, err := g.locks.acquire(ctx, tableKey(tableID), g.LockWait)
	if err != nil {
		return domain.OpenTableResponse{}, err
	}
	defer release()

	table, err := g.store.GetTable(ctx, tableID)
	if err != nil {
		return domain.OpenTableResponse{}, err
	}
	active, err := g.store.GetActiveOrderByTable(ctx, tableID)
	if err != nil {
		return domain.OpenTableResponse{}, err
	}
	plan, err := g.store.GetPlan(ctx, req.PlanID)
	if err != nil {
		return domain.OpenTableResponse{}, err
	}

	draft, err := lifecycle.OpenTable(table, active, plan, req, g.Now())
	if err != nil {
		return domain.OpenTableResponse{}, err
	}
	draft.Token = g.NewToken()

	order, err := g.store.CreateOrder(ctx, draft)
	if err != nil {
		return domain.OpenTableResponse{}, err
	}

	table.Status = domain.TableOccupied
	g.publish(domain.Event{
		Type:     domain.EventTableStateChanged,
		Table:    &table,
		Order:    &order,
		Channels: []string{domain.ChannelGlobalStaff, domain.OrderChannel(order.ID)},
	})
	g.logger.Info("table opened",
		zap.Int("table_id", tableID),
		zap.Int("order_id", order.ID),
		zap.Int("customer_quantity", order.CustomerQuantity))

	return domain.OpenTableResponse{OrderID: order.ID, OrderToken: order.Token}, nil
}

// RequestBill moves the order to awaiting_payment; the table stays occupied.
func (g *Gateway) RequestBill(ctx context.Context, orderID int) error {
	return g.withOrder(ctx, orderID, func(order domain.Order, table domain.Table) error {
		next, err := lifecycle.RequestBill(order)
		if err != nil {
			return err
		}
		if err := g.store.UpdateOrderStatus(ctx, order.ID, next); err != nil {
			return err
		}
		order.Status = next
		g.publish(domain.Event{
			Type:     domain.EventTableStateChanged,
			Table:    &table,
			Order:    &order,
			Channels: []string{domain.ChannelGlobalStaff, domain.OrderChannel(order.ID)},
		})
		g.logger.Info("bill requested", zap.Int("order_id", order.ID))
		return nil
	})
}

// RecordPayment closes the order, frees the table and books the payment in
// one atomic step. Repeating it on a closed order is InvalidTransition.
func (g *Gateway) RecordPayment(ctx context.Context, orderID int, req domain.RecordPaymentRequest) (domain.RecordPaymentResponse, error) {
	if req.Method == "" {
		return domain.RecordPaymentResponse{}, domain.Invalid("method", "required")
	}
	if req.Total <= 0 {
		return domain.RecordPaymentResponse{}, domain.Invalid("total", "must be positive")
	}

	var resp domain.RecordPaymentResponse
	err := g.withOrder(ctx, orderID, func(order domain.Order, table domain.Table) error {
		if err := lifecycle.RecordPayment(order); err != nil {
			return err
		}
		payment := domain.Payment{
			OrderID: order.ID,
			Method:  req.Method,
			Total:   req.Total,
			PaidAt:  g.Now(),
		}
		paymentID, err := g.store.CloseOrder(ctx, order.ID, domain.OrderClosed, table.ID, &payment)
		if err != nil {
			return err
		}
		payment.ID = paymentID
		order.Status = domain.OrderClosed
		table.Status = domain.TableFree

		g.publish(domain.Event{
			Type:     domain.EventPaymentRecorded,
			Table:    &table,
			Order:    &order,
			Payment:  &payment,
			Channels: []string{domain.ChannelGlobalStaff, domain.OrderChannel(order.ID)},
		})
		if g.notifier != nil {
			go g.notifier.PaymentRecorded(order, payment)
		}
		g.logger.Info("payment recorded",
			zap.Int("order_id", order.ID),
			zap.Int("payment_id", paymentID),
			zap.String("method", payment.Method),
			zap.Float64("total", payment.Total))

		resp = domain.RecordPaymentResponse{PaymentID: paymentID}
		return nil
	})
	return resp, err
}

// CancelOrder is the staff override: voids the open order and frees the
// table.
func (g *Gateway) CancelOrder(ctx context.Context, orderID int) error {
	return g.withOrder(ctx, orderID, func(order domain.Order, table domain.Table) error {
		if err := lifecycle.CancelOrder(order); err != nil {
			return err
		}
		if _, err := g.store.CloseOrder(ctx, order.ID, domain.OrderCancelled, table.ID, nil); err != nil {
			return err
		}
		order.Status = domain.OrderCancelled
		table.Status = domain.TableFree
		g.publish(domain.Event{
			Type:     domain.EventTableStateChanged,
			Table:    &table,
			Order:    &order,
			Channels: []string{domain.ChannelGlobalStaff, domain.OrderChannel(order.ID)},
		})
		g.logger.Info("order cancelled", zap.Int("order_id", order.ID))
		return nil
	})
}

// AddItem appends a line item to an active order, consuming tracked stock.
func (g *Gateway) AddItem(ctx context.Context, orderID int, req domain.AddItemRequest) (domain.AddItemResponse, error) {
	if req.MenuID <= 0 {
		return domain.AddItemResponse{}, domain.Invalid("menu_id", "required")
	}
	if req.Quantity <= 0 {
		return domain.AddItemResponse{}, domain.Invalid("quantity", "must be positive")
	}

	var resp domain.AddItemResponse
	err := g.withOrder(ctx, orderID, func(order domain.Order, table domain.Table) error {
		if err := lifecycle.AddItem(order); err != nil {
			return err
		}
		item, err := g.store.AddOrderItem(ctx, domain.OrderItem{
			OrderID:   order.ID,
			MenuID:    req.MenuID,
			Quantity:  req.Quantity,
			Status:    domain.ItemPending,
			CreatedAt: g.Now(),
		})
		if err != nil {
			return err
		}
		g.publish(domain.Event{
			Type:     domain.EventOrderItemAdded,
			Order:    &order,
			Item:     &item,
			Channels: []string{domain.ChannelGlobalStaff, domain.ChannelKitchen, domain.OrderChannel(order.ID)},
		})
		g.logger.Info("item added",
			zap.Int("order_id", order.ID),
			zap.Int("order_detail_id", item.ID),
			zap.Int("menu_id", item.MenuID),
			zap.Int("quantity", item.Quantity))

		resp = domain.AddItemResponse{OrderDetailID: item.ID}
		return nil
	})
	return resp, err
}

// DeliverItem marks a pending item delivered. Delivering twice is a no-op
// success with no second event.
func (g *Gateway) DeliverItem(ctx context.Context, itemID int) error {
	item, err := g.store.GetOrderItem(ctx, itemID)
	if err != nil {
		return err
	}
	return g.withOrder(ctx, item.OrderID, func(order domain.Order, table domain.Table) error {
		// Re-read inside the section; the first lookup only located the lock
		// key.
		item, err := g.store.GetOrderItem(ctx, itemID)
		if err != nil {
			return err
		}
		changed, err := lifecycle.DeliverItem(item)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := g.store.MarkItemDelivered(ctx, item.ID); err != nil {
			return err
		}
		item.Status = domain.ItemDelivered
		g.publish(domain.Event{
			Type:     domain.EventOrderItemDelivered,
			Order:    &order,
			Item:     &item,
			Channels: []string{domain.ChannelGlobalStaff, domain.ChannelKitchen, domain.OrderChannel(order.ID)},
		})
		g.logger.Info("item delivered",
			zap.Int("order_id", order.ID),
			zap.Int("order_detail_id", item.ID))
		return nil
	})
}

// ClockIn opens the user's attendance record; a second concurrent clock-in
// is rejected and creates nothing.
func (g *Gateway) ClockIn(ctx context.Context, userID int) error {
	if userID <= 0 {
		return domain.Invalid("user_id", "required")
	}
	release, err := g.locks.acquire(ctx, userKey(userID), g.LockWait)
	if err != nil {
		return err
	}
	defer release()

	open, err := g.store.GetOpenAttendance(ctx, userID)
	if err != nil {
		return err
	}
	if err := lifecycle.ClockIn(open); err != nil {
		return err
	}
	rec, err := g.store.CreateAttendance(ctx, userID, g.Now())
	if err != nil {
		return err
	}
	g.publish(domain.Event{
		Type:       domain.EventAttendanceChanged,
		Attendance: &rec,
		Channels:   []string{domain.ChannelGlobalStaff, domain.UserChannel(userID)},
	})
	g.logger.Info("clocked in", zap.Int("user_id", userID), zap.Int("attendance_id", rec.ID))
	return nil
}

func (g *Gateway) ClockOut(ctx context.Context, userID int) error {
	if userID <= 0 {
		return domain.Invalid("user_id", "required")
	}
	release, err := g.locks.acquire(ctx, userKey(userID), g.LockWait)
	if err != nil {
		return err
	}
	defer release()

	open, err := g.store.GetOpenAttendance(ctx, userID)
	if err != nil {
		return err
	}
	if err := lifecycle.ClockOut(open); err != nil {
		return err
	}
	rec, err := g.store.CloseAttendance(ctx, open.ID, g.Now())
	if err != nil {
		return err
	}
	g.publish(domain.Event{
		Type:       domain.EventAttendanceChanged,
		Attendance: &rec,
		Channels:   []string{domain.ChannelGlobalStaff, domain.UserChannel(userID)},
	})
	g.logger.Info("clocked out", zap.Int("user_id", userID), zap.Int("attendance_id", rec.ID))
	return nil
}

// withOrder resolves the owning table outside the lock, serializes on it,
// then re-reads the order inside the section so the decision never runs
// against a stale snapshot.
func (g *Gateway) withOrder(ctx context.Context, orderID int, fn func(order domain.Order, table domain.Table) error) error {
	order, err := g.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	release, err := g.locks.acquire(ctx, tableKey(order.TableID), g.LockWait)
	if err != nil {
		return err
	}
	defer release()

	order, err = g.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	table, err := g.store.GetTable(ctx, order.TableID)
	if err != nil {
		return err
	}
	return fn(order, table)
}

func (g *Gateway) publish(evt domain.Event) {
	evt.OccurredAt = g.Now()
	g.hub.Publish(evt)
}
