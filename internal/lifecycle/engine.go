// Package lifecycle holds the pure decision logic for every table, order,
// item and attendance transition. No I/O, no locking; the gateway feeds it
// current state read inside a critical section and commits whatever it
// returns.
package lifecycle

import (
	"time"

	"buffet-system/internal/domain"
)

// OpenTable decides the Free -> Occupied transition. It returns the draft
// order to insert; the caller assigns the public token and commits the order
// together with the table status flip in one transaction.
func OpenTable(table domain.Table, activeOrder *domain.Order, plan domain.Plan, req domain.OpenTableRequest, now time.Time) (domain.Order, error) {
	if req.CustomerQuantity <= 0 {
		return domain.Order{}, domain.Invalid("customer_quantity", "must be positive")
	}
	if req.CustomerQuantity > table.SeatCapacity {
		return domain.Order{}, domain.Invalid("customer_quantity", "exceeds seat capacity")
	}
	if table.Status != domain.TableFree || activeOrder != nil {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	return domain.Order{
		TableID:          table.ID,
		ServiceType:      req.ServiceType,
		CustomerQuantity: req.CustomerQuantity,
		PlanID:           plan.ID,
		Total:            plan.PricePerPerson * float64(req.CustomerQuantity),
		Status:           domain.OrderActive,
		StartTime:        now,
	}, nil
}

// RequestBill moves an active order to awaiting_payment. The table stays
// occupied until the payment lands.
func RequestBill(order domain.Order) (domain.OrderStatus, error) {
	if order.Status != domain.OrderActive {
		return "", domain.ErrInvalidTransition
	}
	return domain.OrderAwaitingPayment, nil
}

// RecordPayment closes an open order and frees its table.
func RecordPayment(order domain.Order) error {
	if !order.Status.Open() {
		return domain.ErrInvalidTransition
	}
	return nil
}

// CancelOrder voids an open order and frees its table. Closed and cancelled
// orders are immutable history.
func CancelOrder(order domain.Order) error {
	if !order.Status.Open() {
		return domain.ErrInvalidTransition
	}
	return nil
}

// AddItem is legal only while the owning order is active. This is what makes
// the AddItem/CancelOrder race determinate: both run under the table's
// critical section, so whichever commits first decides.
func AddItem(order domain.Order) error {
	if order.Status != domain.OrderActive {
		return domain.ErrInvalidTransition
	}
	return nil
}

// DeliverItem decides pending -> delivered. Delivering an already delivered
// item reports changed=false with no error, so duplicate kitchen taps stay
// harmless.
func DeliverItem(item domain.OrderItem) (changed bool, err error) {
	if item.Status == domain.ItemDelivered {
		return false, nil
	}
	return true, nil
}

// ClockIn rejects a second concurrent open attendance record for the user.
func ClockIn(open *domain.AttendanceRecord) error {
	if open != nil {
		return domain.ErrAlreadyClockedIn
	}
	return nil
}

// ClockOut requires an open record to complete.
func ClockOut(open *domain.AttendanceRecord) error {
	if open == nil {
		return domain.ErrNotClockedIn
	}
	return nil
}
