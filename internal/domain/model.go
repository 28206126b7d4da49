package domain

import "time"

type TableStatus string

const (
	TableFree     TableStatus = "free"
	TableOccupied TableStatus = "occupied"
)

type OrderStatus string

const (
	OrderActive          OrderStatus = "active"
	OrderAwaitingPayment OrderStatus = "awaiting_payment"
	OrderClosed          OrderStatus = "closed"
	OrderCancelled       OrderStatus = "cancelled"
)

// Open reports whether the order still binds its table.
func (s OrderStatus) Open() bool {
	return s == OrderActive || s == OrderAwaitingPayment
}

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemDelivered ItemStatus = "delivered"
)

type Table struct {
	ID           int         `json:"table_id"`
	Number       int         `json:"number"`
	SeatCapacity int         `json:"seat_capacity"`
	Status       TableStatus `json:"status"`
}

// Plan is the buffet course a table is opened with. The coordinator only
// reads it; catalog maintenance lives elsewhere.
type Plan struct {
	ID             int     `json:"plan_id"`
	Name           string  `json:"name"`
	PricePerPerson float64 `json:"price_per_person"`
}

type Order struct {
	ID               int    `json:"order_id"`
	Token            string `json:"order_token"`
	TableID          int    `json:"table_id"`
	ServiceType      string `json:"service_type"`
	CustomerQuantity int    `json:"customer_quantity"`
	PlanID           int    `json:"plan_id"`
	// Total is snapshotted at open time (price_per_person * customer_quantity)
	// and never recomputed, even if the plan price changes later.
	Total     float64     `json:"total"`
	Status    OrderStatus `json:"status"`
	StartTime time.Time   `json:"start_time"`
}

type OrderItem struct {
	ID        int        `json:"order_detail_id"`
	OrderID   int        `json:"order_id"`
	MenuID    int        `json:"menu_id"`
	Quantity  int        `json:"quantity"`
	Status    ItemStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

type Payment struct {
	ID      int       `json:"payment_id"`
	OrderID int       `json:"order_id"`
	Method  string    `json:"method"`
	Total   float64   `json:"total"`
	PaidAt  time.Time `json:"paid_at"`
}

type AttendanceRecord struct {
	ID           int        `json:"attendance_id"`
	UserID       int        `json:"user_id"`
	ClockInTime  time.Time  `json:"clock_in_time"`
	ClockOutTime *time.Time `json:"clock_out_time,omitempty"`
}

// ClockedIn reports whether the record is still open.
func (a AttendanceRecord) ClockedIn() bool { return a.ClockOutTime == nil }
