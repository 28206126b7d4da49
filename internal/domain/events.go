package domain

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventTableStateChanged  EventType = "table_state_changed"
	EventOrderItemAdded     EventType = "order_item_added"
	EventOrderItemDelivered EventType = "order_item_delivered"
	EventPaymentRecorded    EventType = "payment_recorded"
	EventAttendanceChanged  EventType = "attendance_changed"
)

// Broadcast channel names. A connection is assigned its channels once at
// connect time; events carry the channels they should reach.
const (
	ChannelGlobalStaff = "global-staff"
	ChannelKitchen     = "kitchen"
)

func OrderChannel(orderID int) string { return fmt.Sprintf("order:%d", orderID) }
func UserChannel(userID int) string   { return fmt.Sprintf("user:%d", userID) }

// Event is the advisory notification fanned out after a committed
// transition. It carries snapshots of the entities it touched; clients treat
// it as a hint to patch or re-fetch, never as a replicated log.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	Table      *Table            `json:"table,omitempty"`
	Order      *Order            `json:"order,omitempty"`
	Item       *OrderItem        `json:"item,omitempty"`
	Payment    *Payment          `json:"payment,omitempty"`
	Attendance *AttendanceRecord `json:"attendance,omitempty"`

	// Channels the hub should relay this event to. Not part of the wire
	// payload.
	Channels []string `json:"-"`
}
