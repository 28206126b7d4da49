package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"buffet-system/internal/domain"
)

// fakeStore is an in-memory Store for gateway tests. It mimics the pg
// implementation's contract: composite writes are all-or-nothing, missing
// rows are ErrNotFound, forced failures are ErrStoreConflict.
type fakeStore struct {
	mu         sync.Mutex
	tables     map[int]domain.Table
	plans      map[int]domain.Plan
	orders     map[int]domain.Order
	items      map[int]domain.OrderItem
	attendance map[int]domain.AttendanceRecord
	stock      map[int]int // menu_id -> available; absent means untracked
	nextID     int

	failWrites bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:     make(map[int]domain.Table),
		plans:      make(map[int]domain.Plan),
		orders:     make(map[int]domain.Order),
		items:      make(map[int]domain.OrderItem),
		attendance: make(map[int]domain.AttendanceRecord),
		stock:      make(map[int]int),
	}
}

func (f *fakeStore) id() int { f.nextID++; return f.nextID }

func (f *fakeStore) conflict() error {
	return fmt.Errorf("forced: %w", domain.ErrStoreConflict)
}

func (f *fakeStore) GetTable(_ context.Context, tableID int) (domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableID]
	if !ok {
		return domain.Table{}, fmt.Errorf("table %d: %w", tableID, domain.ErrNotFound)
	}
	return t, nil
}

func (f *fakeStore) ListTables(_ context.Context) ([]domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Table
	for _, t := range f.tables {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) GetPlan(_ context.Context, planID int) (domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[planID]
	if !ok {
		return domain.Plan{}, fmt.Errorf("plan %d: %w", planID, domain.ErrNotFound)
	}
	return p, nil
}

func (f *fakeStore) GetOrder(_ context.Context, orderID int) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	return o, nil
}

func (f *fakeStore) GetOrderByToken(_ context.Context, token string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.Token == token {
			return o, nil
		}
	}
	return domain.Order{}, fmt.Errorf("order token: %w", domain.ErrNotFound)
}

func (f *fakeStore) GetActiveOrderByTable(_ context.Context, tableID int) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.TableID == tableID && o.Status.Open() {
			o := o
			return &o, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetOrderItem(_ context.Context, itemID int) (domain.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[itemID]
	if !ok {
		return domain.OrderItem{}, fmt.Errorf("order item %d: %w", itemID, domain.ErrNotFound)
	}
	return it, nil
}

func (f *fakeStore) ListOrderItems(_ context.Context, orderID int) ([]domain.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OrderItem
	for _, it := range f.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return domain.Order{}, f.conflict()
	}
	order.ID = f.id()
	f.orders[order.ID] = order
	t := f.tables[order.TableID]
	t.Status = domain.TableOccupied
	f.tables[order.TableID] = t
	return order, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID int, status domain.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return f.conflict()
	}
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	o.Status = status
	f.orders[orderID] = o
	return nil
}

func (f *fakeStore) CloseOrder(_ context.Context, orderID int, status domain.OrderStatus, tableID int, payment *domain.Payment) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return 0, f.conflict()
	}
	o := f.orders[orderID]
	o.Status = status
	f.orders[orderID] = o
	t := f.tables[tableID]
	t.Status = domain.TableFree
	f.tables[tableID] = t
	if payment != nil {
		return f.id(), nil
	}
	return 0, nil
}

func (f *fakeStore) AddOrderItem(_ context.Context, item domain.OrderItem) (domain.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return domain.OrderItem{}, f.conflict()
	}
	if available, tracked := f.stock[item.MenuID]; tracked {
		if available < item.Quantity {
			return domain.OrderItem{}, fmt.Errorf("menu %d: %w", item.MenuID, domain.ErrOutOfStock)
		}
		f.stock[item.MenuID] = available - item.Quantity
	}
	item.ID = f.id()
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeStore) MarkItemDelivered(_ context.Context, itemID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return f.conflict()
	}
	it, ok := f.items[itemID]
	if !ok {
		return fmt.Errorf("order item %d: %w", itemID, domain.ErrNotFound)
	}
	it.Status = domain.ItemDelivered
	f.items[itemID] = it
	return nil
}

func (f *fakeStore) GetOpenAttendance(_ context.Context, userID int) (*domain.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attendance {
		if a.UserID == userID && a.ClockedIn() {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateAttendance(_ context.Context, userID int, clockIn time.Time) (domain.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return domain.AttendanceRecord{}, f.conflict()
	}
	rec := domain.AttendanceRecord{ID: f.id(), UserID: userID, ClockInTime: clockIn}
	f.attendance[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) CloseAttendance(_ context.Context, attendanceID int, clockOut time.Time) (domain.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return domain.AttendanceRecord{}, f.conflict()
	}
	a, ok := f.attendance[attendanceID]
	if !ok {
		return domain.AttendanceRecord{}, fmt.Errorf("attendance %d: %w", attendanceID, domain.ErrNotFound)
	}
	a.ClockOutTime = &clockOut
	f.attendance[attendanceID] = a
	return a, nil
}

// recordingHub captures published events in order.
type recordingHub struct {
	mu     sync.Mutex
	events []domain.Event
}

func (h *recordingHub) Publish(evt domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, evt)
}

func (h *recordingHub) all() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Event, len(h.events))
	copy(out, h.events)
	return out
}

func (h *recordingHub) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range h.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
