package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"buffet-system/internal/domain"
)

// wsServer upgrades every request and registers it with the channels named
// in the "channels" query parameter.
func wsServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		h.Register(ws, strings.Split(r.URL.Query().Get("channels"), ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, channels string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?channels=" + channels
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := ws.ReadMessage()
	require.NoError(t, err)
	var evt domain.Event
	require.NoError(t, json.Unmarshal(payload, &evt))
	return evt
}

func TestPublish_RoutesByChannel(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	srv := wsServer(t, h)

	staff := dial(t, srv, domain.ChannelGlobalStaff)
	kitchen := dial(t, srv, domain.ChannelKitchen)

	require.Eventually(t, func() bool { return h.Len() == 2 }, time.Second, 5*time.Millisecond)

	table := domain.Table{ID: 5, Status: domain.TableOccupied}
	h.Publish(domain.Event{
		Type:     domain.EventTableStateChanged,
		Table:    &table,
		Channels: []string{domain.ChannelGlobalStaff},
	})

	evt := readEvent(t, staff)
	assert.Equal(t, domain.EventTableStateChanged, evt.Type)
	require.NotNil(t, evt.Table)
	assert.Equal(t, 5, evt.Table.ID)

	// The kitchen screen subscribed to a different channel and must see
	// nothing.
	require.NoError(t, kitchen.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := kitchen.ReadMessage()
	assert.Error(t, err)
}

func TestPublish_MultiChannelEventReachesEachSubscriberOnce(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	srv := wsServer(t, h)

	// A staff dashboard also watching the order's detail view subscribes to
	// both channels; the event must still arrive once.
	both := dial(t, srv, domain.ChannelGlobalStaff+","+domain.OrderChannel(42))
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	item := domain.OrderItem{ID: 1, OrderID: 42, MenuID: 7, Quantity: 2}
	h.Publish(domain.Event{
		Type:     domain.EventOrderItemAdded,
		Item:     &item,
		Channels: []string{domain.ChannelGlobalStaff, domain.OrderChannel(42)},
	})

	evt := readEvent(t, both)
	assert.Equal(t, domain.EventOrderItemAdded, evt.Type)

	require.NoError(t, both.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := both.ReadMessage()
	assert.Error(t, err, "event must not be duplicated per matching channel")
}

func TestPublish_PerConnectionFIFO(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	srv := wsServer(t, h)

	staff := dial(t, srv, domain.ChannelGlobalStaff)
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	for i := 1; i <= 5; i++ {
		order := domain.Order{ID: i}
		h.Publish(domain.Event{
			Type:     domain.EventTableStateChanged,
			Order:    &order,
			Channels: []string{domain.ChannelGlobalStaff},
		})
	}

	for i := 1; i <= 5; i++ {
		evt := readEvent(t, staff)
		require.NotNil(t, evt.Order)
		assert.Equal(t, i, evt.Order.ID, "commit order must be preserved per connection")
	}
}

func TestPublish_SlowConsumerDropped(t *testing.T) {
	h := New(Config{SendBuffer: 1}, zap.NewNop())

	// Register the connection without pumps so its buffer never drains,
	// standing in for a wedged client.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		c := &Conn{
			hub:      h,
			ws:       ws,
			send:     make(chan []byte, h.cfg.SendBuffer),
			channels: map[string]struct{}{domain.ChannelGlobalStaff: {}},
			done:     make(chan struct{}),
		}
		h.add(c)
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	evt := domain.Event{Type: domain.EventTableStateChanged, Channels: []string{domain.ChannelGlobalStaff}}
	h.Publish(evt) // fills the buffer
	h.Publish(evt) // overflows: the connection must be dropped

	assert.Equal(t, 0, h.Len())

	// Everyone else keeps receiving.
	srvOK := wsServer(t, h)
	healthy := dial(t, srvOK, domain.ChannelGlobalStaff)
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	h.Publish(evt)
	got := readEvent(t, healthy)
	assert.Equal(t, domain.EventTableStateChanged, got.Type)
}

func TestClientDisconnectReclaimsEntry(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	srv := wsServer(t, h)

	ws := dial(t, srv, domain.ChannelKitchen)
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubClose(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	srv := wsServer(t, h)

	dial(t, srv, domain.ChannelGlobalStaff)
	dial(t, srv, domain.ChannelKitchen)
	require.Eventually(t, func() bool { return h.Len() == 2 }, time.Second, 5*time.Millisecond)

	h.Close()
	assert.Equal(t, 0, h.Len())
}
