// Package api exposes the gateway's operations and the websocket connect
// endpoint. Handlers stay thin: decode, call, map the rejection taxonomy to
// a status code.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"buffet-system/internal/domain"
	"buffet-system/internal/gateway"
	"buffet-system/internal/hub"
	"buffet-system/internal/repository"
)

type Handler struct {
	gw       *gateway.Gateway
	store    repository.Store
	hub      *hub.Hub
	resolver *hub.TokenResolver
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func New(gw *gateway.Gateway, store repository.Store, h *hub.Hub, resolver *hub.TokenResolver, logger *zap.Logger) *Handler {
	return &Handler{
		gw:       gw,
		store:    store,
		hub:      h,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients come from the customer ordering page served
			// elsewhere; token possession is the credential.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/tables/{id}/open", h.openTable)
	mux.HandleFunc("POST /api/orders/{id}/bill", h.requestBill)
	mux.HandleFunc("POST /api/orders/{id}/payment", h.recordPayment)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("POST /api/orders/{id}/items", h.addItem)
	mux.HandleFunc("POST /api/items/{id}/deliver", h.deliverItem)
	mux.HandleFunc("POST /api/attendance/{userID}/clock-in", h.clockIn)
	mux.HandleFunc("POST /api/attendance/{userID}/clock-out", h.clockOut)

	mux.HandleFunc("GET /api/tables", h.listTables)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)

	mux.HandleFunc("GET /ws", h.connect)

	return mux
}

func (h *Handler) openTable(w http.ResponseWriter, r *http.Request) {
	tableID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.OpenTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Invalid("body", "bad json"))
		return
	}
	resp, err := h.gw.OpenTable(r.Context(), tableID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) requestBill(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.gw.RequestBill(r.Context(), orderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Invalid("body", "bad json"))
		return
	}
	resp, err := h.gw.RecordPayment(r.Context(), orderID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.gw.CancelOrder(r.Context(), orderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Invalid("body", "bad json"))
		return
	}
	resp, err := h.gw.AddItem(r.Context(), orderID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) deliverItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.gw.DeliverItem(r.Context(), itemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) clockIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.gw.ClockIn(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) clockOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.gw.ClockOut(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.ListTables(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

// getOrder is the authoritative re-fetch surface a client trusts after a
// reconnect. It accepts a numeric id or, with ?token=, the public token.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	var (
		order domain.Order
		err   error
	)
	if token := r.URL.Query().Get("token"); token != "" {
		order, err = h.store.GetOrderByToken(r.Context(), token)
	} else {
		orderID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		order, err = h.store.GetOrder(r.Context(), orderID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	items, err := h.store.ListOrderItems(r.Context(), order.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.OrderDetail{Order: order, Items: items})
}

// connect validates the declaration, fixes the channel set, then upgrades.
// Malformed or unauthorized declarations never reach the hub.
func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	decl := hub.Declaration{
		Role:       q.Get("role"),
		OrderToken: q.Get("token"),
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, domain.Invalid("user_id", "must be numeric"))
			return
		}
		decl.UserID = id
	}

	channels, err := hub.Channels(r.Context(), decl, h.resolver)
	if err != nil {
		writeError(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied.
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	h.hub.Register(ws, channels)
	h.logger.Info("client connected",
		zap.String("role", decl.Role),
		zap.Strings("channels", channels))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id <= 0 {
		writeError(w, domain.Invalid(name, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrAlreadyClockedIn),
		errors.Is(err, domain.ErrNotClockedIn):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrBusy):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrStoreConflict):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
