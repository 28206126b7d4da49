package domain

type OpenTableRequest struct {
	CustomerQuantity int    `json:"customer_quantity"`
	PlanID           int    `json:"plan_id"`
	ServiceType      string `json:"service_type"`
}

type OpenTableResponse struct {
	OrderID    int    `json:"order_id"`
	OrderToken string `json:"order_token"`
}

type RecordPaymentRequest struct {
	Method string  `json:"method"`
	Total  float64 `json:"total"`
}

type RecordPaymentResponse struct {
	PaymentID int `json:"payment_id"`
}

type AddItemRequest struct {
	MenuID   int `json:"menu_id"`
	Quantity int `json:"quantity"`
}

type AddItemResponse struct {
	OrderDetailID int `json:"order_detail_id"`
}

// OrderDetail is the authoritative re-fetch payload a client asks for after
// (re)connecting, before trusting further events.
type OrderDetail struct {
	Order Order       `json:"order"`
	Items []OrderItem `json:"items"`
}
