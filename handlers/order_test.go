package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/repository"
	"shop-svc/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var testSecret = []byte("handler-test-secret")

type orderTestEnv struct {
	router   *gin.Engine
	products *repository.MemoryProductStore
	orders   *repository.MemoryOrderStore
}

func setupOrderTest(t *testing.T) *orderTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	products := repository.NewMemoryProductStore(
		models.Product{ID: 1, Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 50, Images: []string{"mug.jpg"}},
		models.Product{ID: 2, Name: "Lamp", Price: decimal.RequireFromString("25.00"), Stock: 1},
	)
	orders := repository.NewMemoryOrderStore()

	checkout := service.NewCheckoutService(products, products, orders, nil, logger)
	lifecycle := service.NewLifecycleService(orders, nil, logger)

	router := gin.New()
	RegisterRoutes(router, testSecret, NewOrderHandler(checkout, lifecycle, logger), NewProductHandler(products, logger))

	return &orderTestEnv{router: router, products: products, orders: orders}
}

func token(t *testing.T, id int64, role models.Role) string {
	t.Helper()
	tok, err := middleware.IssueToken(testSecret, models.Actor{ID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return tok
}

func (e *orderTestEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("Failed to encode body: %v", err)
			}
		}
	}

	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

const checkoutBody = `{
	"order_items": [{"product_id": 1, "quantity": 2, "price": 0.01}],
	"shipping_address": {"full_name": "Ada", "address": "1 Row", "city": "London", "postal_code": "N1", "country": "UK"},
	"payment_method": "credit_card",
	"items_price": 20,
	"tax_price": "2.00",
	"shipping_price": 5,
	"total_price": 27
}`

func (e *orderTestEnv) placeOrder(t *testing.T, userID int64) models.CheckoutResult {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/orders", token(t, userID, models.RoleUser), checkoutBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var result models.CheckoutResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return result
}

func TestCreateOrder_Success(t *testing.T) {
	env := setupOrderTest(t)

	result := env.placeOrder(t, 7)

	if result.Order.UserID != 7 {
		t.Errorf("Expected user 7, got %d", result.Order.UserID)
	}
	if len(result.Order.Items) != 1 || !result.Order.Items[0].Price.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("Expected one item priced 10.00, got %+v", result.Order.Items)
	}
	if !result.Order.TaxPrice.Equal(decimal.RequireFromString("2.00")) {
		t.Errorf("Expected tax 2.00, got %s", result.Order.TaxPrice)
	}
	if result.StockUpdates.Summary != "1 products updated, 0 failed" {
		t.Errorf("Unexpected summary: %s", result.StockUpdates.Summary)
	}

	p, _ := env.products.GetProduct(context.Background(), 1)
	if p.Stock != 48 {
		t.Errorf("Expected stock 48, got %d", p.Stock)
	}
}

func TestCreateOrder_ResponseShape(t *testing.T) {
	env := setupOrderTest(t)

	w := env.do(t, http.MethodPost, "/api/orders", token(t, 7, models.RoleUser), checkoutBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d", http.StatusCreated, w.Code)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	for _, key := range []string{"order", "stockUpdates"} {
		if _, ok := body[key]; !ok {
			t.Errorf("Expected key %q in response", key)
		}
	}
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		bearer     bool
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no token",
			body:       checkoutBody,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "Unauthorized",
		},
		{
			name:       "malformed json",
			body:       `{"order_items": [`,
			bearer:     true,
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidRequest",
		},
		{
			name:       "empty cart",
			body:       `{"order_items": [], "payment_method": "paypal"}`,
			bearer:     true,
			wantStatus: http.StatusBadRequest,
			wantCode:   "EmptyCart",
		},
		{
			name:       "missing shipping",
			body:       `{"order_items": [{"product_id": 1, "quantity": 1}], "payment_method": "paypal"}`,
			bearer:     true,
			wantStatus: http.StatusBadRequest,
			wantCode:   "MissingShippingInfo",
		},
		{
			name: "unknown product",
			body: `{"order_items": [{"product_id": 99, "quantity": 1}], "payment_method": "paypal",
				"shipping_address": {"full_name": "Ada", "address": "1 Row", "city": "London", "postal_code": "N1", "country": "UK"}}`,
			bearer:     true,
			wantStatus: http.StatusNotFound,
			wantCode:   "ProductNotFound",
		},
		{
			name: "insufficient stock",
			body: `{"order_items": [{"product_id": 2, "quantity": 3}], "payment_method": "paypal",
				"shipping_address": {"full_name": "Ada", "address": "1 Row", "city": "London", "postal_code": "N1", "country": "UK"}}`,
			bearer:     true,
			wantStatus: http.StatusConflict,
			wantCode:   "InsufficientStock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupOrderTest(t)
			bearer := ""
			if tt.bearer {
				bearer = token(t, 7, models.RoleUser)
			}

			w := env.do(t, http.MethodPost, "/api/orders", bearer, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			var body struct {
				Code string `json:"code"`
			}
			json.Unmarshal(w.Body.Bytes(), &body)
			if body.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, body.Code)
			}

			p, _ := env.products.GetProduct(context.Background(), 2)
			if p.Stock != 1 {
				t.Errorf("Expected stock untouched, got %d", p.Stock)
			}
		})
	}
}

func TestCreateOrder_MissingFieldsAreListed(t *testing.T) {
	env := setupOrderTest(t)

	body := `{"order_items": [{"product_id": 1, "quantity": 1}], "shipping_address": {"full_name": "Ada"}}`
	w := env.do(t, http.MethodPost, "/api/orders", token(t, 7, models.RoleUser), body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var resp struct {
		Fields []string `json:"fields"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	want := []string{"address", "city", "postal_code", "country", "payment_method"}
	if len(resp.Fields) != len(want) {
		t.Fatalf("Expected fields %v, got %v", want, resp.Fields)
	}
	for i := range want {
		if resp.Fields[i] != want[i] {
			t.Errorf("Expected fields %v, got %v", want, resp.Fields)
			break
		}
	}
}

func TestGetOrder(t *testing.T) {
	env := setupOrderTest(t)
	result := env.placeOrder(t, 7)
	path := "/api/orders/" + result.Order.ID.String()

	if w := env.do(t, http.MethodGet, path, token(t, 7, models.RoleUser), nil); w.Code != http.StatusOK {
		t.Errorf("Owner: expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w := env.do(t, http.MethodGet, path, token(t, 8, models.RoleUser), nil); w.Code != http.StatusForbidden {
		t.Errorf("Stranger: expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if w := env.do(t, http.MethodGet, path, token(t, 100, models.RoleStaff), nil); w.Code != http.StatusOK {
		t.Errorf("Staff: expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), token(t, 100, models.RoleStaff), nil); w.Code != http.StatusNotFound {
		t.Errorf("Missing: expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/orders/not-a-uuid", token(t, 7, models.RoleUser), nil); w.Code != http.StatusBadRequest {
		t.Errorf("Bad id: expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGetMyOrders(t *testing.T) {
	env := setupOrderTest(t)
	env.placeOrder(t, 7)
	env.placeOrder(t, 7)
	env.placeOrder(t, 8)

	w := env.do(t, http.MethodGet, "/api/orders/mine?page=1&limit=1", token(t, 7, models.RoleUser), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var page models.OrderPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if page.Total != 2 || page.Pages != 2 || len(page.Orders) != 1 {
		t.Errorf("Expected 1 of 2 orders over 2 pages, got %d of %d over %d", len(page.Orders), page.Total, page.Pages)
	}
}

func TestPayOrder(t *testing.T) {
	env := setupOrderTest(t)
	result := env.placeOrder(t, 7)
	path := "/api/orders/" + result.Order.ID.String() + "/pay"

	receipt := models.PaymentResult{ID: "pay_1", Status: "COMPLETED", EmailAddress: "ada@example.com"}
	w := env.do(t, http.MethodPut, path, token(t, 7, models.RoleUser), receipt)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var order models.Order
	json.Unmarshal(w.Body.Bytes(), &order)
	if !order.IsPaid || order.PaidAt == nil || order.PaymentResult == nil || order.PaymentResult.ID != "pay_1" {
		t.Errorf("Expected paid order with receipt, got %+v", order)
	}

	w = env.do(t, http.MethodPut, path, token(t, 7, models.RoleUser), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d on repeat, got %d", http.StatusOK, w.Code)
	}
	var again models.Order
	json.Unmarshal(w.Body.Bytes(), &again)
	if !again.PaidAt.Equal(*order.PaidAt) {
		t.Errorf("Expected paid_at to stay %v, got %v", order.PaidAt, again.PaidAt)
	}
	if again.PaymentResult == nil || again.PaymentResult.ID != "pay_1" {
		t.Errorf("Expected receipt to be kept without a new one, got %+v", again.PaymentResult)
	}

	if w := env.do(t, http.MethodPut, path, token(t, 8, models.RoleUser), nil); w.Code != http.StatusForbidden {
		t.Errorf("Stranger: expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	env := setupOrderTest(t)
	result := env.placeOrder(t, 7)
	path := "/api/orders/" + result.Order.ID.String() + "/status"

	if w := env.do(t, http.MethodPut, path, token(t, 7, models.RoleUser), `{"status": "packing"}`); w.Code != http.StatusForbidden {
		t.Errorf("Owner: expected status %d, got %d", http.StatusForbidden, w.Code)
	}

	w := env.do(t, http.MethodPut, path, token(t, 100, models.RoleStaff), `{"status": "delivered", "tracking_number": "TRK-9"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var order models.Order
	json.Unmarshal(w.Body.Bytes(), &order)
	if !order.IsDelivered || order.DeliveredAt == nil || order.TrackingNumber != "TRK-9" {
		t.Errorf("Expected delivered order with tracking, got %+v", order)
	}

	if w := env.do(t, http.MethodPut, path, token(t, 100, models.RoleStaff), `{"status": "packing"}`); w.Code != http.StatusForbidden {
		t.Errorf("Staff reopen: expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if w := env.do(t, http.MethodPut, path, token(t, 100, models.RoleStaff), `{"status": "lost"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Invalid status: expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if w := env.do(t, http.MethodPut, path, token(t, 1, models.RoleAdmin), `{"status": "packing", "expected_revision": 1}`); w.Code != http.StatusConflict {
		t.Errorf("Stale revision: expected status %d, got %d", http.StatusConflict, w.Code)
	}
	if w := env.do(t, http.MethodPut, path, token(t, 1, models.RoleAdmin), `{"status": "packing"}`); w.Code != http.StatusOK {
		t.Errorf("Admin reopen: expected status %d, got %d", http.StatusOK, w.Code)
	}
}
