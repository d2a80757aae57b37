package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kelontongpos/internal/catalog"
	"kelontongpos/internal/domain"
	"kelontongpos/internal/inventory"
	"kelontongpos/internal/payment"
	"kelontongpos/internal/sales"
	"kelontongpos/internal/store/memory"
)

func newTestHandler(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	repo := memory.New()
	repo.PutProduct(domain.Product{
		ID:             "p1",
		Barcode:        "8991001101234",
		Name:           "Mie Goreng Instan",
		Category:       "grocery",
		SellingPrice:   decimal.RequireFromString("3.99"),
		TaxRatePercent: decimal.RequireFromString("10"),
		CurrentStock:   5,
		Active:         true,
	})

	cat := catalog.New(repo, nil, time.Minute, nil)
	inv := inventory.New(repo, nil)
	payments := payment.NewProcessor(
		payment.NewSimulatedGateway("card"),
		payment.NewSimulatedGateway("mobile"),
		time.Second,
		nil,
	)
	engine := sales.NewEngine(repo, inv, payments, nil)
	return New(cat, inv, engine, nil).Handler(), repo
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestBarcodeLookup(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/products/barcode/8991001101234", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/products/barcode/0000000000000", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown barcode", rec.Code)
	}
}

func TestCheckoutCashHappyPath(t *testing.T) {
	handler, repo := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/checkout", CheckoutRequest{
		TerminalID: "terminal-1",
		Items:      []CheckoutItem{{ProductID: "p1", Qty: 2}},
		Payment: payment.Request{
			Method:       domain.PaymentCash,
			CashTendered: decimal.RequireFromString("10.00"),
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Transaction == nil || resp.Transaction.Status != domain.TxStatusCompleted {
		t.Fatalf("transaction not completed: %+v", resp.Transaction)
	}
	if !resp.Change.Equal(decimal.RequireFromString("1.22")) {
		t.Fatalf("change = %s, want 1.22", resp.Change)
	}
	if len(resp.Receipt) == 0 {
		t.Fatalf("response must include receipt lines")
	}

	p, err := repo.GetProductByID(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.CurrentStock != 3 {
		t.Fatalf("stock = %d, want 3", p.CurrentStock)
	}
}

func TestCheckoutInsufficientCashIs422(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/checkout", CheckoutRequest{
		Items: []CheckoutItem{{ProductID: "p1", Qty: 2}},
		Payment: payment.Request{
			Method:       domain.PaymentCash,
			CashTendered: decimal.RequireFromString("5.00"),
		},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutDeclineIs402(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/checkout", CheckoutRequest{
		Items: []CheckoutItem{{ProductID: "p1", Qty: 1}},
		Payment: payment.Request{
			Method:  domain.PaymentCard,
			Gateway: payment.GatewayDetails{Token: "DECLINE-1"},
		},
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutUnknownProductIs404(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/checkout", CheckoutRequest{
		Items: []CheckoutItem{{ProductID: "ghost", Qty: 1}},
		Payment: payment.Request{
			Method:       domain.PaymentCash,
			CashTendered: decimal.RequireFromString("10.00"),
		},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestReturnFlowOverHTTP(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/checkout", CheckoutRequest{
		Items: []CheckoutItem{{ProductID: "p1", Qty: 2}},
		Payment: payment.Request{
			Method:       domain.PaymentCash,
			CashTendered: decimal.RequireFromString("10.00"),
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout status = %d: %s", rec.Code, rec.Body.String())
	}
	var sale CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sale); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/returns", ReturnRequest{
		OriginalTransactionID: sale.Transaction.ID,
		Items:                 []sales.ReturnLine{{ProductID: "p1", Qty: 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("return status = %d: %s", rec.Code, rec.Body.String())
	}

	// Over-returning what remains is a client error.
	rec = doJSON(t, handler, http.MethodPost, "/api/returns", ReturnRequest{
		OriginalTransactionID: sale.Transaction.ID,
		Items:                 []sales.ReturnLine{{ProductID: "p1", Qty: 2}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("over-return status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestTransactionLookupAndReceipt(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/checkout", CheckoutRequest{
		Items: []CheckoutItem{{ProductID: "p1", Qty: 1}},
		Payment: payment.Request{
			Method:       domain.PaymentCash,
			CashTendered: decimal.RequireFromString("5.00"),
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout status = %d: %s", rec.Code, rec.Body.String())
	}
	var sale CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sale); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/transactions/"+sale.Transaction.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/transactions/"+sale.Transaction.ID+"/receipt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("receipt status = %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("KelontongPOS")) {
		t.Fatalf("receipt body missing header: %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/transactions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
}
