// Package httpapi exposes the engine over JSON. Routes are terminal-facing:
// the cashier UI assembles a cart client side and posts the whole sale to
// checkout in one request.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kelontongpos/internal/cart"
	"kelontongpos/internal/catalog"
	"kelontongpos/internal/domain"
	"kelontongpos/internal/inventory"
	"kelontongpos/internal/payment"
	"kelontongpos/internal/receipt"
	"kelontongpos/internal/sales"
	"kelontongpos/internal/store"
)

type API struct {
	catalog   *catalog.Service
	inventory *inventory.Service
	engine    *sales.Engine
	log       *zap.Logger
}

func New(cat *catalog.Service, inv *inventory.Service, engine *sales.Engine, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{catalog: cat, inventory: inv, engine: engine, log: log}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", a.handleProductSearch)
		r.Get("/products/barcode/{code}", a.handleProductByBarcode)
		r.Get("/products/{id}", a.handleProductByID)
		r.Get("/products/{id}/movements", a.handleProductMovements)

		r.Post("/checkout", a.handleCheckout)
		r.Post("/returns", a.handleReturn)

		r.Get("/transactions", a.handleTransactionList)
		r.Get("/transactions/{id}", a.handleTransactionByID)
		r.Get("/transactions/{id}/receipt", a.handleTransactionReceipt)
	})

	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(startedAt)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleProductSearch(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	products, err := a.catalog.Search(r.Context(), r.URL.Query().Get("q"), r.URL.Query().Get("category"), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleProductByBarcode(w http.ResponseWriter, r *http.Request) {
	product, err := a.catalog.FindByBarcode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleProductByID(w http.ResponseWriter, r *http.Request) {
	product, err := a.catalog.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleProductMovements(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	movements, err := a.inventory.Movements(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

// CheckoutRequest is the whole sale in one shot: the lines the terminal
// scanned plus how the customer pays.
type CheckoutRequest struct {
	CustomerID string          `json:"customer_id,omitempty"`
	TerminalID string          `json:"terminal_id,omitempty"`
	Items      []CheckoutItem  `json:"items"`
	Payment    payment.Request `json:"payment"`
}

type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CheckoutResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
	Change      decimal.Decimal     `json:"change"`
	PointsSpent int64               `json:"points_spent,omitempty"`
	Receipt     []string            `json:"receipt"`
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("items required"))
		return
	}

	c := cart.New()
	if req.CustomerID != "" {
		c.AttachCustomer(req.CustomerID)
	}
	for _, item := range req.Items {
		product, err := a.catalog.GetByID(r.Context(), item.ProductID)
		if err != nil {
			a.writeError(w, err)
			return
		}
		if err := c.AddItem(*product, item.Qty); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	result, err := a.engine.CompleteSale(r.Context(), c, req.Payment, req.TerminalID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	c.Clear()

	writeJSON(w, http.StatusOK, CheckoutResponse{
		Transaction: result.Transaction,
		Change:      result.Change,
		PointsSpent: result.PointsSpent,
		Receipt:     receipt.Render(result.Transaction, result.Change),
	})
}

type ReturnRequest struct {
	OriginalTransactionID string             `json:"original_transaction_id"`
	Items                 []sales.ReturnLine `json:"items"`
}

func (a *API) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.OriginalTransactionID == "" || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("original transaction and items required"))
		return
	}

	tx, err := a.engine.ProcessReturn(r.Context(), req.OriginalTransactionID, req.Items)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction": tx,
		"receipt":     receipt.Render(tx, decimal.Zero),
	})
}

func (a *API) handleTransactionList(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid from date"))
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid to date"))
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)

	transactions, err := a.engine.List(r.Context(), from, to, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (a *API) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	tx, err := a.engine.Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleTransactionReceipt(w http.ResponseWriter, r *http.Request) {
	tx, err := a.engine.Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	lines := receipt.Render(tx, decimal.Zero)
	if r.URL.Query().Get("format") == "escpos" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(receipt.Escpos(lines))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(receipt.Text(lines)))
}

// writeError maps engine failures to status codes the terminal can branch
// on: what is missing, what the customer cannot afford, what the gateway
// refused, and what the store temporarily cannot do.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var exhausted *store.StockExhaustedError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &exhausted),
		errors.Is(err, payment.ErrInsufficientPayment),
		errors.Is(err, payment.ErrInsufficientPoints):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, payment.ErrPaymentDeclined):
		writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, payment.ErrNoCustomerAttached),
		errors.Is(err, payment.ErrUnsupportedMethod),
		errors.Is(err, sales.ErrEmptyCart),
		errors.Is(err, sales.ErrNotReturnable),
		errors.Is(err, sales.ErrReturnExceedsOriginal),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, store.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err)
	default:
		a.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

func parseDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 4xx messages are terminal-facing; 5xx get a generic body so internals
	// never leak to the client.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
