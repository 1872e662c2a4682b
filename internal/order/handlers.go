package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/avolkov/labelscan/internal/logger"
	"github.com/avolkov/labelscan/internal/metrics"
	"github.com/avolkov/labelscan/internal/types/order"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
	reg *metrics.Registry
}

func NewHandler(svc *Service, reg *metrics.Registry) *Handler {
	return &Handler{svc: svc, reg: reg}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError translates a workflow error into its response. Internal
// failures are logged and surfaced as a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"success": false,
			"message": "Validation failed",
			"errors":  ve.Fields,
		})
	case errors.Is(err, ErrDuplicateOrderID):
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "Order identifier already exists",
		})
	case errors.Is(err, ErrAllPrinted):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"message": "All orders for this SKU have been printed",
		})
	case errors.Is(err, ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"message": "Order not found",
		})
	default:
		logger.Log.Error("order handler failure", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": http.StatusText(http.StatusInternalServerError),
		})
	}
}

type skuReq struct {
	SKU string `json:"sku"`
}

func (h *Handler) CheckSKU(w http.ResponseWriter, r *http.Request) {
	var req skuReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.svc.CheckSKU(req.SKU); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists":  false,
		"message": "SKU is available",
	})
}

func (h *Handler) StoreScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		http.Error(w, "bad multipart request", http.StatusBadRequest)
		return
	}

	var up *Upload
	file, header, err := r.FormFile("upload_file")
	if err == nil {
		defer file.Close()
		up = &Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Data:        file,
		}
	}

	o, err := h.svc.StoreScan(r.Context(), r.FormValue("sku"), up)
	if err != nil {
		writeError(w, err)
		return
	}
	h.reg.OrdersScanned.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order scanned successfully",
		"order":   o,
	})
}

func (h *Handler) FindBySKU(w http.ResponseWriter, r *http.Request) {
	var req skuReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o, err := h.svc.FindBySKU(r.Context(), req.SKU)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   o,
	})
}

func (h *Handler) MarkAsPrinted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID int64 `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o, err := h.svc.MarkAsPrinted(r.Context(), req.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.reg.OrdersPrinted.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order marked as printed",
		"order":   o,
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	p := ListParams{
		Search:    q.Get("search"),
		Status:    q.Get("status"),
		DateFrom:  q.Get("date_from"),
		DateTo:    q.Get("date_to"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Page:      page,
		PerPage:   perPage,
	}
	orders, total, err := h.svc.List(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []order.Order{} // keep "orders": [] in the response
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  orders,
		"total":   total,
	})
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.reg.OrdersDeleted.Inc()
	w.WriteHeader(http.StatusNoContent)
}
