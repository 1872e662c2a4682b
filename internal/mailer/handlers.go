package mailer

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/avolkov/labelscan/internal/logger"
	"github.com/avolkov/labelscan/internal/metrics"

	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
	reg *metrics.Registry
}

func NewHandler(svc *Service, reg *metrics.Registry) *Handler {
	return &Handler{svc: svc, reg: reg}
}

func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"success": false,
			"message": "Validation failed",
			"errors":  fields,
		})
		return
	}
	if err := h.svc.Send(&req); err != nil {
		h.reg.EmailsFailed.Inc()
		logger.Log.Error("email sending failed", zap.String("to", req.To), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Failed to send email",
		})
		return
	}
	h.reg.EmailsSent.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Email sent successfully",
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "labelscan",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
