package handlers

import (
	"context"
	"net/http"

	"github.com/baharkarakas/welfare-backend/internal/api/httpx"
	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"github.com/baharkarakas/welfare-backend/internal/services"
	"go.uber.org/zap"
)

// CallbackHandler receives the payment gateway's asynchronous results.
// Every business outcome is acknowledged with 200 so the gateway stops
// redelivering; only infrastructure failures answer 500.
type CallbackHandler struct {
	collect  *services.CollectionService
	disburse *services.DisbursementService
	log      *zap.Logger
}

func NewCallbackHandler(collect *services.CollectionService, disburse *services.DisbursementService, log *zap.Logger) *CallbackHandler {
	return &CallbackHandler{collect: collect, disburse: disburse, log: log}
}

type callbackFunc func(ctx context.Context, payload []byte) (services.Outcome, error)

func (h *CallbackHandler) STK(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "stk", h.collect.HandleCallback, false)
}

func (h *CallbackHandler) B2CResult(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "b2c_result", h.disburse.HandleResultCallback, true)
}

func (h *CallbackHandler) B2CTimeout(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "b2c_timeout", h.disburse.HandleTimeoutCallback, false)
}

// handle runs fn and acknowledges. When rejectMalformed is set a payload
// that could not be parsed is acknowledged with ResultCode 1.
func (h *CallbackHandler) handle(w http.ResponseWriter, r *http.Request, kind string, fn callbackFunc, rejectMalformed bool) {
	payload, err := httpx.ReadBody(r)
	if err != nil {
		h.log.Warn("callback body unreadable", zap.String("kind", kind), zap.Error(err))
		httpx.WriteJSON(w, http.StatusOK, httpx.Rejected)
		return
	}

	outcome, err := fn(r.Context(), payload)
	if !apperr.IsBusiness(err) {
		h.log.Error("callback processing failed", zap.String("kind", kind), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "callback processing failed", nil)
		return
	}
	if outcome == services.OutcomeMalformed && rejectMalformed {
		httpx.WriteJSON(w, http.StatusOK, httpx.Rejected)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Accepted)
}
