package handlers

import (
	"context"
	"net/http"

	"github.com/baharkarakas/welfare-backend/internal/api/httpx"
	"github.com/baharkarakas/welfare-backend/internal/api/validate"
	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/baharkarakas/welfare-backend/internal/mpesa"
	"github.com/baharkarakas/welfare-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	campaigns *services.CampaignService
	disburse  *services.DisbursementService
	sweeper   *services.Sweeper
}

func NewAdminHandler(campaigns *services.CampaignService, disburse *services.DisbursementService, sweeper *services.Sweeper) *AdminHandler {
	return &AdminHandler{campaigns: campaigns, disburse: disburse, sweeper: sweeper}
}

func (h *AdminHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	createCampaign(w, r, h.campaigns)
}

func (h *AdminHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.Approve)
}

func (h *AdminHandler) End(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.End)
}

func (h *AdminHandler) ReopenDisbursement(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.ReopenDisbursement)
}

type rejectReq struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req rejectReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	c, err := h.campaigns.Reject(r.Context(), adminID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, adminID, id string) (models.Campaign, error)) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	c, err := fn(r.Context(), adminID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) Disburse(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in services.DisburseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	if err := validate.Collect("admin.Disburse",
		validate.Required("phone", in.Phone),
		validate.MaxLen("remarks", in.Remarks, mpesa.MaxRemarksLen),
	); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	in.CampaignID = chi.URLParam(r, "id")
	in.AdminID = adminID

	res, err := h.disburse.InitiateDisbursement(r.Context(), in)
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, res)
}

// Reconcile runs one sweep over stale pending contributions.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}
