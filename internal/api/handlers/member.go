package handlers

import (
	"net/http"

	"github.com/baharkarakas/welfare-backend/internal/api/httpx"
	"github.com/baharkarakas/welfare-backend/internal/api/validate"
	"github.com/baharkarakas/welfare-backend/internal/middleware"
	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/baharkarakas/welfare-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type MemberHandler struct {
	collect   *services.CollectionService
	campaigns *services.CampaignService
}

func NewMemberHandler(collect *services.CollectionService, campaigns *services.CampaignService) *MemberHandler {
	return &MemberHandler{collect: collect, campaigns: campaigns}
}

// Pay starts an STK push and answers 202; the outcome arrives by callback.
func (h *MemberHandler) Pay(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in services.InitiateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	if err := validate.Collect("member.Pay",
		validate.Required("phone", in.Phone),
		validate.Required("campaign_id", in.CampaignID),
		validate.MinInt("amount", in.Amount, 1),
	); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	in.UserID = uid

	c, err := h.collect.Initiate(r.Context(), in)
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]any{
		"message":        "payment prompt sent, complete it on your phone",
		"transaction_id": c.TransactionID,
		"contribution":   c,
	})
}

func (h *MemberHandler) ContributionStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	role, _ := middleware.Role(r.Context())
	c, err := h.collect.StatusFor(r.Context(), chi.URLParam(r, "transactionId"), uid, role == models.RoleAdmin)
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *MemberHandler) ApplyCampaign(w http.ResponseWriter, r *http.Request) {
	createCampaign(w, r, h.campaigns)
}

func createCampaign(w http.ResponseWriter, r *http.Request, campaigns *services.CampaignService) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in services.CreateCampaignInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	c, err := campaigns.Create(r.Context(), uid, in)
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}
