package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"github.com/baharkarakas/welfare-backend/internal/models"
)

func TestCampaignCreate(t *testing.T) {
	f := newFixture(t)
	c := f.campaignIn(models.CampaignPendingApproval)
	if c.ID == "" || !strings.HasPrefix(c.TrackingNumber, "CMP-") {
		t.Fatalf("campaign = %+v", c)
	}
	if c.CreatedBy != f.member.ID || c.CurrentAmount != 0 || c.StartDate.IsZero() {
		t.Fatalf("campaign = %+v", c)
	}
	if logs := f.store.AuditLogsFor(c.ID); len(logs) != 1 || logs[0].Action != "created" {
		t.Fatalf("audit = %+v", logs)
	}

	_, err := f.campaign.Create(context.Background(), f.member.ID, CreateCampaignInput{Title: " ", Description: "x", EndDate: f.now})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank title err = %v", err)
	}
	_, err = f.campaign.Create(context.Background(), "ghost", CreateCampaignInput{Title: "t", Description: "d", EndDate: f.now.AddDate(0, 1, 0)})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown creator err = %v", err)
	}
}

func TestCampaignLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaignIn(models.CampaignPendingApproval)

	if _, err := f.campaign.End(ctx, f.admin.ID, c.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("end before approval err = %v", err)
	}

	approved, err := f.campaign.Approve(ctx, f.admin.ID, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if approved.Status != models.CampaignActive || approved.ApprovedBy == nil || *approved.ApprovedBy != f.admin.ID {
		t.Fatalf("approved = %+v", approved)
	}
	if _, err := f.campaign.Approve(ctx, f.admin.ID, c.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("double approve err = %v", err)
	}

	ended, err := f.campaign.End(ctx, f.admin.ID, c.ID)
	if err != nil || ended.Status != models.CampaignEnded {
		t.Fatalf("end: %+v %v", ended, err)
	}
	if _, err := f.campaign.ReopenDisbursement(ctx, f.admin.ID, c.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("reopen without failure err = %v", err)
	}

	stored, err := f.campaign.Get(ctx, c.ID)
	if err != nil || stored.Status != models.CampaignEnded {
		t.Fatalf("get: %+v %v", stored, err)
	}
	if _, err := f.campaign.Get(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get missing err = %v", err)
	}
}

func TestCampaignReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaignIn(models.CampaignPendingApproval)

	if _, err := f.campaign.Reject(ctx, f.admin.ID, c.ID, "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty reason err = %v", err)
	}
	rejected, err := f.campaign.Reject(ctx, f.admin.ID, c.ID, "duplicate application")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != models.CampaignRejected || rejected.RejectionReason != "duplicate application" {
		t.Fatalf("rejected = %+v", rejected)
	}
	if _, err := f.campaign.Approve(ctx, f.admin.ID, c.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("approve after reject err = %v", err)
	}
}
