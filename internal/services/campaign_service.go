package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type CampaignService struct {
	store repo.Store
	log   *zap.Logger
	now   clock
}

func NewCampaignService(store repo.Store, log *zap.Logger) *CampaignService {
	return &CampaignService{store: store, log: log, now: utcNow}
}

type CreateCampaignInput struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Details     string                  `json:"details"`
	Category    models.CampaignCategory `json:"category"`
	GoalAmount  int64                   `json:"goal_amount"`
	StartDate   time.Time               `json:"start_date"`
	EndDate     time.Time               `json:"end_date"`
}

// Create submits a campaign for approval. Member applications and admin
// submissions both start in pending_approval.
func (s *CampaignService) Create(ctx context.Context, creatorID string, in CreateCampaignInput) (models.Campaign, error) {
	const op = "campaign.Create"

	c := models.Campaign{
		TrackingNumber: "CMP-" + ulid.Make().String(),
		Title:          in.Title,
		Description:    in.Description,
		Details:        in.Details,
		Category:       in.Category,
		GoalAmount:     in.GoalAmount,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Status:         models.CampaignPendingApproval,
		CreatedBy:      creatorID,
	}
	if c.StartDate.IsZero() {
		c.StartDate = s.now()
	}
	if err := c.Validate(); err != nil {
		return models.Campaign{}, apperr.Validation(op, "%v", err)
	}

	err := s.store.WithTx(ctx, func(tx repo.Tx) error {
		ok, err := tx.Users().Exists(ctx, creatorID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound(op, "user %s not found", creatorID)
		}
		if c, err = tx.Campaigns().Create(ctx, c); err != nil {
			return err
		}
		return audit(ctx, tx, models.EntityCampaign, c.ID, "created", map[string]any{
			"created_by": creatorID, "goal_amount": c.GoalAmount,
		})
	})
	if err != nil {
		return models.Campaign{}, err
	}
	s.log.Info("campaign created", zap.String("campaign_id", c.ID), zap.String("tracking_number", c.TrackingNumber))
	return c, nil
}

func (s *CampaignService) Get(ctx context.Context, id string) (models.Campaign, error) {
	c, err := s.store.Campaigns().GetByID(ctx, id)
	if err != nil {
		return models.Campaign{}, notFound("campaign.Get", err, "campaign %s not found", id)
	}
	return c, nil
}

func (s *CampaignService) Approve(ctx context.Context, adminID, id string) (models.Campaign, error) {
	return s.transition(ctx, "campaign.Approve", id, models.CampaignPendingApproval, models.CampaignActive,
		map[string]any{"admin": adminID},
		func(c *models.Campaign) error {
			c.ApprovedBy = &adminID
			return nil
		})
}

func (s *CampaignService) Reject(ctx context.Context, adminID, id, reason string) (models.Campaign, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Campaign{}, apperr.Validation("campaign.Reject", "rejection reason is required")
	}
	return s.transition(ctx, "campaign.Reject", id, models.CampaignPendingApproval, models.CampaignRejected,
		map[string]any{"admin": adminID, "reason": reason},
		func(c *models.Campaign) error {
			c.RejectionReason = reason
			return nil
		})
}

// End closes an active campaign to contributions; it becomes eligible for disbursement.
func (s *CampaignService) End(ctx context.Context, adminID, id string) (models.Campaign, error) {
	return s.transition(ctx, "campaign.End", id, models.CampaignActive, models.CampaignEnded,
		map[string]any{"admin": adminID},
		func(c *models.Campaign) error {
			c.EndDate = s.now()
			return nil
		})
}

// ReopenDisbursement returns a campaign whose payout definitively failed to
// ended so a new disbursement can be initiated. A timed-out payout may still
// succeed, so it stays open until its result arrives.
func (s *CampaignService) ReopenDisbursement(ctx context.Context, adminID, id string) (models.Campaign, error) {
	return s.transition(ctx, "campaign.ReopenDisbursement", id, models.CampaignDisbursementFailed, models.CampaignEnded,
		map[string]any{"admin": adminID},
		func(c *models.Campaign) error {
			if st := c.DisbursementStatus(); st != models.DisbursementFailed {
				return apperr.InvalidState("campaign.ReopenDisbursement", "disbursement is %s, only a failed payout can be reopened", st)
			}
			return nil
		})
}

func (s *CampaignService) transition(
	ctx context.Context,
	op, id string,
	from, to models.CampaignStatus,
	details map[string]any,
	mutate func(*models.Campaign) error,
) (models.Campaign, error) {
	var out models.Campaign
	err := s.store.WithTx(ctx, func(tx repo.Tx) error {
		c, err := tx.Campaigns().GetForUpdate(ctx, id)
		if err != nil {
			return notFound(op, err, "campaign %s not found", id)
		}
		if c.Status != from {
			return apperr.InvalidState(op, "campaign is %s, expected %s", c.Status, from)
		}
		if err := mutate(&c); err != nil {
			return err
		}
		c.Status = to
		if err := tx.Campaigns().Update(ctx, c, from); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return apperr.InvalidState(op, "campaign %s changed concurrently", id)
			}
			return err
		}
		details["from"] = string(from)
		details["to"] = string(to)
		if err := audit(ctx, tx, models.EntityCampaign, id, string(to), details); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return models.Campaign{}, err
	}
	s.log.Info("campaign transition",
		zap.String("campaign_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return out, nil
}
