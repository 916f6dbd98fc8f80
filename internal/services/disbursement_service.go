package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"github.com/baharkarakas/welfare-backend/internal/cache"
	"github.com/baharkarakas/welfare-backend/internal/callback"
	"github.com/baharkarakas/welfare-backend/internal/metrics"
	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/baharkarakas/welfare-backend/internal/mpesa"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"go.uber.org/zap"
)

const TimeoutDescription = "Request timed out at M-Pesa queue"

// DisbursementService runs the B2C payout state machine:
// (none) -> processing -> completed | failed | timeout.
type DisbursementService struct {
	store repo.Store
	gw    PayoutGateway
	coord cache.Coordinator
	log   *zap.Logger
	now   clock
}

func NewDisbursementService(store repo.Store, gw PayoutGateway, coord cache.Coordinator, log *zap.Logger) *DisbursementService {
	return &DisbursementService{store: store, gw: gw, coord: coord, log: log, now: utcNow}
}

type DisburseInput struct {
	CampaignID    string `json:"-"`
	Phone         string `json:"phone"`
	Amount        int64  `json:"amount"`
	AdminID       string `json:"-"`
	RecipientName string `json:"recipient_name"`
	Remarks       string `json:"remarks"`
}

type DisburseResult struct {
	ConversationID string          `json:"conversation_id"`
	Campaign       models.Campaign `json:"campaign"`
}

// InitiateDisbursement checks the payout preconditions under a row lock,
// submits the B2C request and records it as processing, all in one
// transaction. Any failure leaves the campaign untouched.
func (s *DisbursementService) InitiateDisbursement(ctx context.Context, in DisburseInput) (DisburseResult, error) {
	const op = "disbursement.Initiate"

	phone, err := mpesa.NormalizePhone(in.Phone)
	if err != nil {
		return DisburseResult{}, apperr.Validation(op, "recipient phone must be in the format 254XXXXXXXXX")
	}
	remarks := strings.TrimSpace(in.Remarks)
	if remarks == "" {
		remarks = mpesa.DefaultRemarks
	}
	if len(remarks) > mpesa.MaxRemarksLen {
		return DisburseResult{}, apperr.Validation(op, "remarks must be at most %d characters", mpesa.MaxRemarksLen)
	}

	var out DisburseResult
	// no retry: the payout request inside is not idempotent
	err = s.store.WithTxOnce(ctx, func(tx repo.Tx) error {
		c, err := tx.Campaigns().GetForUpdate(ctx, in.CampaignID)
		if err != nil {
			return notFound(op, err, "campaign %s not found", in.CampaignID)
		}
		if c.Status != models.CampaignEnded {
			return apperr.InvalidState(op, "campaign is %s, disbursement requires ended", c.Status)
		}
		if in.Amount <= 0 {
			return apperr.InvalidState(op, "disbursement amount must be greater than zero")
		}
		if in.Amount > c.CurrentAmount {
			return apperr.InvalidState(op, "disbursement amount %d exceeds available balance %d", in.Amount, c.CurrentAmount)
		}
		if st := c.DisbursementStatus(); st.Blocking() {
			return apperr.InvalidState(op, "a disbursement is already %s for this campaign", st)
		}
		// the initiator is a foreign key on the record written after the payout
		admin, err := tx.Users().GetByID(ctx, in.AdminID)
		if err != nil {
			return notFound(op, err, "admin %s not found", in.AdminID)
		}
		if admin.Role != models.RoleAdmin || !admin.IsActive {
			return apperr.InvalidState(op, "user %s may not initiate disbursements", in.AdminID)
		}

		res, err := s.gw.RequestPayout(ctx, mpesa.PayoutRequest{Phone: phone, Amount: in.Amount, Remarks: remarks})
		if err != nil {
			return asGateway(op, err)
		}

		c.Status = models.CampaignDisbursing
		c.Disbursement = &models.Disbursement{
			Status:                   models.DisbursementProcessing,
			Amount:                   in.Amount,
			Date:                     s.now(),
			Method:                   models.DisbursementMethodMpesaB2C,
			RecipientPhone:           phone,
			RecipientName:            in.RecipientName,
			Remarks:                  remarks,
			InitiatedBy:              in.AdminID,
			TransactionID:            res.ConversationID,
			OriginatorConversationID: res.OriginatorConversationID,
		}
		if err := tx.Campaigns().Update(ctx, c, models.CampaignEnded); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return apperr.InvalidState(op, "campaign %s changed concurrently", c.ID)
			}
			return s.lost(res, err)
		}
		if err := audit(ctx, tx, models.EntityCampaign, c.ID, "disbursement_initiated", map[string]any{
			"admin": in.AdminID, "amount": in.Amount, "conversation_id": res.ConversationID,
		}); err != nil {
			return s.lost(res, err)
		}
		out = DisburseResult{ConversationID: res.ConversationID, Campaign: c}
		return nil
	})
	if err != nil {
		if apperr.IsBusiness(err) {
			s.log.Warn("disbursement rejected", zap.String("campaign_id", in.CampaignID), zap.Error(err))
		}
		return DisburseResult{}, err
	}
	metrics.DisbursementsTotal.WithLabelValues(string(models.DisbursementProcessing)).Inc()
	s.log.Info("disbursement initiated",
		zap.String("campaign_id", in.CampaignID),
		zap.String("conversation_id", out.ConversationID),
		zap.Int64("amount", in.Amount),
	)
	return out, nil
}

// lost logs a payout the gateway accepted but that could not be recorded.
func (s *DisbursementService) lost(res mpesa.PayoutResponse, err error) error {
	s.log.Error("accepted payout could not be recorded",
		zap.String("conversation_id", res.ConversationID),
		zap.String("originator_conversation_id", res.OriginatorConversationID),
		zap.Error(err),
	)
	return err
}

// HandleResultCallback applies the final B2C outcome. A result that
// arrives after a timeout still wins.
func (s *DisbursementService) HandleResultCallback(ctx context.Context, payload []byte) (Outcome, error) {
	kind := callback.KindB2CResult.String()
	ev, err := callback.ParseB2CResult(payload)
	if err != nil {
		s.log.Warn("malformed b2c result", zap.Error(err))
		observeCallback(kind, OutcomeMalformed)
		return OutcomeMalformed, err
	}
	return s.apply(ctx, ev, func(c *models.Campaign) bool {
		d := c.Disbursement
		if d.Status == models.DisbursementCompleted || d.Status == models.DisbursementFailed {
			return false
		}
		if d.Status != models.DisbursementProcessing && d.Status != models.DisbursementTimeout {
			return false
		}
		d.ResultCode = ev.ResultCode
		d.ResultDesc = ev.Description
		if ev.Success() {
			c.Status = models.CampaignDisbursed
			d.Status = models.DisbursementCompleted
			d.MpesaReceipt = ev.Receipt
			return true
		}
		c.Status = models.CampaignDisbursementFailed
		d.Status = models.DisbursementFailed
		d.MpesaReceipt = ""
		return true
	})
}

// HandleTimeoutCallback marks a still-processing payout as timed out. It
// never overwrites a terminal result.
func (s *DisbursementService) HandleTimeoutCallback(ctx context.Context, payload []byte) (Outcome, error) {
	kind := callback.KindB2CTimeout.String()
	ev, err := callback.ParseB2CTimeout(payload)
	if err != nil {
		s.log.Warn("malformed b2c timeout", zap.Error(err))
		observeCallback(kind, OutcomeMalformed)
		return OutcomeMalformed, err
	}
	return s.apply(ctx, ev, func(c *models.Campaign) bool {
		d := c.Disbursement
		if d.Status != models.DisbursementProcessing {
			return false
		}
		c.Status = models.CampaignDisbursementFailed
		d.Status = models.DisbursementTimeout
		d.ResultCode = ev.ResultCode
		d.ResultDesc = TimeoutDescription
		return true
	})
}

// apply locks the campaign matched by the event, lets mutate decide the
// transition, and commits status, balance and audit together. mutate
// returns false to skip a delivery that no longer applies.
func (s *DisbursementService) apply(ctx context.Context, ev callback.Event, mutate func(*models.Campaign) bool) (Outcome, error) {
	kind := ev.Kind.String()
	log := s.log.With(
		zap.String("kind", kind),
		zap.Strings("correlation_ids", ev.IDs()),
		zap.String("result_code", ev.ResultCode),
	)

	release, locked, err := s.coord.TryLock(ctx, cache.LockKey(kind, ev.IDs()[0]), callbackLockTTL)
	switch {
	case err != nil:
		log.Warn("callback lock unavailable", zap.Error(err))
	case !locked:
		log.Warn("b2c callback already in flight", zap.String("outcome", string(OutcomeDuplicate)))
		observeCallback(kind, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	default:
		defer release()
	}

	var (
		outcome  Outcome
		newState models.DisbursementStatus
	)
	err = s.store.WithTx(ctx, func(tx repo.Tx) error {
		c, err := findByCorrelation(ctx, tx, ev.IDs())
		if errors.Is(err, repo.ErrNotFound) {
			outcome = OutcomeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if c.Disbursement == nil {
			outcome = OutcomeNotFound
			return nil
		}

		expected := c.Status
		if !mutate(&c) {
			outcome = OutcomeDuplicate
			return nil
		}
		d := c.Disbursement
		if err := tx.Campaigns().Update(ctx, c, expected); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				outcome = OutcomeDuplicate
				return nil
			}
			return err
		}
		details := map[string]any{
			"conversation_id": d.TransactionID,
			"result_code":     d.ResultCode,
			"result_desc":     d.ResultDesc,
		}
		if d.Status == models.DisbursementCompleted {
			// disbursed funds leave the campaign balance
			remaining, err := tx.Campaigns().AddAmount(ctx, c.ID, -d.Amount)
			if err != nil {
				return fmt.Errorf("debit campaign %s: %w", c.ID, err)
			}
			details["receipt"] = d.MpesaReceipt
			details["campaign_total"] = remaining
		}
		if err := audit(ctx, tx, models.EntityCampaign, c.ID, "disbursement_"+string(d.Status), details); err != nil {
			return err
		}
		outcome = OutcomeProcessed
		newState = d.Status
		return nil
	})
	if err != nil {
		log.Error("b2c callback failed", zap.Error(err))
		observeCallback(kind, OutcomeError)
		return OutcomeError, err
	}
	if outcome == OutcomeProcessed {
		metrics.DisbursementsTotal.WithLabelValues(string(newState)).Inc()
	}
	log.Info("b2c callback handled", zap.String("outcome", string(outcome)))
	observeCallback(kind, outcome)
	return outcome, nil
}

func findByCorrelation(ctx context.Context, tx repo.Tx, ids []string) (models.Campaign, error) {
	for _, id := range ids {
		c, err := tx.Campaigns().GetByDisbursementTxIDForUpdate(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		return c, err
	}
	return models.Campaign{}, repo.ErrNotFound
}
