package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"github.com/baharkarakas/welfare-backend/internal/cache"
	"github.com/baharkarakas/welfare-backend/internal/callback"
	"github.com/baharkarakas/welfare-backend/internal/metrics"
	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/baharkarakas/welfare-backend/internal/mpesa"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"go.uber.org/zap"
)

const callbackLockTTL = 30 * time.Second

// errReceiptTaken aborts a settlement whose receipt a concurrent
// transaction claimed first.
var errReceiptTaken = errors.New("receipt already recorded")

type CollectionOptions struct {
	StaleAfter    time.Duration
	QueryThrottle time.Duration
}

// CollectionService runs the STK push state machine:
// (none) -> pending -> completed | failed.
type CollectionService struct {
	store repo.Store
	gw    CollectionGateway
	coord cache.Coordinator
	log   *zap.Logger
	opts  CollectionOptions
	now   clock
}

func NewCollectionService(store repo.Store, gw CollectionGateway, coord cache.Coordinator, log *zap.Logger, opts CollectionOptions) *CollectionService {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Second
	}
	if opts.QueryThrottle <= 0 {
		opts.QueryThrottle = 10 * time.Second
	}
	return &CollectionService{store: store, gw: gw, coord: coord, log: log, opts: opts, now: utcNow}
}

type InitiateInput struct {
	Phone      string `json:"phone"`
	Amount     int64  `json:"amount"`
	CampaignID string `json:"campaign_id"`
	UserID     string `json:"-"`
}

// AccountReference is what the payer sees on the STK prompt.
func AccountReference(campaignID string) string {
	if len(campaignID) > 10 {
		campaignID = campaignID[len(campaignID)-10:]
	}
	return "CAMP-" + campaignID
}

// Initiate asks the gateway to prompt the payer and records a pending
// contribution once the gateway has accepted. A rejected request leaves
// nothing behind.
func (s *CollectionService) Initiate(ctx context.Context, in InitiateInput) (models.Contribution, error) {
	const op = "collection.Initiate"

	if in.Amount < 1 {
		return models.Contribution{}, apperr.Validation(op, "amount must be at least 1")
	}
	phone, err := mpesa.NormalizePhone(in.Phone)
	if err != nil {
		return models.Contribution{}, apperr.Validation(op, "%v", err)
	}
	camp, err := s.store.Campaigns().GetByID(ctx, in.CampaignID)
	if err != nil {
		return models.Contribution{}, notFound(op, err, "campaign %s not found", in.CampaignID)
	}
	if camp.Status != models.CampaignActive {
		return models.Contribution{}, apperr.InvalidState(op, "campaign is %s, contributions require active", camp.Status)
	}
	ok, err := s.store.Users().Exists(ctx, in.UserID)
	if err != nil {
		return models.Contribution{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return models.Contribution{}, apperr.NotFound(op, "user %s not found", in.UserID)
	}

	res, err := s.gw.RequestPayment(ctx, mpesa.PaymentRequest{
		Phone:            phone,
		Amount:           in.Amount,
		AccountReference: AccountReference(camp.ID),
		Description:      "Contribution",
	})
	if err != nil {
		s.log.Warn("stk push rejected", zap.String("campaign_id", camp.ID), zap.Error(err))
		return models.Contribution{}, asGateway(op, err)
	}

	c := models.Contribution{
		TransactionID:     res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		Amount:            in.Amount,
		Contributor:       in.UserID,
		Campaign:          camp.ID,
		PaymentMethod:     models.PaymentMpesa,
		Phone:             phone,
		Status:            models.ContributionPending,
	}
	err = s.store.WithTx(ctx, func(tx repo.Tx) error {
		created, err := tx.Contributions().Create(ctx, c)
		if err != nil {
			return err
		}
		c = created
		return audit(ctx, tx, models.EntityContribution, c.ID, "initiated", map[string]any{
			"transaction_id": c.TransactionID, "amount": c.Amount, "campaign": c.Campaign,
		})
	})
	if err != nil {
		// the payer has been prompted; the callback will find no record
		s.log.Error("persist pending contribution failed",
			zap.String("transaction_id", res.CheckoutRequestID), zap.Error(err))
		return models.Contribution{}, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("contribution initiated",
		zap.String("transaction_id", c.TransactionID),
		zap.String("campaign_id", c.Campaign),
		zap.Int64("amount", c.Amount),
	)
	return c, nil
}

type settlement struct {
	success bool
	receipt *string
	code    string
	desc    string
	source  string // callback | poll
}

// HandleCallback applies an STK callback. Business outcomes (duplicates,
// unknown ids, malformed payloads) come back as an Outcome; only
// infrastructure failures are returned as non-business errors.
func (s *CollectionService) HandleCallback(ctx context.Context, payload []byte) (Outcome, error) {
	const op = "collection.HandleCallback"
	kind := callback.KindSTK.String()

	ev, err := callback.ParseSTK(payload)
	if err == nil && ev.Success() && ev.Receipt == "" {
		err = apperr.Malformed(op, "success callback for %s carries no receipt", ev.CorrelationID)
	}
	if err != nil {
		s.log.Warn("malformed stk callback", zap.Error(err))
		observeCallback(kind, OutcomeMalformed)
		return OutcomeMalformed, err
	}

	log := s.log.With(
		zap.String("correlation_id", ev.CorrelationID),
		zap.String("result_code", ev.ResultCode),
	)

	release, locked, err := s.coord.TryLock(ctx, cache.LockKey(kind, ev.CorrelationID), callbackLockTTL)
	switch {
	case err != nil:
		// the row lock and status check below still hold
		log.Warn("callback lock unavailable", zap.Error(err))
	case !locked:
		log.Warn("stk callback already in flight", zap.String("outcome", string(OutcomeDuplicate)))
		observeCallback(kind, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	default:
		defer release()
	}

	st := settlement{
		success: ev.Success(),
		code:    ev.ResultCode,
		desc:    ev.Description,
		source:  "callback",
	}
	if st.success {
		receipt := ev.Receipt
		st.receipt = &receipt
	}
	outcome, _, err := s.settle(ctx, ev.CorrelationID, st)
	if err != nil {
		log.Error("stk callback failed", zap.Error(err))
		observeCallback(kind, OutcomeError)
		return OutcomeError, err
	}
	log.Info("stk callback handled", zap.String("outcome", string(outcome)))
	observeCallback(kind, outcome)
	return outcome, nil
}

// settle runs one compare-and-set settlement of the contribution keyed by
// txID: the status check, the status change and the balance change commit
// together or not at all.
func (s *CollectionService) settle(ctx context.Context, txID string, st settlement) (Outcome, models.Contribution, error) {
	var (
		outcome Outcome
		result  models.Contribution
	)
	err := s.store.WithTx(ctx, func(tx repo.Tx) error {
		c, err := tx.Contributions().GetByTransactionIDForUpdate(ctx, txID)
		if errors.Is(err, repo.ErrNotFound) {
			outcome = OutcomeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		result = c

		if c.Status.Terminal() {
			outcome = OutcomeDuplicate
			if c.Status == models.ContributionCompleted && c.MpesaCode == nil && st.success && st.receipt != nil {
				return s.backfillReceipt(ctx, tx, &c, *st.receipt, &outcome, &result)
			}
			return nil
		}

		to := models.ContributionFailed
		var receipt *string
		if st.success {
			to = models.ContributionCompleted
			receipt = st.receipt
			if receipt != nil {
				held, err := receiptHeldElsewhere(ctx, tx, c.ID, *receipt)
				if err != nil {
					return err
				}
				if held {
					s.log.Warn("receipt already settled another contribution",
						zap.String("transaction_id", txID), zap.String("receipt", *receipt))
					outcome = OutcomeDuplicate
					return nil
				}
			}
		}

		if err := tx.Contributions().Settle(ctx, c.ID, to, receipt, st.code, st.desc); err != nil {
			switch {
			case errors.Is(err, repo.ErrDuplicate):
				return errReceiptTaken
			case errors.Is(err, repo.ErrConflict):
				outcome = OutcomeDuplicate
				return nil
			}
			return err
		}
		details := map[string]any{"result_code": st.code, "source": st.source}
		if to == models.ContributionCompleted {
			total, err := tx.Campaigns().AddAmount(ctx, c.Campaign, c.Amount)
			if err != nil {
				return fmt.Errorf("credit campaign %s: %w", c.Campaign, err)
			}
			details["campaign_total"] = total
		}
		if receipt != nil {
			details["receipt"] = *receipt
		}
		if err := audit(ctx, tx, models.EntityContribution, c.ID, string(to), details); err != nil {
			return err
		}

		result.Status = to
		result.MpesaCode = receipt
		result.ResultCode = st.code
		result.ResultDesc = st.desc
		outcome = OutcomeProcessed
		return nil
	})
	if errors.Is(err, errReceiptTaken) {
		return OutcomeDuplicate, result, nil
	}
	if err != nil {
		return OutcomeError, result, err
	}
	if outcome == OutcomeProcessed {
		metrics.ContributionsSettled.WithLabelValues(string(result.Status)).Inc()
	}
	return outcome, result, nil
}

// backfillReceipt stores the receipt of a contribution that a status query
// settled before its callback arrived. The balance was already credited.
func (s *CollectionService) backfillReceipt(ctx context.Context, tx repo.Tx, c *models.Contribution, receipt string, outcome *Outcome, result *models.Contribution) error {
	held, err := receiptHeldElsewhere(ctx, tx, c.ID, receipt)
	if err != nil || held {
		return err
	}
	if err := tx.Contributions().SetReceipt(ctx, c.ID, receipt); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			return errReceiptTaken
		case errors.Is(err, repo.ErrConflict):
			return nil
		}
		return err
	}
	if err := audit(ctx, tx, models.EntityContribution, c.ID, "receipt_backfilled", map[string]any{"receipt": receipt}); err != nil {
		return err
	}
	result.MpesaCode = &receipt
	*outcome = OutcomeProcessed
	return nil
}

func receiptHeldElsewhere(ctx context.Context, tx repo.Tx, selfID, receipt string) (bool, error) {
	other, err := tx.Contributions().FindCompletedByReceipt(ctx, receipt)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return other.ID != selfID, nil
}

// StatusFor is ReconcileIfStale on behalf of a caller. Members only see their
// own contributions; anything else reads as not found and never reaches the
// gateway.
func (s *CollectionService) StatusFor(ctx context.Context, txID, userID string, admin bool) (models.Contribution, error) {
	const op = "collection.StatusFor"

	if !admin {
		c, err := s.store.Contributions().GetByTransactionID(ctx, txID)
		if err != nil {
			return models.Contribution{}, notFound(op, err, "contribution %s not found", txID)
		}
		if c.Contributor != userID {
			return models.Contribution{}, apperr.NotFound(op, "contribution %s not found", txID)
		}
	}
	return s.ReconcileIfStale(ctx, txID)
}

// ReconcileIfStale returns the contribution's status, first asking the
// gateway for the outcome when it has been pending longer than the
// staleness threshold. Gateway and settlement failures are logged and the
// last known state is returned; only an unknown id is an error.
func (s *CollectionService) ReconcileIfStale(ctx context.Context, txID string) (models.Contribution, error) {
	const op = "collection.ReconcileIfStale"

	c, err := s.store.Contributions().GetByTransactionID(ctx, txID)
	if err != nil {
		return models.Contribution{}, notFound(op, err, "contribution %s not found", txID)
	}
	if c.Status != models.ContributionPending || c.PaymentMethod != models.PaymentMpesa {
		return c, nil
	}
	if s.now().Sub(c.CreatedAt) < s.opts.StaleAfter {
		return c, nil
	}

	log := s.log.With(zap.String("transaction_id", txID))
	allowed, err := s.coord.Allow(ctx, cache.ThrottleKey("stk_query", txID), s.opts.QueryThrottle)
	if err != nil {
		log.Warn("query throttle unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		return c, nil
	}

	status, err := s.gw.QueryStatus(ctx, txID)
	if err != nil {
		log.Warn("stk status query failed", zap.Error(err))
		return c, nil
	}
	if !status.Done() {
		return c, nil
	}

	outcome, settled, err := s.settle(ctx, txID, settlement{
		success: status.Success(),
		code:    status.ResultCode,
		desc:    status.ResultDesc,
		source:  "poll",
	})
	if err != nil {
		log.Error("settle from status query failed", zap.Error(err))
		return c, nil
	}
	log.Info("stale contribution reconciled",
		zap.String("outcome", string(outcome)),
		zap.String("status", string(settled.Status)),
	)
	if outcome == OutcomeNotFound {
		return c, nil
	}
	return settled, nil
}
