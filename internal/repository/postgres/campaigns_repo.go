package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type campaignsRepo struct{ q querier }

const campaignInsertColumns = `id, tracking_number, title, description, details, category,
  goal_amount, current_amount, start_date, end_date, status, created_by, approved_by, rejection_reason,
  disb_status, disb_amount, disb_date, disb_method, disb_recipient_phone, disb_recipient_name,
  disb_remarks, disb_initiated_by, disb_transaction_id, disb_originator_conversation_id,
  disb_mpesa_receipt, disb_result_code, disb_result_desc`

const campaignColumns = campaignInsertColumns + `, created_at, updated_at`

func (r *campaignsRepo) Create(ctx context.Context, c models.Campaign) (models.Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.StartDate.IsZero() {
		c.StartDate = time.Now().UTC()
	}
	args := append([]any{
		c.ID, c.TrackingNumber, c.Title, c.Description, c.Details, c.Category,
		c.GoalAmount, c.CurrentAmount, c.StartDate, c.EndDate, c.Status, c.CreatedBy,
		c.ApprovedBy, c.RejectionReason,
	}, disbursementArgs(c.Disbursement)...)
	err := r.q.QueryRow(ctx, `
INSERT INTO campaigns (`+campaignInsertColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
RETURNING created_at, updated_at`, args...).Scan(&c.CreatedAt, &c.UpdatedAt)
	return c, mapErr(err)
}

func (r *campaignsRepo) GetByID(ctx context.Context, id string) (models.Campaign, error) {
	return scanCampaign(r.q.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id))
}

func (r *campaignsRepo) GetForUpdate(ctx context.Context, id string) (models.Campaign, error) {
	return scanCampaign(r.q.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1 FOR UPDATE`, id))
}

func (r *campaignsRepo) GetByDisbursementTxIDForUpdate(ctx context.Context, txID string) (models.Campaign, error) {
	return scanCampaign(r.q.QueryRow(ctx, `
SELECT `+campaignColumns+` FROM campaigns
 WHERE disb_transaction_id=$1 OR disb_originator_conversation_id=$1
 LIMIT 1
 FOR UPDATE`, txID))
}

func (r *campaignsRepo) Update(ctx context.Context, c models.Campaign, expected models.CampaignStatus) error {
	args := append([]any{
		c.ID, c.Title, c.Description, c.Details, c.Category, c.GoalAmount,
		c.StartDate, c.EndDate, c.Status, c.ApprovedBy, c.RejectionReason,
	}, disbursementArgs(c.Disbursement)...)
	args = append(args, expected)
	tag, err := r.q.Exec(ctx, `
UPDATE campaigns SET
  title=$2, description=$3, details=$4, category=$5, goal_amount=$6,
  start_date=$7, end_date=$8, status=$9, approved_by=$10, rejection_reason=$11,
  disb_status=$12, disb_amount=$13, disb_date=$14, disb_method=$15, disb_recipient_phone=$16,
  disb_recipient_name=$17, disb_remarks=$18, disb_initiated_by=$19, disb_transaction_id=$20,
  disb_originator_conversation_id=$21, disb_mpesa_receipt=$22, disb_result_code=$23,
  disb_result_desc=$24, updated_at=now()
WHERE id=$1 AND status=$25`, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrConflict
	}
	return nil
}

func (r *campaignsRepo) AddAmount(ctx context.Context, id string, delta int64) (int64, error) {
	var amount int64
	err := r.q.QueryRow(ctx, `
UPDATE campaigns SET current_amount = current_amount + $2, updated_at=now()
 WHERE id=$1 AND current_amount + $2 >= 0
RETURNING current_amount`, id, delta).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id=$1)`, id).Scan(&exists); err != nil {
			return 0, mapErr(err)
		}
		if !exists {
			return 0, repo.ErrNotFound
		}
		return 0, repo.ErrConflict
	}
	return amount, mapErr(err)
}

func disbursementArgs(d *models.Disbursement) []any {
	if d == nil {
		return make([]any, 13)
	}
	return []any{
		d.Status, d.Amount, d.Date, d.Method, d.RecipientPhone, d.RecipientName,
		d.Remarks, nullIfEmpty(d.InitiatedBy), nullIfEmpty(d.TransactionID),
		nullIfEmpty(d.OriginatorConversationID), d.MpesaReceipt, d.ResultCode, d.ResultDesc,
	}
}

func scanCampaign(row pgx.Row) (models.Campaign, error) {
	var c models.Campaign
	var dStatus, dMethod, dPhone, dName, dRemarks, dInitiator *string
	var dTxID, dOrig, dReceipt, dCode, dDesc *string
	var dAmount *int64
	var dDate *time.Time
	err := row.Scan(
		&c.ID, &c.TrackingNumber, &c.Title, &c.Description, &c.Details, &c.Category,
		&c.GoalAmount, &c.CurrentAmount, &c.StartDate, &c.EndDate, &c.Status, &c.CreatedBy,
		&c.ApprovedBy, &c.RejectionReason,
		&dStatus, &dAmount, &dDate, &dMethod, &dPhone, &dName,
		&dRemarks, &dInitiator, &dTxID, &dOrig, &dReceipt, &dCode, &dDesc,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return models.Campaign{}, mapErr(err)
	}
	if dStatus != nil {
		c.Disbursement = &models.Disbursement{
			Status:                   models.DisbursementStatus(*dStatus),
			Amount:                   deref(dAmount),
			Date:                     deref(dDate),
			Method:                   deref(dMethod),
			RecipientPhone:           deref(dPhone),
			RecipientName:            deref(dName),
			Remarks:                  deref(dRemarks),
			InitiatedBy:              deref(dInitiator),
			TransactionID:            deref(dTxID),
			OriginatorConversationID: deref(dOrig),
			MpesaReceipt:             deref(dReceipt),
			ResultCode:               deref(dCode),
			ResultDesc:               deref(dDesc),
		}
	}
	return c, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
