package postgres

import (
	"context"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type contributionsRepo struct{ q querier }

const contributionColumns = `id, transaction_id, merchant_request_id, amount, contributor, campaign,
  payment_method, phone, status, mpesa_code, result_code, result_desc, payment_date, created_at, updated_at`

func (r *contributionsRepo) Create(ctx context.Context, c models.Contribution) (models.Contribution, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.PaymentDate.IsZero() {
		c.PaymentDate = time.Now().UTC()
	}
	err := r.q.QueryRow(ctx, `
INSERT INTO contributions (id, transaction_id, merchant_request_id, amount, contributor, campaign,
  payment_method, phone, status, mpesa_code, result_code, result_desc, payment_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING created_at, updated_at`,
		c.ID, c.TransactionID, c.MerchantRequestID, c.Amount, c.Contributor, c.Campaign,
		c.PaymentMethod, c.Phone, c.Status, c.MpesaCode, c.ResultCode, c.ResultDesc, c.PaymentDate,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return c, mapErr(err)
}

func (r *contributionsRepo) GetByID(ctx context.Context, id string) (models.Contribution, error) {
	return scanContribution(r.q.QueryRow(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id=$1`, id))
}

func (r *contributionsRepo) GetByTransactionID(ctx context.Context, txID string) (models.Contribution, error) {
	return scanContribution(r.q.QueryRow(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE transaction_id=$1`, txID))
}

func (r *contributionsRepo) GetByTransactionIDForUpdate(ctx context.Context, txID string) (models.Contribution, error) {
	return scanContribution(r.q.QueryRow(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE transaction_id=$1 FOR UPDATE`, txID))
}

func (r *contributionsRepo) FindCompletedByReceipt(ctx context.Context, receipt string) (models.Contribution, error) {
	return scanContribution(r.q.QueryRow(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE mpesa_code=$1 AND status='completed'`, receipt))
}

func (r *contributionsRepo) Settle(ctx context.Context, id string, to models.ContributionStatus, receipt *string, code, desc string) error {
	tag, err := r.q.Exec(ctx, `
UPDATE contributions
   SET status=$2, mpesa_code=$3, result_code=$4, result_desc=$5, payment_date=now(), updated_at=now()
 WHERE id=$1 AND status='pending'`, id, to, receipt, code, desc)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrConflict
	}
	return nil
}

func (r *contributionsRepo) SetReceipt(ctx context.Context, id, receipt string) error {
	tag, err := r.q.Exec(ctx, `
UPDATE contributions SET mpesa_code=$2, updated_at=now()
 WHERE id=$1 AND status='completed' AND mpesa_code IS NULL`, id, receipt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrConflict
	}
	return nil
}

func (r *contributionsRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Contribution, error) {
	rows, err := r.q.Query(ctx, `
SELECT `+contributionColumns+` FROM contributions
 WHERE status='pending' AND payment_method=$1 AND created_at < $2
 ORDER BY created_at
 LIMIT $3`, models.PaymentMpesa, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContribution(row pgx.Row) (models.Contribution, error) {
	var c models.Contribution
	err := row.Scan(
		&c.ID, &c.TransactionID, &c.MerchantRequestID, &c.Amount, &c.Contributor, &c.Campaign,
		&c.PaymentMethod, &c.Phone, &c.Status, &c.MpesaCode, &c.ResultCode, &c.ResultDesc,
		&c.PaymentDate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return models.Contribution{}, mapErr(err)
	}
	return c, nil
}
