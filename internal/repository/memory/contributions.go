package memory

import (
	"context"
	"sort"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/google/uuid"
)

type contributions struct{ *base }

func (r contributions) Create(_ context.Context, c models.Contribution) (models.Contribution, error) {
	err := r.do(func(st *state) error {
		for _, existing := range st.contributions {
			if existing.TransactionID == c.TransactionID {
				return repo.ErrDuplicate
			}
			if c.MpesaCode != nil && existing.MpesaCode != nil && *existing.MpesaCode == *c.MpesaCode {
				return repo.ErrDuplicate
			}
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt = r.s.now()
		c.UpdatedAt = c.CreatedAt
		if c.PaymentDate.IsZero() {
			c.PaymentDate = c.CreatedAt
		}
		st.contributions[c.ID] = cloneContribution(c)
		return nil
	})
	return c, err
}

func (r contributions) GetByID(_ context.Context, id string) (models.Contribution, error) {
	return r.find(func(c models.Contribution) bool { return c.ID == id })
}

func (r contributions) GetByTransactionID(_ context.Context, txID string) (models.Contribution, error) {
	return r.find(func(c models.Contribution) bool { return c.TransactionID == txID })
}

func (r contributions) GetByTransactionIDForUpdate(ctx context.Context, txID string) (models.Contribution, error) {
	return r.GetByTransactionID(ctx, txID)
}

func (r contributions) FindCompletedByReceipt(_ context.Context, receipt string) (models.Contribution, error) {
	return r.find(func(c models.Contribution) bool {
		return c.Status == models.ContributionCompleted && c.MpesaCode != nil && *c.MpesaCode == receipt
	})
}

func (r contributions) Settle(_ context.Context, id string, to models.ContributionStatus, receipt *string, code, desc string) error {
	return r.do(func(st *state) error {
		stored, ok := st.contributions[id]
		if !ok {
			return repo.ErrNotFound
		}
		if stored.Status != models.ContributionPending {
			return repo.ErrConflict
		}
		if receipt != nil && receiptTaken(st, id, *receipt) {
			return repo.ErrDuplicate
		}
		stored.Status = to
		stored.MpesaCode = receipt
		stored.ResultCode = code
		stored.ResultDesc = desc
		stored.PaymentDate = r.s.now()
		stored.UpdatedAt = stored.PaymentDate
		st.contributions[id] = cloneContribution(stored)
		return nil
	})
}

func (r contributions) SetReceipt(_ context.Context, id, receipt string) error {
	return r.do(func(st *state) error {
		stored, ok := st.contributions[id]
		if !ok {
			return repo.ErrNotFound
		}
		if stored.Status != models.ContributionCompleted || stored.MpesaCode != nil {
			return repo.ErrConflict
		}
		if receiptTaken(st, id, receipt) {
			return repo.ErrDuplicate
		}
		stored.MpesaCode = &receipt
		stored.UpdatedAt = r.s.now()
		st.contributions[id] = stored
		return nil
	})
}

func (r contributions) ListStalePending(_ context.Context, before time.Time, limit int) ([]models.Contribution, error) {
	var out []models.Contribution
	err := r.do(func(st *state) error {
		for _, c := range st.contributions {
			if c.Status == models.ContributionPending && c.PaymentMethod == models.PaymentMpesa && c.CreatedAt.Before(before) {
				out = append(out, cloneContribution(c))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r contributions) find(match func(models.Contribution) bool) (models.Contribution, error) {
	var found models.Contribution
	err := r.do(func(st *state) error {
		for _, c := range st.contributions {
			if match(c) {
				found = cloneContribution(c)
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return found, err
}

func receiptTaken(st *state, selfID, receipt string) bool {
	for id, c := range st.contributions {
		if id != selfID && c.MpesaCode != nil && *c.MpesaCode == receipt {
			return true
		}
	}
	return false
}
