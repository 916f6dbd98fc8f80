package memory

import (
	"context"

	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/google/uuid"
)

type campaigns struct{ *base }

func (r campaigns) Create(_ context.Context, c models.Campaign) (models.Campaign, error) {
	err := r.do(func(st *state) error {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, ok := st.campaigns[c.ID]; ok {
			return repo.ErrDuplicate
		}
		for _, existing := range st.campaigns {
			if existing.TrackingNumber == c.TrackingNumber {
				return repo.ErrDuplicate
			}
		}
		c.CreatedAt = r.s.now()
		c.UpdatedAt = c.CreatedAt
		if c.StartDate.IsZero() {
			c.StartDate = c.CreatedAt
		}
		st.campaigns[c.ID] = cloneCampaign(c)
		return nil
	})
	return c, err
}

func (r campaigns) GetByID(_ context.Context, id string) (models.Campaign, error) {
	var c models.Campaign
	err := r.do(func(st *state) error {
		stored, ok := st.campaigns[id]
		if !ok {
			return repo.ErrNotFound
		}
		c = cloneCampaign(stored)
		return nil
	})
	return c, err
}

// GetForUpdate needs no row lock: a transaction already holds the store mutex.
func (r campaigns) GetForUpdate(ctx context.Context, id string) (models.Campaign, error) {
	return r.GetByID(ctx, id)
}

func (r campaigns) GetByDisbursementTxIDForUpdate(_ context.Context, txID string) (models.Campaign, error) {
	var c models.Campaign
	err := r.do(func(st *state) error {
		for _, stored := range st.campaigns {
			d := stored.Disbursement
			if d == nil || txID == "" {
				continue
			}
			if d.TransactionID == txID || d.OriginatorConversationID == txID {
				c = cloneCampaign(stored)
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return c, err
}

func (r campaigns) Update(_ context.Context, c models.Campaign, expected models.CampaignStatus) error {
	return r.do(func(st *state) error {
		stored, ok := st.campaigns[c.ID]
		if !ok {
			return repo.ErrNotFound
		}
		if stored.Status != expected {
			return repo.ErrConflict
		}
		c.TrackingNumber = stored.TrackingNumber
		c.CurrentAmount = stored.CurrentAmount
		c.CreatedBy = stored.CreatedBy
		c.CreatedAt = stored.CreatedAt
		c.UpdatedAt = r.s.now()
		st.campaigns[c.ID] = cloneCampaign(c)
		return nil
	})
}

func (r campaigns) AddAmount(_ context.Context, id string, delta int64) (int64, error) {
	var amount int64
	err := r.do(func(st *state) error {
		stored, ok := st.campaigns[id]
		if !ok {
			return repo.ErrNotFound
		}
		if stored.CurrentAmount+delta < 0 {
			return repo.ErrConflict
		}
		stored.CurrentAmount += delta
		stored.UpdatedAt = r.s.now()
		st.campaigns[id] = stored
		amount = stored.CurrentAmount
		return nil
	})
	return amount, err
}
