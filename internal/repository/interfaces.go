package repository

import (
	"context"
	"errors"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a compare-and-set write found a different pre-state.
	ErrConflict = errors.New("record changed concurrently")
	// ErrDuplicate means a unique key (transaction id, receipt) is already taken.
	ErrDuplicate = errors.New("duplicate key")
)

type Users interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type Campaigns interface {
	Create(ctx context.Context, c models.Campaign) (models.Campaign, error)
	GetByID(ctx context.Context, id string) (models.Campaign, error)
	GetForUpdate(ctx context.Context, id string) (models.Campaign, error)
	// GetByDisbursementTxIDForUpdate matches the B2C ConversationID or the
	// OriginatorConversationID.
	GetByDisbursementTxIDForUpdate(ctx context.Context, txID string) (models.Campaign, error)
	// Update writes every mutable column except current_amount, provided the
	// stored status still equals expected. Returns ErrConflict otherwise.
	Update(ctx context.Context, c models.Campaign, expected models.CampaignStatus) error
	// AddAmount applies delta to current_amount and returns the new value.
	// The balance may never go negative.
	AddAmount(ctx context.Context, id string, delta int64) (int64, error)
}

type Contributions interface {
	Create(ctx context.Context, c models.Contribution) (models.Contribution, error)
	GetByID(ctx context.Context, id string) (models.Contribution, error)
	GetByTransactionID(ctx context.Context, txID string) (models.Contribution, error)
	GetByTransactionIDForUpdate(ctx context.Context, txID string) (models.Contribution, error)
	FindCompletedByReceipt(ctx context.Context, receipt string) (models.Contribution, error)
	// Settle moves a pending contribution to completed or failed.
	// ErrConflict when it is no longer pending, ErrDuplicate when the receipt is taken.
	Settle(ctx context.Context, id string, to models.ContributionStatus, receipt *string, code, desc string) error
	// SetReceipt fills the receipt of a completed contribution that has none.
	SetReceipt(ctx context.Context, id, receipt string) error
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Contribution, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

// Tx is the set of repositories bound to one unit of work.
type Tx interface {
	Users() Users
	Campaigns() Campaigns
	Contributions() Contributions
	AuditLogs() AuditLogs
}

// Store gives autocommit access to the repositories plus scoped transactions.
// WithTx runs fn serializably, rolls back on any error or panic, and retries
// on serialization conflicts. WithTxOnce never retries; use it when fn has
// side effects outside the database.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(Tx) error) error
	WithTxOnce(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
}
