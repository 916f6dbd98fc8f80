package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"github.com/baharkarakas/welfare-backend/internal/metrics"
	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/baharkarakas/welfare-backend/internal/mpesa"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
)

// CollectionGateway is the push-payment side of the payment network.
type CollectionGateway interface {
	RequestPayment(ctx context.Context, in mpesa.PaymentRequest) (mpesa.PaymentResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (mpesa.StatusResponse, error)
}

// PayoutGateway is the business-to-customer side of the payment network.
type PayoutGateway interface {
	RequestPayout(ctx context.Context, in mpesa.PayoutRequest) (mpesa.PayoutResponse, error)
}

// Outcome is what a callback delivery amounted to. Every outcome is
// acknowledged to the gateway.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeMalformed Outcome = "malformed"
	OutcomeError     Outcome = "error"
)

type clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

func audit(ctx context.Context, tx repo.Tx, entity, id, action string, details map[string]any) error {
	if err := tx.AuditLogs().Create(ctx, models.AuditLog{
		EntityType: entity,
		EntityID:   id,
		Action:     action,
		Details:    details,
	}); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// notFound maps repo.ErrNotFound to the domain error and wraps anything else.
func notFound(op string, err error, format string, args ...any) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound(op, format, args...)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// asGateway keeps typed gateway errors and classifies anything untyped
// coming back from a gateway as a gateway failure.
func asGateway(op string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Gateway(op, err)
}

func observeCallback(kind string, outcome Outcome) {
	metrics.CallbacksTotal.WithLabelValues(kind, string(outcome)).Inc()
}
