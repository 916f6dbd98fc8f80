package postgres

import (
	"context"

	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/google/uuid"
)

type auditLogsRepo struct{ q querier }

func (r *auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Details == nil {
		l.Details = map[string]any{}
	}
	_, err := r.q.Exec(ctx,
		`INSERT INTO audit_logs (id, entity_type, entity_id, action, details) VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.EntityType, l.EntityID, l.Action, l.Details,
	)
	return err
}
