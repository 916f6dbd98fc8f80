package postgres

import (
	"context"

	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/google/uuid"
)

type usersRepo struct{ q querier }

const userColumns = `id, admission_number, full_name, email, password_hash, role, is_active, created_at, updated_at`

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := r.q.QueryRow(ctx, `
INSERT INTO users (id, admission_number, full_name, email, password_hash, role, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING created_at, updated_at`,
		u.ID, u.AdmissionNumber, u.FullName, u.Email, u.PasswordHash, u.Role, u.IsActive,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return u, mapErr(err)
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, repo.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *usersRepo) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var ok bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

func (r *usersRepo) getOne(ctx context.Context, q string, arg string) (models.User, error) {
	var u models.User
	err := r.q.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.AdmissionNumber, &u.FullName, &u.Email, &u.PasswordHash,
		&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, mapErr(err)
}
