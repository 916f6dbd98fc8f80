package memory

import (
	"context"
	"strings"

	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/google/uuid"
)

type users struct{ *base }

func (r users) Create(_ context.Context, u models.User) (models.User, error) {
	err := r.do(func(st *state) error {
		for _, existing := range st.users {
			if strings.EqualFold(existing.Email, u.Email) || existing.AdmissionNumber == u.AdmissionNumber {
				return repo.ErrDuplicate
			}
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		u.CreatedAt = r.s.now()
		u.UpdatedAt = u.CreatedAt
		st.users[u.ID] = u
		return nil
	})
	return u, err
}

func (r users) GetByID(_ context.Context, id string) (models.User, error) {
	var u models.User
	err := r.do(func(st *state) error {
		var ok bool
		if u, ok = st.users[id]; !ok {
			return repo.ErrNotFound
		}
		return nil
	})
	return u, err
}

func (r users) GetByEmail(_ context.Context, email string) (models.User, error) {
	var u models.User
	err := r.do(func(st *state) error {
		for _, candidate := range st.users {
			if candidate.Email == email {
				u = candidate
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return u, err
}

func (r users) Exists(_ context.Context, id string) (bool, error) {
	var ok bool
	err := r.do(func(st *state) error {
		_, ok = st.users[id]
		return nil
	})
	return ok, err
}

type auditLogs struct{ *base }

func (r auditLogs) Create(_ context.Context, l models.AuditLog) error {
	return r.do(func(st *state) error {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.CreatedAt = r.s.now()
		st.auditLogs = append(st.auditLogs, l)
		return nil
	})
}
