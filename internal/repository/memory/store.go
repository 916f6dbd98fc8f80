// Package memory is an in-process Store used by tests and STORE_DRIVER=memory.
// A single mutex serializes every transaction, so WithTx is trivially
// serializable; rollback discards a copy-on-begin snapshot.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
)

type state struct {
	users         map[string]models.User
	campaigns     map[string]models.Campaign
	contributions map[string]models.Contribution
	auditLogs     []models.AuditLog
}

func newState() *state {
	return &state{
		users:         map[string]models.User{},
		campaigns:     map[string]models.Campaign{},
		contributions: map[string]models.Contribution{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.campaigns {
		out.campaigns[k] = cloneCampaign(v)
	}
	for k, v := range s.contributions {
		out.contributions[k] = cloneContribution(v)
	}
	out.auditLogs = append([]models.AuditLog(nil), s.auditLogs...)
	return out
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func NewStore() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Users() repo.Users                 { return users{&base{s: s}} }
func (s *Store) Campaigns() repo.Campaigns         { return campaigns{&base{s: s}} }
func (s *Store) Contributions() repo.Contributions { return contributions{&base{s: s}} }
func (s *Store) AuditLogs() repo.AuditLogs         { return auditLogs{&base{s: s}} }

func (s *Store) WithTx(ctx context.Context, fn func(repo.Tx) error) error {
	return s.WithTxOnce(ctx, fn)
}

func (s *Store) WithTxOnce(ctx context.Context, fn func(repo.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(txView{&base{s: s, st: work}}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// AuditLogsFor returns the audit trail of one entity in insertion order.
func (s *Store) AuditLogsFor(entityID string) []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditLog
	for _, l := range s.st.auditLogs {
		if l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return out
}

type txView struct{ b *base }

func (t txView) Users() repo.Users                 { return users{t.b} }
func (t txView) Campaigns() repo.Campaigns         { return campaigns{t.b} }
func (t txView) Contributions() repo.Contributions { return contributions{t.b} }
func (t txView) AuditLogs() repo.AuditLogs         { return auditLogs{t.b} }

// base is shared by the repositories. Outside a transaction st is nil and
// each call locks the store for its own duration.
type base struct {
	s  *Store
	st *state
}

func (b *base) do(fn func(st *state) error) error {
	if b.st != nil {
		return fn(b.st)
	}
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return fn(b.s.st)
}

func cloneCampaign(c models.Campaign) models.Campaign {
	if c.ApprovedBy != nil {
		a := *c.ApprovedBy
		c.ApprovedBy = &a
	}
	if c.Disbursement != nil {
		d := *c.Disbursement
		c.Disbursement = &d
	}
	return c
}

func cloneContribution(c models.Contribution) models.Contribution {
	if c.MpesaCode != nil {
		m := *c.MpesaCode
		c.MpesaCode = &m
	}
	return c
}
