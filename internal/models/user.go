package models

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type User struct {
	ID              string    `json:"id"`
	AdmissionNumber string    `json:"admission_number"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Role            string    `json:"role"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (u *User) Validate() error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if strings.TrimSpace(u.AdmissionNumber) == "" {
		return errors.New("admission number is required")
	}
	if len(strings.TrimSpace(u.FullName)) < 3 {
		return errors.New("full name too short")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.New("invalid email")
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	if u.Role != RoleMember && u.Role != RoleAdmin {
		return errors.New("invalid role")
	}
	return nil
}
