package models

import (
	"testing"
	"time"
)

func TestCampaignValidate(t *testing.T) {
	end := time.Now().Add(48 * time.Hour)
	cases := []struct {
		name    string
		c       Campaign
		wantErr bool
	}{
		{"ok", Campaign{Title: "Laptops", Description: "d", Category: CategoryAcademic, EndDate: end}, false},
		{"default category", Campaign{Title: "Laptops", Description: "d", EndDate: end}, false},
		{"blank title", Campaign{Title: "  ", Description: "d", EndDate: end}, true},
		{"bad category", Campaign{Title: "t", Description: "d", Category: "Parties", EndDate: end}, true},
		{"negative goal", Campaign{Title: "t", Description: "d", GoalAmount: -1, EndDate: end}, true},
		{"no end date", Campaign{Title: "t", Description: "d"}, true},
		{"end before start", Campaign{Title: "t", Description: "d", StartDate: end, EndDate: end.Add(-time.Hour)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDisbursementStatusBlocking(t *testing.T) {
	blocking := map[DisbursementStatus]bool{
		DisbursementPending:    false,
		DisbursementProcessing: true,
		DisbursementCompleted:  true,
		DisbursementFailed:     false,
		DisbursementTimeout:    false,
	}
	for s, want := range blocking {
		if got := s.Blocking(); got != want {
			t.Errorf("%s.Blocking() = %v, want %v", s, got, want)
		}
	}
}

func TestContributionStatusTerminal(t *testing.T) {
	if ContributionPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []ContributionStatus{ContributionCompleted, ContributionFailed, ContributionRefunded} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestUserValidateNormalisesEmail(t *testing.T) {
	u := User{AdmissionNumber: "BSC/1/22", FullName: "Jane Wanjiru", Email: " Jane@Kabarak.ac.ke "}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u.Email != "jane@kabarak.ac.ke" {
		t.Errorf("email = %q", u.Email)
	}
	if u.Role != RoleMember {
		t.Errorf("role = %q, want member", u.Role)
	}
}
