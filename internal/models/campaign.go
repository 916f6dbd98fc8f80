package models

import (
	"errors"
	"strings"
	"time"
)

type CampaignCategory string

const (
	CategoryMedical       CampaignCategory = "Medical"
	CategoryAcademic      CampaignCategory = "Academic"
	CategoryEmergency     CampaignCategory = "Emergency"
	CategoryOther         CampaignCategory = "Other"
	CategoryEnvironmental CampaignCategory = "Environmental"
	CategorySports        CampaignCategory = "Sports"
	CategoryEducation     CampaignCategory = "Education"
	CategorySocialWelfare CampaignCategory = "Social Welfare"
)

func (c CampaignCategory) Valid() bool {
	switch c {
	case CategoryMedical, CategoryAcademic, CategoryEmergency, CategoryOther,
		CategoryEnvironmental, CategorySports, CategoryEducation, CategorySocialWelfare:
		return true
	}
	return false
}

type CampaignStatus string

const (
	CampaignPendingApproval    CampaignStatus = "pending_approval"
	CampaignActive             CampaignStatus = "active"
	CampaignRejected           CampaignStatus = "rejected"
	CampaignEnded              CampaignStatus = "ended"
	CampaignDisbursing         CampaignStatus = "disbursing"
	CampaignDisbursed          CampaignStatus = "disbursed"
	CampaignDisbursementFailed CampaignStatus = "disbursement_failed"
)

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignPendingApproval, CampaignActive, CampaignRejected, CampaignEnded,
		CampaignDisbursing, CampaignDisbursed, CampaignDisbursementFailed:
		return true
	}
	return false
}

type DisbursementStatus string

const (
	DisbursementPending    DisbursementStatus = "pending"
	DisbursementProcessing DisbursementStatus = "processing"
	DisbursementCompleted  DisbursementStatus = "completed"
	DisbursementFailed     DisbursementStatus = "failed"
	DisbursementTimeout    DisbursementStatus = "timeout"
)

// Blocking reports whether a disbursement in this state forbids a new attempt.
func (s DisbursementStatus) Blocking() bool {
	return s == DisbursementProcessing || s == DisbursementCompleted
}

const DisbursementMethodMpesaB2C = "M-Pesa B2C"

type Disbursement struct {
	Status                   DisbursementStatus `json:"status"`
	Amount                   int64              `json:"amount"`
	Date                     time.Time          `json:"date"`
	Method                   string             `json:"method"`
	RecipientPhone           string             `json:"recipient_phone"`
	RecipientName            string             `json:"recipient_name,omitempty"`
	Remarks                  string             `json:"remarks,omitempty"`
	InitiatedBy              string             `json:"initiated_by"`
	TransactionID            string             `json:"transaction_id"`
	OriginatorConversationID string             `json:"originator_conversation_id,omitempty"`
	MpesaReceipt             string             `json:"mpesa_receipt,omitempty"`
	ResultCode               string             `json:"result_code,omitempty"`
	ResultDesc               string             `json:"result_desc,omitempty"`
}

type Campaign struct {
	ID              string           `json:"id"`
	TrackingNumber  string           `json:"tracking_number"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Details         string           `json:"details,omitempty"`
	Category        CampaignCategory `json:"category"`
	GoalAmount      int64            `json:"goal_amount"`
	CurrentAmount   int64            `json:"current_amount"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	Status          CampaignStatus   `json:"status"`
	CreatedBy       string           `json:"created_by"`
	ApprovedBy      *string          `json:"approved_by,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	Disbursement    *Disbursement    `json:"disbursement,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// DisbursementStatus returns the sub-record status, or "" when none was initiated.
func (c *Campaign) DisbursementStatus() DisbursementStatus {
	if c.Disbursement == nil {
		return ""
	}
	return c.Disbursement.Status
}

func (c *Campaign) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(c.Description) == "" {
		return errors.New("description is required")
	}
	if c.Category == "" {
		c.Category = CategoryOther
	}
	if !c.Category.Valid() {
		return errors.New("invalid category")
	}
	if c.GoalAmount < 0 {
		return errors.New("goal amount must be >= 0")
	}
	if c.CurrentAmount < 0 {
		return errors.New("current amount must be >= 0")
	}
	if c.EndDate.IsZero() {
		return errors.New("end date is required")
	}
	if !c.StartDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return errors.New("end date must be after start date")
	}
	return nil
}
