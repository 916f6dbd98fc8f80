package models

import "time"

type PaymentMethod string

const (
	PaymentMpesa        PaymentMethod = "M-Pesa"
	PaymentCard         PaymentMethod = "Card"
	PaymentBankTransfer PaymentMethod = "Bank Transfer"
	PaymentCash         PaymentMethod = "Cash"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMpesa, PaymentCard, PaymentBankTransfer, PaymentCash:
		return true
	}
	return false
}

type ContributionStatus string

const (
	ContributionPending   ContributionStatus = "pending"
	ContributionCompleted ContributionStatus = "completed"
	ContributionFailed    ContributionStatus = "failed"
	ContributionRefunded  ContributionStatus = "refunded"
)

func (s ContributionStatus) Valid() bool {
	switch s {
	case ContributionPending, ContributionCompleted, ContributionFailed, ContributionRefunded:
		return true
	}
	return false
}

// Terminal reports whether the collection state machine is done with the record.
func (s ContributionStatus) Terminal() bool {
	return s != ContributionPending
}

type Contribution struct {
	ID                string             `json:"id"`
	TransactionID     string             `json:"transaction_id"`
	MerchantRequestID string             `json:"merchant_request_id,omitempty"`
	Amount            int64              `json:"amount"`
	Contributor       string             `json:"contributor"`
	Campaign          string             `json:"campaign"`
	PaymentMethod     PaymentMethod      `json:"payment_method"`
	Phone             string             `json:"phone,omitempty"`
	Status            ContributionStatus `json:"status"`
	MpesaCode         *string            `json:"mpesa_code,omitempty"`
	ResultCode        string             `json:"result_code,omitempty"`
	ResultDesc        string             `json:"result_desc,omitempty"`
	PaymentDate       time.Time          `json:"payment_date"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}
