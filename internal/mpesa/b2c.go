package mpesa

import (
	"context"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"go.uber.org/zap"
)

const (
	DefaultRemarks = "Campaign Disbursement"
	MaxRemarksLen  = 100
)

type PayoutRequest struct {
	Phone   string
	Amount  int64
	Remarks string
}

type PayoutResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

type b2cRequest struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             int64  `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion"`
}

// RequestPayout submits a B2C BusinessPayment. Acceptance only means the
// request was queued; the outcome arrives on the result or timeout URL.
func (c *Client) RequestPayout(ctx context.Context, in PayoutRequest) (PayoutResponse, error) {
	const op = "mpesa.RequestPayout"

	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return PayoutResponse{}, apperr.Validation(op, "recipient phone must be in the format 254XXXXXXXXX")
	}
	remarks := in.Remarks
	if remarks == "" {
		remarks = DefaultRemarks
	}
	if len(remarks) > MaxRemarksLen {
		remarks = remarks[:MaxRemarksLen]
	}
	body := b2cRequest{
		InitiatorName:      c.cfg.B2CInitiatorName,
		SecurityCredential: c.cfg.B2CSecurityCredential,
		CommandID:          "BusinessPayment",
		Amount:             in.Amount,
		PartyA:             c.cfg.B2CShortCode,
		PartyB:             phone,
		Remarks:            remarks,
		QueueTimeOutURL:    c.cfg.B2CTimeoutURL,
		ResultURL:          c.cfg.B2CResultURL,
		Occasion:           "CampaignDisbursement",
	}

	var res PayoutResponse
	if err := c.post(ctx, "b2c", "/mpesa/b2c/v1/paymentrequest", body, &res); err != nil {
		return PayoutResponse{}, apperr.Gateway(op, err)
	}
	if res.ResponseCode != "0" || res.ConversationID == "" {
		return res, apperr.Gateway(op, &ResponseError{Code: res.ResponseCode, Description: res.ResponseDescription})
	}
	c.log.Info("b2c request accepted",
		zap.String("conversation_id", res.ConversationID),
		zap.String("originator_conversation_id", res.OriginatorConversationID),
	)
	return res, nil
}
