package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"github.com/baharkarakas/welfare-backend/internal/callback"
	"go.uber.org/zap"
)

type PaymentRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
}

type PaymentResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}

// RequestPayment sends an STK push prompt to the payer's handset. A nil
// error means Daraja accepted the request; settlement arrives by callback.
func (c *Client) RequestPayment(ctx context.Context, in PaymentRequest) (PaymentResponse, error) {
	const op = "mpesa.RequestPayment"

	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return PaymentResponse{}, apperr.Validation(op, "%v", err)
	}
	desc := in.Description
	if desc == "" {
		desc = "Contribution"
	}
	ts := c.timestamp()
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            in.Amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  in.AccountReference,
		TransactionDesc:   desc,
	}

	var res PaymentResponse
	if err := c.post(ctx, "stk_push", "/mpesa/stkpush/v1/processrequest", body, &res); err != nil {
		return PaymentResponse{}, apperr.Gateway(op, err)
	}
	if res.ResponseCode != "0" || res.CheckoutRequestID == "" {
		return res, apperr.Gateway(op, &ResponseError{Code: res.ResponseCode, Description: res.ResponseDescription})
	}
	c.log.Info("stk push accepted",
		zap.String("checkout_request_id", res.CheckoutRequestID),
		zap.String("merchant_request_id", res.MerchantRequestID),
	)
	return res, nil
}

type StatusResponse struct {
	CheckoutRequestID string
	ResultCode        string
	ResultDesc        string
}

// Done reports whether Daraja returned a final result for the request.
func (s StatusResponse) Done() bool { return s.ResultCode != "" }

func (s StatusResponse) Success() bool { return s.ResultCode == callback.SuccessCode }

// QueryStatus asks Daraja for the outcome of an STK push. The response never
// carries the M-Pesa receipt number.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (StatusResponse, error) {
	const op = "mpesa.QueryStatus"

	ts := c.timestamp()
	body := map[string]string{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          c.password(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}
	var res struct {
		ResponseCode        string          `json:"ResponseCode"`
		ResponseDescription string          `json:"ResponseDescription"`
		CheckoutRequestID   string          `json:"CheckoutRequestID"`
		ResultCode          json.RawMessage `json:"ResultCode"`
		ResultDesc          string          `json:"ResultDesc"`
	}
	if err := c.post(ctx, "stk_query", "/mpesa/stkpushquery/v1/query", body, &res); err != nil {
		return StatusResponse{}, apperr.Gateway(op, err)
	}
	if res.ResponseCode != "" && res.ResponseCode != "0" {
		return StatusResponse{}, apperr.Gateway(op, &ResponseError{Code: res.ResponseCode, Description: res.ResponseDescription})
	}
	return StatusResponse{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        callback.NormalizeResultCode(res.ResultCode),
		ResultDesc:        res.ResultDesc,
	}, nil
}
