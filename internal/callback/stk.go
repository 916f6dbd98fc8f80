package callback

import (
	"encoding/json"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
)

type stkCallback struct {
	MerchantRequestID  string          `json:"MerchantRequestID"`
	CheckoutRequestID  string          `json:"CheckoutRequestID"`
	ResultCode         json.RawMessage `json:"ResultCode"`
	ResultDesc         string          `json:"ResultDesc"`
	MpesaReceiptNumber string          `json:"MpesaReceiptNumber"`
	CallbackMetadata   *struct {
		Item json.RawMessage `json:"Item"`
	} `json:"CallbackMetadata"`
}

// stkEnvelope accepts {"Body":{"stkCallback":{...}}}, {"stkCallback":{...}}
// and the flat form.
type stkEnvelope struct {
	Body *struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
	StkCallback *stkCallback `json:"stkCallback"`
	stkCallback
}

// ParseSTK parses a Lipa na M-Pesa Online (STK push) callback.
func ParseSTK(payload []byte) (Event, error) {
	const op = "callback.ParseSTK"

	var env stkEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, apperr.Malformed(op, "invalid json: %v", err)
	}

	cb := &env.stkCallback
	switch {
	case env.Body != nil && env.Body.StkCallback != nil:
		cb = env.Body.StkCallback
	case env.StkCallback != nil:
		cb = env.StkCallback
	}

	ev := Event{
		Kind:             KindSTK,
		CorrelationID:    cb.CheckoutRequestID,
		AltCorrelationID: cb.MerchantRequestID,
		ResultCode:       NormalizeResultCode(cb.ResultCode),
		Description:      cb.ResultDesc,
		Receipt:          cb.MpesaReceiptNumber,
	}
	if cb.CallbackMetadata != nil {
		meta := items(cb.CallbackMetadata.Item)
		if r := lookup(meta, "MpesaReceiptNumber"); r != "" {
			ev.Receipt = r
		}
		ev.Amount = parseAmount(lookup(meta, "Amount"))
	}

	if ev.CorrelationID == "" {
		return ev, apperr.Malformed(op, "missing CheckoutRequestID")
	}
	if ev.ResultCode == "" {
		return ev, apperr.Malformed(op, "missing ResultCode for %s", ev.CorrelationID)
	}
	return ev, nil
}
