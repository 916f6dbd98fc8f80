package callback

import (
	"encoding/json"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
)

type b2cResult struct {
	ResultType               json.RawMessage `json:"ResultType"`
	ResultCode               json.RawMessage `json:"ResultCode"`
	ResultDesc               string          `json:"ResultDesc"`
	OriginatorConversationID string          `json:"OriginatorConversationID"`
	ConversationID           string          `json:"ConversationID"`
	TransactionID            string          `json:"TransactionID"`
	ResultParameters         *struct {
		ResultParameter json.RawMessage `json:"ResultParameter"`
	} `json:"ResultParameters"`
}

// b2cEnvelope accepts {"Result":{...}} and the flat form.
type b2cEnvelope struct {
	Result *b2cResult `json:"Result"`
	b2cResult
}

func decodeB2C(op string, payload []byte) (*b2cResult, error) {
	var env b2cEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, apperr.Malformed(op, "invalid json: %v", err)
	}
	if env.Result != nil {
		return env.Result, nil
	}
	return &env.b2cResult, nil
}

// ParseB2CResult parses the B2C ResultURL callback.
func ParseB2CResult(payload []byte) (Event, error) {
	const op = "callback.ParseB2CResult"

	r, err := decodeB2C(op, payload)
	if err != nil {
		return Event{}, err
	}
	ev := Event{
		Kind:             KindB2CResult,
		CorrelationID:    r.ConversationID,
		AltCorrelationID: r.OriginatorConversationID,
		ResultCode:       NormalizeResultCode(r.ResultCode),
		Description:      r.ResultDesc,
	}
	if r.ResultParameters != nil {
		params := items(r.ResultParameters.ResultParameter)
		ev.Receipt = lookup(params, "TransactionReceipt")
		ev.Amount = parseAmount(lookup(params, "TransactionAmount"))
	}
	if ev.Receipt == "" {
		ev.Receipt = r.TransactionID
	}

	if len(ev.IDs()) == 0 {
		return ev, apperr.Malformed(op, "missing ConversationID")
	}
	if ev.ResultCode == "" {
		return ev, apperr.Malformed(op, "missing ResultCode for %s", ev.IDs()[0])
	}
	return ev, nil
}

// ParseB2CTimeout parses the B2C QueueTimeOutURL callback. Only the
// correlation id is required.
func ParseB2CTimeout(payload []byte) (Event, error) {
	const op = "callback.ParseB2CTimeout"

	r, err := decodeB2C(op, payload)
	if err != nil {
		return Event{}, err
	}
	ev := Event{
		Kind:             KindB2CTimeout,
		CorrelationID:    r.ConversationID,
		AltCorrelationID: r.OriginatorConversationID,
		ResultCode:       NormalizeResultCode(r.ResultCode),
		Description:      r.ResultDesc,
	}
	if len(ev.IDs()) == 0 {
		return ev, apperr.Malformed(op, "missing ConversationID")
	}
	return ev, nil
}
