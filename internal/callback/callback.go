// Package callback normalizes M-Pesa callback payloads into a single Event.
//
// Daraja is inconsistent about envelope nesting and about encoding result
// codes as numbers or strings; all of that is absorbed here so the state
// machines only ever see Event.
package callback

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type Kind int

const (
	KindSTK Kind = iota
	KindB2CResult
	KindB2CTimeout
)

func (k Kind) String() string {
	switch k {
	case KindSTK:
		return "stk"
	case KindB2CResult:
		return "b2c_result"
	case KindB2CTimeout:
		return "b2c_timeout"
	}
	return "unknown"
}

// SuccessCode is the normalized result code for a settled payment.
const SuccessCode = "0"

type Event struct {
	Kind Kind
	// CorrelationID is the CheckoutRequestID (STK) or ConversationID (B2C).
	CorrelationID string
	// AltCorrelationID is the MerchantRequestID or OriginatorConversationID.
	AltCorrelationID string
	ResultCode       string
	Description      string
	Receipt          string
	Amount           int64
}

func (e Event) Success() bool { return e.ResultCode == SuccessCode }

// IDs returns the non-empty correlation ids, primary first.
func (e Event) IDs() []string {
	var out []string
	for _, id := range []string{e.CorrelationID, e.AltCorrelationID} {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

type item struct {
	Name  string          `json:"Name"`
	Key   string          `json:"Key"`
	Value json.RawMessage `json:"Value"`
}

func (i item) name() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Key
}

// items decodes either a list of items or a single item object.
func items(raw json.RawMessage) []item {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var list []item
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var one item
	if err := json.Unmarshal(raw, &one); err == nil {
		return []item{one}
	}
	return nil
}

func lookup(list []item, names ...string) string {
	for _, n := range names {
		for _, it := range list {
			if strings.EqualFold(it.name(), n) {
				if v := scalar(it.Value); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// scalar renders a JSON string or number as a plain string.
func scalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return ""
		}
		return strings.TrimSpace(str)
	}
	return s
}

// NormalizeResultCode maps 0, "0", " 0 " and 0.0 to "0". Missing or null
// codes normalize to "".
func NormalizeResultCode(raw json.RawMessage) string {
	s := scalar(raw)
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

func parseAmount(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f))
}
