package callback

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
)

func TestNormalizeResultCode(t *testing.T) {
	cases := map[string]string{
		`0`:       "0",
		`"0"`:     "0",
		`" 0 "`:   "0",
		`0.0`:     "0",
		`1032`:    "1032",
		`"1032"`:  "1032",
		`null`:    "",
		``:        "",
		`"SFC_1"`: "SFC_1",
	}
	for in, want := range cases {
		if got := NormalizeResultCode(json.RawMessage(in)); got != want {
			t.Errorf("NormalizeResultCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSTKShapes(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantID      string
		wantCode    string
		wantReceipt string
		wantAmount  int64
	}{
		{
			name: "wrapped in Body",
			payload: `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok",
				"CallbackMetadata":{"Item":[{"Name":"Amount","Value":100.00},{"Name":"MpesaReceiptNumber","Value":"QKX1"},{"Name":"PhoneNumber","Value":254712345678}]}}}}`,
			wantID: "ws_CO_1", wantCode: "0", wantReceipt: "QKX1", wantAmount: 100,
		},
		{
			name:    "stkCallback at top level with string code",
			payload: `{"stkCallback":{"CheckoutRequestID":"ws_CO_2","ResultCode":"1032","ResultDesc":"Request cancelled by user"}}`,
			wantID:  "ws_CO_2", wantCode: "1032",
		},
		{
			name:    "flat with top-level receipt",
			payload: `{"CheckoutRequestID":"ws_CO_3","ResultCode":"0","MpesaReceiptNumber":"QKX3"}`,
			wantID:  "ws_CO_3", wantCode: "0", wantReceipt: "QKX3",
		},
		{
			name:    "lower camel keys",
			payload: `{"body":{"stkCallback":{"checkoutRequestID":"ws_CO_4","resultCode":0,"callbackMetadata":{"item":{"name":"MpesaReceiptNumber","value":"QKX4"}}}}}`,
			wantID:  "ws_CO_4", wantCode: "0", wantReceipt: "QKX4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseSTK([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.CorrelationID != tt.wantID || ev.ResultCode != tt.wantCode || ev.Receipt != tt.wantReceipt || ev.Amount != tt.wantAmount {
				t.Fatalf("got %+v", ev)
			}
			if ev.Success() != (tt.wantCode == "0") {
				t.Fatalf("Success() = %v", ev.Success())
			}
		})
	}
}

func TestParseSTKMalformed(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{}`,
		`{"Body":{"stkCallback":{"ResultCode":0}}}`,
		`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_9"}}}`,
	} {
		if _, err := ParseSTK([]byte(payload)); !errors.Is(err, apperr.ErrMalformedCallback) {
			t.Errorf("ParseSTK(%s) err = %v, want malformed", payload, err)
		}
	}
}

func TestParseB2CResult(t *testing.T) {
	payload := `{"Result":{"ResultType":0,"ResultCode":0,"ResultDesc":"The service request is processed successfully.",
		"OriginatorConversationID":"10571-7910404-1","ConversationID":"AG_20191219_00004e48cf7e3533f581",
		"TransactionID":"NLJ41HAY6Q",
		"ResultParameters":{"ResultParameter":[{"Key":"TransactionAmount","Value":10},{"Key":"TransactionReceipt","Value":"NLJ41HAY6Q"}]}}}`
	ev, err := ParseB2CResult([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	if ev.CorrelationID != "AG_20191219_00004e48cf7e3533f581" || ev.AltCorrelationID != "10571-7910404-1" {
		t.Fatalf("ids: %+v", ev)
	}
	if !ev.Success() || ev.Receipt != "NLJ41HAY6Q" || ev.Amount != 10 {
		t.Fatalf("got %+v", ev)
	}
}

func TestParseB2CResultFallsBackToTransactionID(t *testing.T) {
	ev, err := ParseB2CResult([]byte(`{"Result":{"ResultCode":"0","ConversationID":"AG_1","TransactionID":"RCT123"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Receipt != "RCT123" {
		t.Fatalf("receipt = %q", ev.Receipt)
	}
}

func TestParseB2CResultMissingID(t *testing.T) {
	_, err := ParseB2CResult([]byte(`{"Result":{"ResultCode":0}}`))
	if !errors.Is(err, apperr.ErrMalformedCallback) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseB2CTimeoutShapes(t *testing.T) {
	for name, payload := range map[string]string{
		"wrapped":         `{"Result":{"ConversationID":"AG_7"}}`,
		"flat":            `{"ConversationID":"AG_7"}`,
		"originator only": `{"OriginatorConversationID":"AG_7"}`,
	} {
		t.Run(name, func(t *testing.T) {
			ev, err := ParseB2CTimeout([]byte(payload))
			if err != nil {
				t.Fatal(err)
			}
			if ids := ev.IDs(); len(ids) != 1 || ids[0] != "AG_7" {
				t.Fatalf("ids = %v", ids)
			}
		})
	}
}
