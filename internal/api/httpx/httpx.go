package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
)

const maxBody = 1 << 20

type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState, apperr.KindDuplicateEvent:
		return http.StatusConflict
	case apperr.KindValidation, apperr.KindMalformedCallback:
		return http.StatusBadRequest
	case apperr.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err in the error envelope. Internal errors are not
// echoed to the client.
func WriteAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := "internal error"
	var details interface{}
	var e *apperr.Error
	if kind != apperr.KindInternal && errors.As(err, &e) {
		msg = e.Msg
		if e.Err != nil && kind == apperr.KindValidation {
			details = e.Err
		}
	}
	WriteError(w, StatusOf(err), kind.String(), msg, details)
}

// DecodeJSON reads a JSON request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("decode", "invalid request body: %v", err)
	}
	return nil
}

// ReadBody reads a raw request body up to the size limit.
func ReadBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBody))
}

// Ack is the body the payment gateway expects in reply to a callback.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var (
	Accepted = Ack{ResultCode: 0, ResultDesc: "Accepted"}
	Rejected = Ack{ResultCode: 1, ResultDesc: "Rejected"}
)
