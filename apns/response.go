package apns

import (
	"encoding/json"
	"errors"
)

// FailureKind classifies a failed attempt.
type FailureKind string

// Failure kinds
const (
	KindSigning        FailureKind = "signing"
	KindInvalidRequest FailureKind = "invalid_request"
	KindTransport      FailureKind = "transport"
	KindCanceled       FailureKind = "canceled"
	KindRejected       FailureKind = "rejected"
)

// Outcome is the result of one attempt. Exactly one of Success and Failure is set.
type Outcome struct {
	Success *Success `json:"success,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Success is a push accepted by APNs.
type Success struct {
	StatusCode int    `json:"status"`
	APNsID     string `json:"apns-id,omitempty"`
	Body       string `json:"body"`
}

// Failure is any attempt that was not accepted. StatusCode is 0 when no
// HTTP response was received.
type Failure struct {
	Kind           FailureKind `json:"kind"`
	StatusCode     int         `json:"status,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	APNsID         string      `json:"apns-id,omitempty"`
	Body           string      `json:"body,omitempty"`
	TransportError string      `json:"transport_error,omitempty"`

	err error
}

// ErrorResponse is the body APNs sends with a non 2xx status.
type ErrorResponse struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Succeeded reports whether APNs accepted the push.
func (o Outcome) Succeeded() bool {
	return o.Success != nil
}

// Canceled reports whether the caller abandoned the attempt.
func (o Outcome) Canceled() bool {
	return o.Failure != nil && o.Failure.Kind == KindCanceled
}

// StatusCode returns the HTTP status, or 0 when no response was received.
func (o Outcome) StatusCode() int {
	switch {
	case o.Success != nil:
		return o.Success.StatusCode
	case o.Failure != nil:
		return o.Failure.StatusCode
	}
	return 0
}

// APNsID returns the apns-id response header, if any.
func (o Outcome) APNsID() string {
	switch {
	case o.Success != nil:
		return o.Success.APNsID
	case o.Failure != nil:
		return o.Failure.APNsID
	}
	return ""
}

// Body returns the response body text.
func (o Outcome) Body() string {
	switch {
	case o.Success != nil:
		return o.Success.Body
	case o.Failure != nil:
		return o.Failure.Body
	}
	return ""
}

// Err returns nil on success, otherwise the failure. Use errors.As to reach
// *SigningError, *InvalidRequestError, *TransportError or *RejectedError.
func (o Outcome) Err() error {
	if o.Success != nil {
		return nil
	}
	if o.Failure == nil {
		return errors.New("empty outcome")
	}
	return o.Failure
}

func (f *Failure) Error() string {
	if err := f.Unwrap(); err != nil {
		return err.Error()
	}
	return string(f.Kind)
}

// Unwrap returns the typed error of the failure. Failures decoded from JSON
// rebuild it from their fields.
func (f *Failure) Unwrap() error {
	if f.err != nil {
		return f.err
	}
	switch f.Kind {
	case KindSigning:
		return &SigningError{Reason: f.TransportError}
	case KindInvalidRequest:
		return &InvalidRequestError{Reason: f.TransportError}
	case KindTransport, KindCanceled:
		return &TransportError{Err: errors.New(f.TransportError), Canceled: f.Kind == KindCanceled}
	case KindRejected:
		return &RejectedError{StatusCode: f.StatusCode, Reason: f.Reason, APNsID: f.APNsID, Body: f.Body}
	}
	return nil
}

func newFailure(err error) Outcome {
	f := &Failure{err: err}
	var (
		se *SigningError
		ie *InvalidRequestError
		te *TransportError
		re *RejectedError
	)
	switch {
	case errors.As(err, &se):
		f.Kind = KindSigning
		f.TransportError = se.Reason
	case errors.As(err, &ie):
		f.Kind = KindInvalidRequest
		f.TransportError = ie.Reason
	case errors.As(err, &re):
		f.Kind = KindRejected
		f.StatusCode = re.StatusCode
		f.Reason = re.Reason
		f.APNsID = re.APNsID
		f.Body = re.Body
	case errors.As(err, &te):
		f.Kind = KindTransport
		if te.Canceled {
			f.Kind = KindCanceled
		}
		f.TransportError = te.Err.Error()
	default:
		f.Kind = KindTransport
		f.TransportError = err.Error()
	}
	return Outcome{Failure: f}
}

// decodeErrorReason extracts the reason of an APNs error body, or "".
func decodeErrorReason(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var er struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &er); err != nil {
		return ""
	}
	return er.Reason
}
