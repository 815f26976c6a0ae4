package domain

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrNotFound          = NewErr("NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrPayloadTooLarge   = NewErr("PAYLOAD_TOO_LARGE", "encrypted content exceeds maximum size", http.StatusRequestEntityTooLarge)
	ErrCapacityExceeded  = NewErr("CAPACITY_EXCEEDED", "server storage is full, try again later", http.StatusInsufficientStorage)
	ErrIDCollision       = NewErr("CAPACITY_EXCEEDED", "could not allocate paste id, try again later", http.StatusInsufficientStorage)
	ErrInvalidRequest    = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrInvalidTTL        = NewErr("INVALID_TTL", "invalid ttl", http.StatusBadRequest)
	ErrUnsupportedMedia  = NewErr("UNSUPPORTED_MEDIA_TYPE", "expected Content-Type: application/json", http.StatusUnsupportedMediaType)
	ErrRateLimitExceeded = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrUnauthorized      = NewErr("UNAUTHORIZED", "invalid deletion token", http.StatusUnauthorized)
	ErrRequestTimeout    = NewErr("REQUEST_TIMEOUT", "request timed out", http.StatusRequestTimeout)
	ErrInternalServer    = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

// Err is a client-visible failure with a stable code and HTTP status.
type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }

func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// ErrResp is the JSON body of every failed request.
type ErrResp struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func ToResp(err error, requestID string) ErrResp {
	e, ok := asErr(err)
	if !ok {
		e = ErrInternalServer
	}
	return ErrResp{Error: e.Msg, Code: e.Code, RequestID: requestID}
}

func Status(err error) int {
	if e, ok := asErr(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}

func asErr(err error) (*Err, bool) {
	if e, ok := err.(*Err); ok {
		return e, true
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e, true
	}
	// A request that ran out of time is the caller's outcome, not a fault.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrRequestTimeout, true
	}
	return nil, false
}
