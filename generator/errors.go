package generator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed generation call.
type Kind string

const (
	KindCredential      Kind = "credential"
	KindQuota           Kind = "quota"
	KindSafety          Kind = "safety"
	KindInvalidArgument Kind = "invalid_argument"
	KindTransient       Kind = "transient"
)

// RemediationReenterCredential tells the front-end to prompt for a new key.
const RemediationReenterCredential = "reenter_credential"

// Error is a classified failure from the remote image service.
type Error struct {
	Kind   Kind
	Status int
	Detail string
	Err    error
}

// Error includes the detail and the wrapped cause.
func (e *Error) Error() string {
	msg := "generator: " + string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the transport or decode cause.
func (e *Error) Unwrap() error { return e.Err }

// Message is the user-facing text for the failure class.
func (e *Error) Message() string { return Message(e.Kind) }

// Remediation returns a follow-up action the user can take, if any.
func (e *Error) Remediation() string {
	if e.Kind == KindCredential {
		return RemediationReenterCredential
	}
	return ""
}

// Message returns one distinct user-facing sentence per failure class.
func Message(kind Kind) string {
	switch kind {
	case KindCredential:
		return "The image service rejected the API key. Enter a valid key and try again."
	case KindQuota:
		return "The image service quota is exhausted. Wait a moment before generating again."
	case KindSafety:
		return "The image service refused this sketch for safety reasons. Try a different drawing or description."
	case KindInvalidArgument:
		return "The request contained an unsupported parameter, such as an aspect ratio the service does not accept."
	default:
		return "The sketch could not be transformed right now. Please try again."
	}
}

// KindOf extracts the classification of err, defaulting to transient.
func KindOf(err error) Kind {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindTransient
}

// newError builds an *Error of kind.
func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// apiError mirrors the google.rpc.Status body returned on failures.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// classifyStatus maps a non-2xx response onto a Kind. The HTTP and RPC
// status decide first; message text is only consulted for 400 and for
// statuses that carry no meaning of their own.
func classifyStatus(status int, body apiError) Kind {
	rpcStatus := strings.ToUpper(body.Error.Status)
	for _, d := range body.Error.Details {
		if strings.EqualFold(d.Reason, "API_KEY_INVALID") {
			return KindCredential
		}
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		rpcStatus == "UNAUTHENTICATED", rpcStatus == "PERMISSION_DENIED":
		return KindCredential
	case status == http.StatusTooManyRequests, rpcStatus == "RESOURCE_EXHAUSTED":
		return KindQuota
	case status >= http.StatusInternalServerError:
		return KindTransient
	}

	message := strings.ToLower(body.Error.Message)
	switch {
	case strings.Contains(message, "api key"):
		return KindCredential
	case strings.Contains(message, "quota"):
		return KindQuota
	case strings.Contains(message, "safety"), strings.Contains(message, "blocked"):
		return KindSafety
	case status == http.StatusBadRequest, rpcStatus == "INVALID_ARGUMENT", rpcStatus == "FAILED_PRECONDITION":
		return KindInvalidArgument
	default:
		return KindTransient
	}
}

var safetyFinishReasons = map[string]struct{}{
	"SAFETY":             {},
	"IMAGE_SAFETY":       {},
	"PROHIBITED_CONTENT": {},
	"BLOCKLIST":          {},
	"SPII":               {},
	"RECITATION":         {},
}

// isSafetyFinish reports whether a candidate finish reason means the model
// refused on content grounds.
func isSafetyFinish(reason string) bool {
	_, ok := safetyFinishReasons[strings.ToUpper(strings.TrimSpace(reason))]
	return ok
}

// errorf builds an *Error of kind with a formatted detail.
func errorf(kind Kind, format string, args ...any) *Error {
	return newError(kind, fmt.Sprintf(format, args...), nil)
}
