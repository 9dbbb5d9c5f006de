package authsess

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ============================================================================
// Failure Taxonomy
// ============================================================================

// Kind classifies a failure for programmatic handling and for picking a
// user-safe message.
type Kind string

const (
	// KindNetwork means no response reached the client at all.
	KindNetwork Kind = "network"

	// KindInvalidCredentials is a 401 on login.
	KindInvalidCredentials Kind = "invalid_credentials"

	// KindAccessDenied is any 403.
	KindAccessDenied Kind = "access_denied"

	// KindServerError is any 5xx.
	KindServerError Kind = "server_error"

	// KindInvalidToken is a 401 on renewal or tenant selection, distinct from
	// login's invalid-credentials.
	KindInvalidToken Kind = "invalid_token"

	// KindSelectionFailed is the fallback for tenant-selection failures.
	KindSelectionFailed Kind = "selection_failed"

	// KindSwitchFailed is the fallback for tenant-switch failures.
	KindSwitchFailed Kind = "switch_failed"

	// KindConfiguration is caller misuse detected at setup time.
	KindConfiguration Kind = "configuration_error"

	// KindUnknown is the generic fallback.
	KindUnknown Kind = "unknown"
)

// APIError is the uniform failure value every gateway call path resolves to.
// It never escapes as a panic; callers branch on Kind or errors.As.
type APIError struct {
	Kind Kind

	// Status is the HTTP status, 0 for network and configuration failures
	Status int

	// Code is the structured error code from the payload, if any
	Code string

	// Message is the server-provided human message, if any
	Message string

	// Raw is the unparsed response payload for diagnostics
	Raw []byte
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// canned user-safe messages per kind.
var cannedMessages = map[Kind]string{
	KindNetwork:            "Unable to reach the server. Check your connection and try again.",
	KindInvalidCredentials: "Incorrect email or password.",
	KindAccessDenied:       "You do not have permission to perform this action.",
	KindServerError:        "Something went wrong on our end. Please try again later.",
	KindInvalidToken:       "Your session has expired. Please sign in again.",
	KindSelectionFailed:    "Could not select the organisation. Please try again.",
	KindSwitchFailed:       "Could not switch organisation. Please try again.",
	KindConfiguration:      "The application is misconfigured. Contact support.",
	KindUnknown:            "Something went wrong. Please try again.",
}

// structured error codes some providers return alongside the status.
var codeMessages = map[string]string{
	"invalid_credentials": "Incorrect email or password.",
	"account_locked":      "This account is locked. Contact your administrator.",
	"email_not_verified":  "Please verify your email address before signing in.",
	"selection_expired":   "The sign-in attempt expired. Please sign in again.",
	"tenant_suspended":    "This organisation is suspended.",
}

// UserMessage returns a dismissible, user-safe message with fixed precedence:
// explicit payload message, then the structured code's canned message, then
// the kind's canned message, then the generic fallback.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if msg, ok := codeMessages[e.Code]; ok {
		return msg
	}
	if msg, ok := cannedMessages[e.Kind]; ok {
		return msg
	}
	return cannedMessages[KindUnknown]
}

// ============================================================================
// Classification
// ============================================================================

// operation distinguishes the flows whose status codes classify differently
// (a 401 on login is not a 401 on renewal).
type operation int

const (
	opGeneric operation = iota
	opLogin
	opRenew
	opSelect
	opSwitch
)

// errorBody is the provider's error payload shape.
type errorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// networkError wraps a transport-level failure where no response arrived.
func networkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: err.Error()}
}

// configError reports caller misuse loudly at setup time.
func configError(format string, args ...any) *APIError {
	return &APIError{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// classify maps a non-2xx response to an APIError using the fixed precedence
// order: status family first, then per-operation fallbacks.
func classify(op operation, status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Raw: body}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Code != "" {
			apiErr.Code = parsed.Code
		} else if parsed.Error != "" {
			apiErr.Code = parsed.Error
		}
		apiErr.Message = parsed.Message
	}

	switch {
	case status == http.StatusUnauthorized:
		if op == opLogin {
			apiErr.Kind = KindInvalidCredentials
		} else {
			apiErr.Kind = KindInvalidToken
		}
	case status == http.StatusForbidden:
		apiErr.Kind = KindAccessDenied
	case status >= 500:
		apiErr.Kind = KindServerError
	default:
		switch op {
		case opSelect:
			apiErr.Kind = KindSelectionFailed
		case opSwitch:
			apiErr.Kind = KindSwitchFailed
		default:
			apiErr.Kind = KindUnknown
		}
	}

	return apiErr
}
