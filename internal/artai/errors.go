package artai

import (
	"errors"
	"net/http"

	platformerrors "github.com/jmgilman/go/errors"
)

// Kind classifies a failed API call.
type Kind int

const (
	// KindNetwork means the request never reached the server or no response came back.
	KindNetwork Kind = iota + 1
	// KindAuthRejected means the server refused the bearer token.
	KindAuthRejected
	// KindValidation is any other 4xx, carrying the server's message verbatim.
	KindValidation
	// KindServer is a 5xx.
	KindServer
	// KindDecode means the body could not be read as the declared content type.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network failure"
	case KindAuthRejected:
		return "auth rejected"
	case KindValidation:
		return "validation failure"
	case KindServer:
		return "server failure"
	case KindDecode:
		return "decode failure"
	default:
		return "unknown"
	}
}

// DefaultErrorMessage is used when neither the body nor the status line
// carries a message.
const DefaultErrorMessage = "Request error"

// ErrNotAuthenticated is returned by operations that need a session when
// there is none.
var ErrNotAuthenticated = errors.New("not logged in")

// Error is the typed failure of a resource call. Message is always
// human-readable; callers should not need Status for common handling.
type Error struct {
	Kind    Kind
	Op      string // e.g. "GET /images"
	Status  int    // 0 for network and decode failures before a status was read
	Message string
	cause   error
}

// NewError builds an Error whose cause is a platform error carrying the code
// matching kind and status, so retry classification works on the chain.
func NewError(kind Kind, op string, status int, message string, cause error) *Error {
	if message == "" {
		message = DefaultErrorMessage
	}
	code := platformCode(kind, status)
	var perr platformerrors.PlatformError
	if cause != nil {
		perr = platformerrors.Wrap(cause, code, message)
	} else {
		perr = platformerrors.New(code, message)
	}
	return &Error{Kind: kind, Op: op, Status: status, Message: message, cause: perr}
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// Code returns the platform error code of the failure.
func (e *Error) Code() platformerrors.ErrorCode {
	return platformerrors.GetCode(e.cause)
}

func platformCode(kind Kind, status int) platformerrors.ErrorCode {
	switch kind {
	case KindNetwork:
		return platformerrors.CodeNetwork
	case KindAuthRejected:
		return platformerrors.CodeUnauthorized
	case KindServer:
		return platformerrors.CodeUnavailable
	case KindDecode:
		return platformerrors.CodeInternal
	}
	switch status {
	case http.StatusNotFound:
		return platformerrors.CodeNotFound
	case http.StatusForbidden:
		return platformerrors.CodeForbidden
	case http.StatusConflict:
		return platformerrors.CodeConflict
	case http.StatusTooManyRequests:
		return platformerrors.CodeRateLimit
	default:
		return platformerrors.CodeInvalidInput
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsAuthRejected reports whether err means the server refused the token.
func IsAuthRejected(err error) bool {
	return KindOf(err) == KindAuthRejected
}

// IsRetryable reports whether retrying the call might succeed: network
// failures, 5xx and rate limiting.
func IsRetryable(err error) bool {
	return platformerrors.IsRetryable(err)
}
