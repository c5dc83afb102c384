package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse abstracts all API error responses to the user.
//
// This interface does not implement `error`, since its only purpose
// is to be used for API responses and not for logging circumstances.
//
// In general, the whole ErrorResponse can be sent for serialization.
type ErrorResponse interface {
	// Code is the HTTP status code to be returned.
	Code() int
}

type APIError struct {
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (a *APIError) Code() int {
	return a.Status
}

type StructuredError struct {
	Errors map[string][]string `json:"errors"`
	Status int                 `json:"-"`
}

func (s *StructuredError) Code() int {
	return s.Status
}

func (s *StructuredError) Add(field, problem string) {
	s.Errors[field] = append(s.Errors[field], problem)
}

var (
	MalformedJSONError   = NewSimple(400, "Malformed JSON body")
	InternalServerError  = NewSimple(500, "Internal server error")
	TooManyRequestsError = NewSimple(429, "Too many requests, slow down")

	/*
	 * Used for sessions
	 */
	UnauthorizedError     = NewSimple(401, "Unauthorized")
	InvalidAuthTokenError = NewSimple(401, "Invalid or expired session token")
	UnknownSessionError   = NewSimple(401, "Session does not belong to any waitlist member")

	/*
	 * Used for the waitlist and referrals
	 */
	EmailTakenError           = NewSimple(409, "Email is already on the waitlist")
	InvalidReferralCodeError  = NewSimple(400, "Referral code does not exist")
	ReferralCodeNotFoundError = NewSimple(404, "Referral code not found")
	SelfReferralError         = NewSimple(400, "You cannot use your own referral code")
	ReferralExistsError       = NewSimple(409, "This signup was already credited to a referrer")
	ReferrerJoinedLaterError  = NewSimple(400, "You joined before the owner of this referral code")
	ClaimWindowClosedError    = NewSimple(403, "Referral codes can only be claimed shortly after joining")

	/*
	 * Used for event streams
	 */
	StreamingUnsupportedError = NewSimple(500, "Streaming is not supported by this connection")
	StreamUnavailableError    = NewSimple(503, "Live updates are unavailable, the server is shutting down")
)

func FromValidationError(err error) *StructuredError {
	out := &StructuredError{
		Errors: make(map[string][]string),
		Status: http.StatusBadRequest,
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		out.Add("request", "Invalid request")
		return out
	}

	for _, fe := range ve {
		field := strings.ToLower(fe.Field())

		switch fe.Tag() {
		case "required":
			out.Add(field, "This field is required")
		case "min":
			out.Add(field, "Value is too short, min: "+fe.Param())
		case "max":
			out.Add(field, "Value is too long, max: "+fe.Param())
		case "refcode":
			out.Add(field, "Value is not a valid referral code")
		case "email":
			out.Add(field, "Value must be a valid email address")
		case "noctrl":
			out.Add(field, "Value contains control characters")

		default:
			out.Add(field, "Invalid value provided")
		}
	}
	return out
}

func NewSimple(status int, msg string, args ...any) *APIError {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &APIError{Status: status, Message: msg}
}
