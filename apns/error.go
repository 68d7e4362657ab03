package apns

import (
	"fmt"
	"strings"
)

// ErrorResponseCode shows error message of responses from apns
type ErrorResponseCode int

// https://developer.apple.com/documentation/usernotifications/handling-notification-responses-from-apns
// ErrorMessage const
const (
	PayloadEmpty ErrorResponseCode = iota
	PayloadTooLarge
	BadTopic
	TopicDisallowed
	BadExpirationDate
	BadPriority
	MissingDeviceToken
	BadDeviceToken
	DeviceTokenNotForTopic
	Unregistered
	DuplicateHeaders
	BadCertificateEnvironment
	BadCertificate
	Forbidden
	BadPath
	MethodNotAllowed
	TooManyRequests
	IdleTimeout
	Shutdown
	InternalServerError
	ServiceUnavailable
	MissingTopic
	BadCollapseId
	BadMessageId
	ExpiredProviderToken
	InvalidProviderToken
	MissingProviderToken
	TooManyProviderTokenUpdates
	InvalidPushType
	ExpiredToken
)

var errorResponseCodeNames = [...]string{
	"PayloadEmpty",
	"PayloadTooLarge",
	"BadTopic",
	"TopicDisallowed",
	"BadExpirationDate",
	"BadPriority",
	"MissingDeviceToken",
	"BadDeviceToken",
	"DeviceTokenNotForTopic",
	"Unregistered",
	"DuplicateHeaders",
	"BadCertificateEnvironment",
	"BadCertificate",
	"Forbidden",
	"BadPath",
	"MethodNotAllowed",
	"TooManyRequests",
	"IdleTimeout",
	"Shutdown",
	"InternalServerError",
	"ServiceUnavailable",
	"MissingTopic",
	"BadCollapseId",
	"BadMessageId",
	"ExpiredProviderToken",
	"InvalidProviderToken",
	"MissingProviderToken",
	"TooManyProviderTokenUpdates",
	"InvalidPushType",
	"ExpiredToken",
}

var errorResponseCodeDescriptions = map[ErrorResponseCode]string{
	PayloadEmpty:                "the message payload is empty",
	PayloadTooLarge:             "the message payload is too large",
	BadTopic:                    "the apns-topic header is invalid",
	TopicDisallowed:             "pushing to this topic is not allowed",
	BadExpirationDate:           "the apns-expiration value is invalid",
	BadPriority:                 "the apns-priority value is invalid",
	MissingDeviceToken:          "the device token is not specified in the request path",
	BadDeviceToken:              "the device token is invalid or belongs to the other environment",
	DeviceTokenNotForTopic:      "the device token does not match the topic (bundle id)",
	Unregistered:                "the device token is inactive for the topic",
	DuplicateHeaders:            "one or more headers are repeated",
	BadCertificateEnvironment:   "the client certificate is for the wrong environment",
	BadCertificate:              "the certificate is invalid",
	Forbidden:                   "the specified action is not allowed",
	BadPath:                     "the request path is invalid",
	MethodNotAllowed:            "the request method is not POST",
	TooManyRequests:             "too many requests were made consecutively to the same device token",
	IdleTimeout:                 "idle timeout",
	Shutdown:                    "the server is shutting down",
	InternalServerError:         "an internal server error occurred",
	ServiceUnavailable:          "the service is unavailable",
	MissingTopic:                "the apns-topic header is missing",
	BadCollapseId:               "the apns-collapse-id header is too long",
	BadMessageId:                "the apns-id header is invalid",
	ExpiredProviderToken:        "the provider token is stale; generate a new one",
	InvalidProviderToken:        "the provider token is not valid or the signature could not be verified; check key id and team id",
	MissingProviderToken:        "no provider certificate or provider token was supplied",
	TooManyProviderTokenUpdates: "the provider token is being updated too often",
	InvalidPushType:             "the apns-push-type value is invalid",
	ExpiredToken:                "the device token has expired",
}

func (c ErrorResponseCode) String() string {
	if c < 0 || int(c) >= len(errorResponseCodeNames) {
		return fmt.Sprintf("ErrorResponseCode(%d)", int(c))
	}
	return errorResponseCodeNames[c]
}

// Description returns a short human readable explanation of the reason.
func (c ErrorResponseCode) Description() string {
	return errorResponseCodeDescriptions[c]
}

// ParseErrorResponseCode looks up the code for a reason string returned by APNs.
func ParseErrorResponseCode(reason string) (ErrorResponseCode, bool) {
	for i, name := range errorResponseCodeNames {
		if name == reason {
			return ErrorResponseCode(i), true
		}
	}
	return 0, false
}

// Describe returns the description of a reason string, or "" when unknown.
func Describe(reason string) string {
	if c, ok := ParseErrorResponseCode(reason); ok {
		return c.Description()
	}
	return ""
}

// SigningError is returned when a provider token cannot be produced.
type SigningError struct {
	Reason string
}

func (e *SigningError) Error() string {
	return "signing failed: " + e.Reason
}

// InvalidRequestError is returned when a request cannot be built. No network call is made.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// TransportError is a failure before any HTTP response was obtained.
type TransportError struct {
	Err      error
	Canceled bool
}

func (e *TransportError) Error() string {
	if e.Canceled {
		return "canceled: " + e.Err.Error()
	}
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectedError is a well-formed APNs response outside of 2xx.
type RejectedError struct {
	StatusCode int
	Reason     string
	APNsID     string
	Body       string
}

func (e *RejectedError) Error() string {
	parts := []string{fmt.Sprintf("apns returned status %d", e.StatusCode)}
	if e.Reason != "" {
		parts = append(parts, "reason: "+e.Reason)
	}
	if e.APNsID != "" {
		parts = append(parts, "apns-id: "+e.APNsID)
	}
	if e.Body != "" {
		parts = append(parts, "body: "+e.Body)
	}
	return strings.Join(parts, ", ")
}
