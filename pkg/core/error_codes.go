package core

import "errors"

// ReasonCode is the exchange's machine-readable error reason.
type ReasonCode string

// Reason codes the exchange returns in the "reason" field of error bodies.
const (
	ReasonInvalidSignature     ReasonCode = "InvalidSignature"
	ReasonInvalidNonce         ReasonCode = "InvalidNonce"
	ReasonInvalidAPIKey        ReasonCode = "InvalidApiKey"
	ReasonMissingAPIKeyHeader  ReasonCode = "MissingApikeyHeader"
	ReasonMissingPayloadHeader ReasonCode = "MissingPayloadHeader"
	ReasonMissingSignature     ReasonCode = "MissingSignatureHeader"
	ReasonInvalidPayload       ReasonCode = "InvalidJson"
	ReasonRateLimit            ReasonCode = "RateLimit"
	ReasonInsufficientFunds    ReasonCode = "InsufficientFunds"
	ReasonInvalidQuantity      ReasonCode = "InvalidQuantity"
	ReasonInvalidPrice         ReasonCode = "InvalidPrice"
	ReasonInvalidSide          ReasonCode = "InvalidSide"
	ReasonInvalidSymbol        ReasonCode = "InvalidSymbol"
	ReasonOrderNotFound        ReasonCode = "OrderNotFound"
	ReasonEndpointNotFound     ReasonCode = "EndpointNotFound"
	ReasonMaintenance          ReasonCode = "Maintenance"
	ReasonSystem               ReasonCode = "System"
)

// ReasonType maps a reason code to its error category.
func ReasonType(reason string) ErrorType {
	switch ReasonCode(reason) {
	case ReasonInvalidSignature, ReasonInvalidNonce, ReasonInvalidAPIKey,
		ReasonMissingAPIKeyHeader, ReasonMissingPayloadHeader, ReasonMissingSignature:
		return ErrorTypeAuthentication
	case ReasonRateLimit:
		return ErrorTypeRateLimit
	case ReasonInsufficientFunds:
		return ErrorTypeInsufficientFunds
	case ReasonInvalidQuantity, ReasonInvalidPrice, ReasonInvalidSide:
		return ErrorTypeInvalidOrder
	case ReasonInvalidPayload, ReasonInvalidSymbol:
		return ErrorTypeBadRequest
	case ReasonOrderNotFound, ReasonEndpointNotFound:
		return ErrorTypeNotFound
	case ReasonMaintenance, ReasonSystem:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// IsReason checks if the error is an exchange error with the given reason code.
func IsReason(err error, reason ReasonCode) bool {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return ReasonCode(exErr.Reason) == reason
	}
	return false
}
