package price

import "errors"

var (
	// ErrMissingRequiredSymbol is returned when a request names no base, from, coin or coinid.
	ErrMissingRequiredSymbol = errors.New("missing required symbol")
	// ErrInvalidRequest covers every other validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUpstreamUnavailable is returned when the provider could not be reached
	// and no cached data can stand in for it.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMalformedUpstreamResponse is returned when the provider answered with
	// something other than the aggregated price mapping.
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")
	// ErrValueNotFound is returned when a single-value request yields nothing.
	ErrValueNotFound = errors.New("value not found")
)

// IsRetryable reports whether the caller may retry the request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

// ErrorName returns the short name of the sentinel err wraps, or
// "InternalError" when it wraps none of them.
func ErrorName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingRequiredSymbol):
		return "MissingRequiredSymbol"
	case errors.Is(err, ErrInvalidRequest):
		return "InvalidRequest"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UpstreamUnavailable"
	case errors.Is(err, ErrMalformedUpstreamResponse):
		return "MalformedUpstreamResponse"
	case errors.Is(err, ErrValueNotFound):
		return "ValueNotFound"
	}
	return "InternalError"
}
