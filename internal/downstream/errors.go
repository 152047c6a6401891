package downstream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownService is returned for a service name missing from the registry.
	ErrUnknownService = errors.New("unknown downstream service")
	// ErrInvalidBody is returned when a 2xx response does not carry a usable JSON body.
	ErrInvalidBody = errors.New("invalid response body")
)

// StatusError reports a non-2xx answer.
type StatusError struct {
	Service string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded with status %d", e.Service, e.Code)
}
