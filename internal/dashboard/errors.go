package dashboard

import "errors"

var (
	// ErrAuthenticationMissing is returned when a per-user dashboard is requested without a caller id.
	ErrAuthenticationMissing = errors.New("authentication required")
	// ErrAggregationFailure wraps unexpected failures of the aggregation itself.
	ErrAggregationFailure = errors.New("dashboard aggregation failed")
	// ErrCacheClearFailure wraps cache flush failures.
	ErrCacheClearFailure = errors.New("dashboard cache clear failed")
	// ErrUnknownRole is returned for a role missing from the table.
	ErrUnknownRole = errors.New("unknown dashboard role")
)
