package shared

import "fmt"

var (
	// Catalog and cache errors
	ErrRemoteUnavailable = fmt.Errorf("remote catalog unavailable")
	ErrNotFound          = fmt.Errorf("not found")
	ErrUnplayable        = fmt.Errorf("item is not playable")
	ErrUnsupportedKind   = fmt.Errorf("unsupported item kind")
	ErrFetchFailed       = fmt.Errorf("asset fetch failed")
	ErrTimeout           = fmt.Errorf("operation timed out")

	// Resolution errors
	ErrAmbiguousPosition = fmt.Errorf("start position is ambiguous")
	ErrNoParent          = fmt.Errorf("item has no parent context")

	// Download errors
	ErrInvalidRequest = fmt.Errorf("invalid download request")
	ErrQueueFull      = fmt.Errorf("download queue is full")
	ErrClosed         = fmt.Errorf("download manager closed")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
