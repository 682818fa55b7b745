package apperrors

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnsafeQuery     = errors.New("query failed safety validation")
	ErrUnknownBackend  = errors.New("unknown backend kind")
	ErrHistoryDisabled = errors.New("query history store is not configured")
)
