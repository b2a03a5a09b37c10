package handlers

// Stable, machine-readable error codes carried in ErrorResponse.Code.
// Clients branch on these rather than on messages.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeLLMUnavailable     = "llm_unavailable"
	ErrCodeInternal           = "internal_error"
)
