package analyses

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidTicker = errors.New("invalid ticker")
	ErrFinalized     = errors.New("analysis already finalized")
)

const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeProvider          = "PROVIDER_ERROR"
	ErrorCodeLLMTimeout        = "LLM_TIMEOUT"
	ErrorCodeLLMSchemaMismatch = "LLM_SCHEMA_MISMATCH"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
