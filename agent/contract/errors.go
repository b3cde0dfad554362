package contract

import "errors"

var (
	ErrValidation            = errors.New("validation failed")
	ErrModelInvoke           = errors.New("model invoke failed")
	ErrSchemaViolation       = errors.New("model response violates schema")
	ErrGenerationFailed      = errors.New("prompt generation failed")
	ErrPromptNotFound        = errors.New("cached prompt not found")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrContextLoadCritical   = errors.New("critical context load failed")
	ErrContextLoadDegraded   = errors.New("non-critical context load failed")
	ErrToolExecution         = errors.New("tool execution failed")
)
