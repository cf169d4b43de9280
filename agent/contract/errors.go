package contract

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrConfigIncomplete = errors.New("configuration incomplete")
	ErrDispatchActive   = errors.New("dispatch already active")
	ErrProvisioning     = errors.New("agent provisioning failed")
	ErrSchemaViolation  = errors.New("model response violates schema")
)
