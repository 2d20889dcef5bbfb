package service

import "github.com/pkg/errors"

var (
	ErrExecutionLocked   = errors.New("execution locked for instrument/account")
	ErrNoAPICredentials  = errors.New("no api credentials for account")
	ErrShortNotSupported = errors.New("short entries are not supported on spot")
)

// Failure reasons persisted on trades and attached to notifications.
const (
	ReasonExecutionLocked   = "EXECUTION_LOCKED"
	ReasonNoAPICredentials  = "NO_API_CREDENTIALS"
	ReasonShortNotSupported = "SHORT_NOT_SUPPORTED"
	ReasonValidation        = "VALIDATION_FAILED"
	ReasonOcoPlacement      = "OCO_PLACEMENT_FAILED"
	ReasonOrphanedTrade     = "ORPHANED_TRADE"
)
