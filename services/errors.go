package services

import "errors"

var (
	// ErrUserNotFound is returned when the target user row does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidAmount is returned for credit/debit amounts that are not positive.
	ErrInvalidAmount = errors.New("points must be a positive integer")
	// ErrInvalidSourceType is returned for source types outside models.SourceTypes.
	ErrInvalidSourceType = errors.New("unknown reputation source type")
	// ErrInvalidProfile wraps every profile validation failure.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Messages carried by unsuccessful results. They are outcomes, not errors.
const (
	MsgAlreadyCheckedIn    = "already checked in today"
	MsgInsufficientBalance = "insufficient balance"
)

// errInsufficientBalance only travels inside a transaction to force its rollback.
var errInsufficientBalance = errors.New(MsgInsufficientBalance)
