package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrUnknownTicker      = errors.New("unknown ticker")
	ErrEmptyScenario      = errors.New("scenario text is blank")
	ErrAgentFault         = errors.New("agent decision fault")
	ErrInvariantViolation = errors.New("engine invariant violation")
	ErrTimeout            = errors.New("deadline exceeded")
	ErrRunFinished        = errors.New("run already finished")
	ErrDuplicateTick      = errors.New("duplicate tick timestamp")
)
