package backlog

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("backlog: no store configured")
	ErrMigrationFailed = errors.New("backlog: migration failed")

	// Not found errors.
	ErrJobNotFound  = errors.New("backlog: job not found")
	ErrUnknownType  = errors.New("backlog: no factory registered for job type")
	ErrNotRunning   = errors.New("backlog: job is not running")
	ErrInvalidInput = errors.New("backlog: invalid job options")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("backlog: job already exists")

	// Resolution errors.
	ErrJobFailed           = errors.New("backlog: job reported failure")
	ErrMaxAttemptsExceeded = errors.New("backlog: max attempts exceeded")
	ErrLifespanExpired     = errors.New("backlog: lifespan expired")
	ErrParentFailed        = errors.New("backlog: dependency failed")
	ErrCanceled            = errors.New("backlog: job canceled")
)
