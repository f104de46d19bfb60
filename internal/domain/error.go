package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidSlot     = errors.New("reminder time is not one of the offered slots")
	ErrSchedulerClosed = errors.New("scheduler is shut down")
	ErrQueueFull       = errors.New("worker queue full")
	ErrLockHeld        = errors.New("lock is held by another owner")
)
