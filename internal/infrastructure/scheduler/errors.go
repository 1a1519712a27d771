package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when a schedule cannot fire
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrAlreadyRunning is returned by Register after Start
	ErrAlreadyRunning = errors.New("scheduler already running")
)
