package model

import "errors"

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobTerminal   = errors.New("job already in terminal state")
	ErrJobNotReady   = errors.New("job has not succeeded")
	ErrEmptyInput    = errors.New("no narratable text")
	ErrNotConfigured = errors.New("not configured")

	ErrInvalidArtifact = errors.New("invalid artifact name")

	// ErrInvalidState is returned when an authorization state is unknown,
	// expired or already consumed.
	ErrInvalidState = errors.New("invalid or expired oauth state")

	// ErrReauthorizationRequired means the stored connection cannot be
	// refreshed without the user running the consent flow again.
	ErrReauthorizationRequired = errors.New("reauthorization required")
)
