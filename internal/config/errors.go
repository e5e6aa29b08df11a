package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrEmptyPattern is returned when html.pattern is empty.
	ErrEmptyPattern = errors.New("invalid html.pattern: must not be empty")

	// ErrNoTags is returned when html.tags has no entries.
	ErrNoTags = errors.New("invalid html.tags: at least one tag is required")

	// ErrInvalidTags is returned when a tag name is empty or has no attributes.
	ErrInvalidTags = errors.New("invalid html.tags: every tag needs a name and at least one attribute")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidParallelism is returned when parallelism is not positive.
	ErrInvalidParallelism = errors.New("invalid parallelism: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidTorStartupTimeout is returned when the embedded Tor daemon is
	// enabled with a non-positive startup timeout.
	ErrInvalidTorStartupTimeout = errors.New("invalid tor.startupTimeout: must be positive")
)
