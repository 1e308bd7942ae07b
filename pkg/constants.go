package shared

import "time"

const (
	DefaultBaseURL = "https://api.fitglue.app/v1" // Can be overridden by env var

	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollFailures = 12
	DefaultDaysBack        = 90
	DefaultSourceFanOut    = 4
	DefaultHTTPTimeout     = 30 * time.Second
)
