package model

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transition may occur from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Provider identifies the rendering backend that owns a job.
type Provider string

const (
	ProviderSora    Provider = "sora"
	ProviderProcess Provider = "process"
)

// Signal types relayed from the authorization window
type SignalType string

const (
	SignalSuccess SignalType = "success"
	SignalError   SignalType = "error"
	SignalCode    SignalType = "code"
)

var ValidSignalTypes = []SignalType{SignalSuccess, SignalError, SignalCode}

// Upload paths
type UploadPath string

const (
	UploadViaPrimary   UploadPath = "primary"
	UploadViaAlternate UploadPath = "alternate"
)

// Render defaults
const (
	DefaultStyleID  = "cinematic"
	DefaultAudience = "general audience"
	VideoSeconds    = 10
)
