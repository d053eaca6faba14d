package model

// WebSocket message types
const (
	WSMessageTypeProgress      = "progress"
	WSMessageTypeComplete      = "complete"
	WSMessageTypeError         = "error"
	WSMessageTypePing          = "ping"
	WSMessageTypePong          = "pong"
	WSMessageTypeOAuthRequired = "oauth_required"
	WSMessageTypeOAuthResolved = "oauth_resolved"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage reports a job transition
type WSProgressMessage struct {
	Type   string    `json:"type"`
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
	Step   string    `json:"step,omitempty"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
	Job   *Job   `json:"job"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSOAuthRequiredMessage asks the client to open the consent window
type WSOAuthRequiredMessage struct {
	Type             string `json:"type"`
	State            string `json:"state"`
	AuthorizationURL string `json:"authorizationUrl"`
}

// WSOAuthResolvedMessage reports how an authorization attempt ended
type WSOAuthResolvedMessage struct {
	Type       string      `json:"type"`
	Resolution *Resolution `json:"resolution"`
}
