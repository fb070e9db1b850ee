package model

import "time"

// Event is one classified interaction record. Only the payload fields that
// belong to Code are populated.
type Event struct {
	Code      Code      `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	// Command is the cleaned command text for command codes.
	Command string `json:"command,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Version is the SSH client banner for CodeVersion.
	Version string `json:"version,omitempty"`

	Fingerprint string `json:"fingerprint,omitempty"`
	KeyType     string `json:"key_type,omitempty"`

	// Destination is host:port for CodeTCPIPRequest.
	Destination string `json:"destination,omitempty"`
	// Probe is the decoded tunnel payload label for CodeTCPIPData.
	Probe string `json:"probe,omitempty"`
}

// Session is the ordered, time-bounded list of interesting events sharing a
// session identifier within one log file.
type Session struct {
	ID      string    `json:"session_id"`
	Source  string    `json:"source"`
	LogDate string    `json:"log_date,omitempty"`
	Start   time.Time `json:"session_start"`
	End     time.Time `json:"session_end"`
	Events  []Event   `json:"events"`
}

// Credentials renders the login pair used for similarity comparisons.
func (e Event) Credentials() string {
	return e.Username + ":" + e.Password
}
