package model

import "fmt"

// Code is the taxonomy tag of a classified honeypot event. The numeric values
// are part of the cleaned intermediate format and must not be renumbered.
type Code int

const (
	CodeIgnored        Code = 0
	CodeLoginFailed    Code = 1
	CodeLoginSuccess   Code = 2
	CodeVersion        Code = 3
	CodeFingerprint    Code = 4
	CodeTCPIPRequest   Code = 5
	CodeInput          Code = -1
	CodeCommandFailed  Code = -2
	CodeCommandSuccess Code = -3
	CodeTCPIPData      Code = -4
)

var codeNames = map[Code]string{
	CodeIgnored:        "IGNORED",
	CodeLoginFailed:    "LOGIN_FAILED",
	CodeLoginSuccess:   "LOGIN_SUCCESS",
	CodeVersion:        "VERSION",
	CodeFingerprint:    "FINGERPRINT",
	CodeTCPIPRequest:   "TCPIP_REQUEST",
	CodeInput:          "INPUT",
	CodeCommandFailed:  "COMMAND_FAILED",
	CodeCommandSuccess: "COMMAND_SUCCESS",
	CodeTCPIPData:      "TCPIP_DATA",
}

// Codes lists every taxonomy code in a stable order.
func Codes() []Code {
	return []Code{
		CodeLoginFailed, CodeLoginSuccess, CodeVersion, CodeFingerprint, CodeTCPIPRequest,
		CodeInput, CodeCommandFailed, CodeCommandSuccess, CodeTCPIPData, CodeIgnored,
	}
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Valid reports whether c is one of the closed set of taxonomy codes.
func (c Code) Valid() bool {
	_, ok := codeNames[c]
	return ok
}

// Interesting reports whether events with this code enter a session.
func (c Code) Interesting() bool { return c != CodeIgnored && c.Valid() }

func (c Code) IsLogin() bool { return c == CodeLoginFailed || c == CodeLoginSuccess }

// IsCommand is true for the shell command codes. Tunnel data is excluded even
// though it shares the negative range.
func (c Code) IsCommand() bool {
	return c == CodeInput || c == CodeCommandFailed || c == CodeCommandSuccess
}

func (c Code) IsTunnel() bool { return c == CodeTCPIPRequest || c == CodeTCPIPData }

// Failed is true for attempt codes that record a failure.
func (c Code) Failed() bool { return c == CodeLoginFailed || c == CodeCommandFailed }
