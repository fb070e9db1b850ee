package taxonomy

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/melonattacker/honeycluster/internal/model"
)

// eventCodes maps literal Cowrie event ids to taxonomy codes. It is never
// written after package initialization.
var eventCodes = map[string]model.Code{
	"cowrie.login.failed":         model.CodeLoginFailed,
	"cowrie.login.success":        model.CodeLoginSuccess,
	"cowrie.client.version":       model.CodeVersion,
	"cowrie.client.fingerprint":   model.CodeFingerprint,
	"cowrie.direct-tcpip.request": model.CodeTCPIPRequest,
	"cowrie.direct-tcpip.data":    model.CodeTCPIPData,
	"cowrie.command.input":        model.CodeInput,
	"cowrie.command.failed":       model.CodeCommandFailed,
	"cowrie.command.success":      model.CodeCommandSuccess,
}

// Classify resolves a Cowrie event id. Unknown ids are CodeIgnored.
func Classify(eventType string) model.Code {
	if c, ok := eventCodes[strings.TrimSpace(eventType)]; ok {
		return c
	}
	return model.CodeIgnored
}

// EventTypes returns the recognized Cowrie event ids.
func EventTypes() []string {
	out := make([]string, 0, len(eventCodes))
	for k := range eventCodes {
		out = append(out, k)
	}
	return out
}

var commandPrefixRe = regexp.MustCompile(`(?i)^(Command found:|CMD:|Command not found:)\s*`)

// Extract classifies a raw event and keeps only the payload fields relevant
// to its code. ok is false for ignored events.
func Extract(raw map[string]any) (ev model.Event, ok bool) {
	code := Classify(stringField(raw, "eventid"))
	if !code.Interesting() {
		return model.Event{}, false
	}
	ev = model.Event{Code: code, Timestamp: ParseTimestamp(stringField(raw, "timestamp"))}

	switch {
	case code.IsLogin():
		ev.Username = stringField(raw, "username")
		ev.Password = stringField(raw, "password")
	case code.IsCommand():
		ev.Command = CleanCommand(stringField(raw, "message"))
		if ev.Command == "" {
			ev.Command = strings.TrimSpace(stringField(raw, "input"))
		}
	case code == model.CodeVersion:
		ev.Version = stripBytesLiteral(stringField(raw, "version"))
	case code == model.CodeFingerprint:
		ev.Fingerprint = stringField(raw, "fingerprint")
		ev.KeyType = stringField(raw, "type")
	case code == model.CodeTCPIPRequest:
		host := stringField(raw, "dst_ip")
		if port := stringField(raw, "dst_port"); port != "" {
			host += ":" + port
		}
		ev.Destination = host
	case code == model.CodeTCPIPData:
		ev.Probe = DecodeProbe(stringField(raw, "data"))
	}
	return ev, true
}

// CleanCommand strips the Cowrie log prefixes from a command message.
func CleanCommand(msg string) string {
	return strings.TrimSpace(commandPrefixRe.ReplaceAllString(strings.TrimSpace(msg), ""))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts the timestamp shapes seen in Cowrie dumps. An empty
// or unparsable value yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// stripBytesLiteral removes a Python bytes repr wrapper: b'...'. The closing
// quote may already be gone when the payload was cut at a line break.
func stripBytesLiteral(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != 'b' && s[0] != 'B') || (s[1] != '\'' && s[1] != '"') {
		return s
	}
	q := s[1]
	s = s[2:]
	if n := len(s); n > 0 && s[n-1] == q {
		s = s[:n-1]
	}
	return s
}
