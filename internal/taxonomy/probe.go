package taxonomy

import "strings"

const ProbeUnknown = "UNKNOWN_PROBE"

type tlsMagic struct {
	prefix string
	label  string
}

// TLS record headers: content type 0x16 (handshake) followed by the version.
// Each appears both as escaped text, as Cowrie logs it, and as raw bytes.
var tlsMagics = []tlsMagic{
	{`\x16\x03\x00`, "TLS_v3_RECORD"},
	{`\x16\x03\x01`, "TLS_1.0"},
	{`\x16\x03\x02`, "TLS_1.1"},
	{`\x16\x03\x03`, "TLS_1.2"},
	{"\x16\x03\x00", "TLS_v3_RECORD"},
	{"\x16\x03\x01", "TLS_1.0"},
	{"\x16\x03\x02", "TLS_1.1"},
	{"\x16\x03\x03", "TLS_1.2"},
}

var httpVerbs = []string{"GET", "POST", "HEAD", "PUT", "CONNECT", "OPTIONS", "PATCH"}

// ProbeLabels lists every label DecodeProbe can return.
func ProbeLabels() []string {
	out := []string{"TLS_v3_RECORD", "TLS_1.0", "TLS_1.1", "TLS_1.2"}
	for _, v := range httpVerbs {
		out = append(out, "HTTP_"+v)
	}
	return append(out, ProbeUnknown)
}

// IsProbeLabel reports whether s is a canonical tunnel label.
func IsProbeLabel(s string) bool {
	for _, l := range ProbeLabels() {
		if s == l {
			return true
		}
	}
	return false
}

// DecodeProbe reduces a raw direct-tcpip payload to a canonical label such as
// TLS_1.2 or HTTP_GET. Anything unrecognized is UNKNOWN_PROBE.
func DecodeProbe(data string) string {
	s := strings.Trim(strings.TrimSpace(data), `"`)
	s = strings.ReplaceAll(s, `\r\n`, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = stripBytesLiteral(s)
	s = strings.Trim(s, "'")
	if s == "" {
		return ProbeUnknown
	}

	for _, m := range tlsMagics {
		if strings.HasPrefix(s, m.prefix) {
			return m.label
		}
	}
	for _, v := range httpVerbs {
		if strings.HasPrefix(s, v+" ") {
			return "HTTP_" + v
		}
	}
	return ProbeUnknown
}
