package hdr

// Common header names, canonical form.
const (
	Host             = "Host"
	Connection       = "Connection"
	ContentLength    = "Content-Length"
	ContentType      = "Content-Type"
	ContentEncoding  = "Content-Encoding"
	AcceptEncoding   = "Accept-Encoding"
	Upgrade          = "Upgrade"
	SecWebSocketKey  = "Sec-Websocket-Key"
	SecWebSocketAcc  = "Sec-Websocket-Accept"
	SecWebSocketVer  = "Sec-Websocket-Version"
	TransferEncoding = "Transfer-Encoding"
)

// CanonicalHeaderKey returns the canonical form of a header key: the
// first letter and any letter following a hyphen are upper case, the rest
// lower case ("content-length" -> "Content-Length").
func CanonicalHeaderKey(s string) string {
	if s == "" {
		return s
	}
	buf := []byte(s)
	upper := true
	for i, c := range buf {
		if upper && 'a' <= c && c <= 'z' {
			buf[i] = c - ('a' - 'A')
		} else if !upper && 'A' <= c && c <= 'Z' {
			buf[i] = c + ('a' - 'A')
		}
		upper = c == '-'
	}
	return string(buf)
}

// isTokenChar reports membership in RFC 7230's "token" character
// class, used for header field names.
func isTokenChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// ValidHeaderFieldName reports whether s is a legal HTTP header field
// name: one or more token characters.
func ValidHeaderFieldName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

// ValidHeaderFieldValue reports whether s is a legal header field value:
// no CR or LF (continuation lines are rejected outright), and no
// embedded NUL.
func ValidHeaderFieldValue(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\r', '\n', 0:
			return false
		}
	}
	return true
}

// TrimOWS trims optional leading/trailing whitespace (space, tab) from a
// header value, per RFC 7230 §3.2.
func TrimOWS(s string) string {
	start := 0
	for start < len(s) && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	end := len(s)
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
