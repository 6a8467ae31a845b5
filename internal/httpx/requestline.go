package httpx

import (
	"fmt"
	"strconv"
	"strings"
)

// requestLine models the first line of an HTTP/1.x request: "METHOD SP
// Request-URI SP HTTP/x.y". Adapted from the teacher's request.go, trimmed
// to just the line-parsing helper the parser's start-line state needs.
type requestLine struct {
	Method     string
	Target     string
	Proto      string
	ProtoMajor int
	ProtoMinor int
}

// parseRequestLine parses line per RFC 7230 §3.1.1, tolerating repeated
// internal whitespace between fields the way the teacher's implementation
// did, while still rejecting anything that isn't exactly three fields and
// any method outside the standard HTTP/1.1 set.
func parseRequestLine(line string) (requestLine, error) {
	var rl requestLine

	parts := strings.Fields(line)
	if len(parts) != 3 {
		return rl, fmt.Errorf("httpx: malformed request line: %q", line)
	}

	method, target, proto := parts[0], parts[1], parts[2]

	if len(method) == 0 || len(method) > 20 {
		return rl, fmt.Errorf("httpx: invalid method: %q", method)
	}
	for i := 0; i < len(method); i++ {
		c := method[i]
		if c < 'A' || c > 'Z' {
			return rl, fmt.Errorf("httpx: method must be uppercase A-Z: %q", method)
		}
	}
	switch method {
	case "GET", "HEAD", "POST", "PUT", "DELETE", "CONNECT", "OPTIONS", "TRACE", "PATCH":
	default:
		return rl, fmt.Errorf("httpx: unknown method: %q", method)
	}

	if !strings.HasPrefix(proto, "HTTP/") {
		return rl, fmt.Errorf("httpx: invalid protocol: %q", proto)
	}
	ver := strings.TrimPrefix(proto, "HTTP/")
	dot := strings.IndexByte(ver, '.')
	if dot < 0 {
		return rl, fmt.Errorf("httpx: invalid HTTP version: %q", proto)
	}
	major, err1 := strconv.Atoi(ver[:dot])
	minor, err2 := strconv.Atoi(ver[dot+1:])
	if err1 != nil || err2 != nil {
		return rl, fmt.Errorf("httpx: invalid HTTP version numbers: %q", proto)
	}

	rl = requestLine{
		Method:     method,
		Target:     target,
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
	}
	return rl, nil
}
