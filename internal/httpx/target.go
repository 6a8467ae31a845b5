package httpx

import (
	"errors"
	"strings"
)

// TargetForm classifies a request-target per RFC 7230 §5.3. The engine
// itself never needs more than this: HeaderView.Target stays the raw text
// slice the handler sees, and a handler that cares about structure (the
// demo echo handler, for instance) asks ValidateRequestTarget whether the
// target is well-formed rather than getting a parsed URL it would have to
// reassemble to validate.
type TargetForm int

const (
	FormOrigin TargetForm = iota
	FormAbsolute
	FormAsterisk
)

var (
	ErrEmptyTarget       = errors.New("httpx: empty request-target")
	ErrInvalidTargetChar = errors.New("httpx: invalid characters in request-target")
)

// ValidateRequestTarget checks raw for the three request-target forms this
// engine accepts (origin-form, absolute-form, and the asterisk-form used by
// `OPTIONS *`) and reports which one it is. CONNECT's authority-form is not
// produced by any handler in this repository and is rejected along with
// anything else malformed.
func ValidateRequestTarget(raw string) (TargetForm, error) {
	if raw == "" {
		return 0, ErrEmptyTarget
	}
	if strings.ContainsAny(raw, " \r\n") {
		return 0, ErrInvalidTargetChar
	}
	if raw == "*" {
		return FormAsterisk, nil
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return FormAbsolute, nil
	}
	if !strings.HasPrefix(raw, "/") {
		return 0, ErrInvalidTargetChar
	}
	return FormOrigin, nil
}
