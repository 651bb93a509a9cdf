package lead

import (
	"regexp"
	"strings"
)

// emailPattern matches the local@domain.tld shape. Intentionally
// stricter than RFC 5321; leads with exotic addresses are rejected
// rather than risked against the gateway.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// maxFieldLen caps identity fields so a pasted blob cannot blow up
// prompts or gateway headers
const maxFieldLen = 256

// Result is the outcome of validating a lead row
type Result struct {
	Valid  bool
	Errors []string
}

// Validate checks that the required identity fields are present after
// trimming and that the email has a plausible shape. It never mutates
// the lead and never fails for malformed input.
func Validate(l *Lead) Result {
	var errs []string

	email := strings.TrimSpace(l.Email)
	switch {
	case email == "":
		errs = append(errs, "email is required")
	case len(email) > maxFieldLen:
		errs = append(errs, "email too long")
	case !emailPattern.MatchString(email):
		errs = append(errs, "email format is invalid")
	}

	for _, f := range []struct{ name, value string }{
		{"first name", l.FirstName},
		{"company", l.Company},
		{"position", l.Position},
	} {
		v := strings.TrimSpace(f.value)
		if v == "" {
			errs = append(errs, f.name+" is required")
		} else if len(v) > maxFieldLen {
			errs = append(errs, f.name+" too long")
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ShouldProcess reports whether a row is eligible for the generation
// pipeline: only untouched or half-processed rows, and only valid
// ones. Used by the batch intake as a pre-filter and again defensively
// before each transition.
func ShouldProcess(status Status, l *Lead) bool {
	if status != StatusEmpty && status != StatusProcessing {
		return false
	}
	return Validate(l).Valid
}
