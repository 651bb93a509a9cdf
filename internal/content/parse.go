// Package content turns free text returned by the generation service
// into structured email parts, and builds the prompts sent to it.
package content

import "strings"

// Markers are the literal section labels the generation service is
// prompted to emit. The defaults match the zh-TW prompt set; both
// fullwidth and ASCII colons are accepted on input.
type Markers struct {
	Subject string
	Body    string
}

// DefaultMarkers returns the marker set used by the stock prompts.
func DefaultMarkers() Markers {
	return Markers{Subject: "主旨", Body: "內容"}
}

// Parsed is the result of splitting generated text into email parts
type Parsed struct {
	Subject string
	Body    string
}

// Parse extracts the subject and body from generated text. The subject
// is the remainder of the line holding the subject marker; the body is
// everything after the body marker, trimmed. Missing markers degrade
// instead of failing: no subject marker leaves Subject empty, no body
// marker returns the whole trimmed text as Body. A missing subject is
// a recoverable defect for callers, not a generation failure.
func Parse(text string, m Markers) Parsed {
	var p Parsed

	if idx, skip := findMarker(text, m.Subject); idx >= 0 {
		rest := text[idx+skip:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			p.Subject = strings.TrimSpace(rest[:nl])
		} else {
			p.Subject = strings.TrimSpace(rest)
		}
	}

	if idx, skip := findMarker(text, m.Body); idx >= 0 {
		p.Body = strings.TrimSpace(text[idx+skip:])
	} else {
		p.Body = strings.TrimSpace(text)
	}

	return p
}

// findMarker locates "label：" or "label:" and returns the byte offset
// of the label and the number of bytes to skip past label and colon.
func findMarker(text, label string) (idx, skip int) {
	for _, colon := range []string{"：", ":"} {
		want := label + colon
		if i := strings.Index(text, want); i >= 0 {
			return i, len(want)
		}
	}
	return -1, 0
}
