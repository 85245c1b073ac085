package chatbot

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Default directive format: _prompt: <payload>_
const (
	DefaultMarker       = "_"
	DefaultKey          = "prompt"
	DefaultScanMaxBytes = 1 << 20
)

// DirectiveMatch is an image directive found in model output
type DirectiveMatch struct {
	RawSpan string // full matched text, markers included
	Payload string // normalized payload
	Start   int    // byte offset of RawSpan in the scanned text
}

// Pattern recognizes directives of the form: optional marker, key, colon, optional space,
// one or more non-marker characters, optional marker.
type Pattern struct {
	marker string
	key    string
	re     *regexp.Regexp
}

// NewPattern compiles a directive pattern. marker must be a single character and key must
// be non-empty and must not contain marker.
func NewPattern(marker, key string) (*Pattern, error) {
	if utf8.RuneCountInString(marker) != 1 {
		return nil, fmt.Errorf("directive marker must be a single character, got %q", marker)
	}
	if key == "" {
		return nil, errors.New("directive key must not be empty")
	}
	if strings.Contains(key, marker) {
		return nil, fmt.Errorf("directive key %q must not contain marker %q", key, marker)
	}

	m := regexp.QuoteMeta(marker)
	re, err := regexp.Compile(fmt.Sprintf(`(?:%s)?%s: ?([^%s]+)(?:%s)?`, m, regexp.QuoteMeta(key), m, m))
	if err != nil {
		return nil, fmt.Errorf("could not compile directive pattern: %w", err)
	}

	return &Pattern{marker: marker, key: key, re: re}, nil
}

// DefaultPattern returns the _prompt: ..._ pattern
func DefaultPattern() *Pattern {
	p, err := NewPattern(DefaultMarker, DefaultKey)
	if err != nil {
		panic(err)
	}
	return p
}

// Marker returns the directive marker character
func (p *Pattern) Marker() string {
	return p.marker
}

// Opener returns the key and colon that start every directive
func (p *Pattern) Opener() string {
	return p.key + ":"
}

// Find returns the first directive in text whose normalized payload is non-empty
func (p *Pattern) Find(text string) (DirectiveMatch, bool) {
	for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
		payload := strings.TrimSpace(text[loc[2]:loc[3]])
		if payload == "" {
			continue
		}
		return DirectiveMatch{
			RawSpan: text[loc[0]:loc[1]],
			Payload: payload,
			Start:   loc[0],
		}, true
	}
	return DirectiveMatch{}, false
}

// resumeAt returns the earliest offset in text at which a directive could still begin
// once more text is appended, given that text holds no directive with a non-empty payload.
func (p *Pattern) resumeAt(text string) int {
	opener := p.Opener()

	// a partial marker+opener may sit at the very end
	resume := len(text) - (len(p.marker) + len(opener) - 1)
	if resume < 0 {
		resume = 0
	}

	// an opener followed only by whitespace can still gain a payload
	idx := strings.LastIndex(text, opener)
	if idx < 0 {
		return resume
	}
	rest := text[idx+len(opener):]
	if strings.Contains(rest, p.marker) || strings.TrimSpace(rest) != "" {
		return resume
	}
	if strings.HasSuffix(text[:idx], p.marker) {
		idx -= len(p.marker)
	}
	if idx < resume {
		return idx
	}
	return resume
}

// Scanner watches the accumulated output of one turn for a directive.
// Text already proven not to start a directive is not scanned again.
type Scanner struct {
	pattern  *Pattern
	maxBytes int

	buf      strings.Builder
	resume   int
	detected bool
	overflow bool
}

// NewScanner returns a Scanner that buffers at most maxBytes of output per turn.
// maxBytes <= 0 means unbounded.
func NewScanner(p *Pattern, maxBytes int) *Scanner {
	return &Scanner{pattern: p, maxBytes: maxBytes}
}

// Reset clears the scanner for a new turn
func (s *Scanner) Reset() {
	s.buf.Reset()
	s.resume = 0
	s.detected = false
	s.overflow = false
}

// Write appends chunk to the turn buffer and scans for a directive.
// It returns the sticky detection flag.
func (s *Scanner) Write(chunk string) bool {
	if s.overflow || chunk == "" {
		return s.detected
	}

	if s.maxBytes > 0 {
		if room := s.maxBytes - s.buf.Len(); len(chunk) > room {
			// never split a rune
			for room > 0 && !utf8.RuneStart(chunk[room]) {
				room--
			}
			chunk = chunk[:room]
			s.overflow = true
		}
	}
	s.buf.WriteString(chunk)

	if s.detected {
		return true
	}

	text := s.buf.String()
	if _, ok := s.pattern.Find(text[s.resume:]); ok {
		s.detected = true
		return true
	}
	s.resume = s.pattern.resumeAt(text)
	return false
}

// Detected reports whether a directive has been seen this turn
func (s *Scanner) Detected() bool {
	return s.detected
}

// Overflowed reports whether output was dropped because the buffer cap was reached
func (s *Scanner) Overflowed() bool {
	return s.overflow
}

// Result scans the whole turn buffer and returns the first directive, if any
func (s *Scanner) Result() (DirectiveMatch, bool) {
	return s.pattern.Find(s.buf.String())
}

// Len returns the number of buffered bytes
func (s *Scanner) Len() int {
	return s.buf.Len()
}
