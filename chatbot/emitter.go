package chatbot

import (
	"strings"
	"unicode"
)

// Sink receives events for one client
type Sink interface {
	Send(Event) error
}

// Emitter turns completion chunks into client events, withholding directive text.
//
// A directive starts at the pattern's opener (optionally preceded by the marker) and runs
// through the next marker or the end of the stream. Chunk tails that may be the beginning
// of an opener are held until the next chunk shows whether they are, so the visible text
// does not depend on how the stream was chunked.
type Emitter struct {
	sink   Sink
	marker string
	opener string

	pending     string
	inDirective bool
}

// NewEmitter returns an Emitter writing to sink
func NewEmitter(sink Sink, p *Pattern) *Emitter {
	return &Emitter{sink: sink, marker: p.Marker(), opener: p.Opener()}
}

// Chunk processes one chunk of model output and sends any visible text as an ai event
func (e *Emitter) Chunk(text string) error {
	t := e.pending + text
	e.pending = ""

	var out strings.Builder
	for t != "" {
		if e.inDirective {
			i := strings.Index(t, e.marker)
			if i < 0 {
				t = ""
				break
			}
			t = t[i+len(e.marker):]
			e.inDirective = false
			continue
		}

		i := strings.Index(t, e.opener)
		if i < 0 {
			// trailing whitespace is dropped if an opener follows
			visible := strings.TrimRightFunc(t[:len(t)-e.holdback(t)], unicode.IsSpace)
			out.WriteString(visible)
			e.pending = t[len(visible):]
			break
		}

		start := i
		if strings.HasSuffix(t[:i], e.marker) {
			start -= len(e.marker)
		}
		out.WriteString(strings.TrimRightFunc(t[:start], unicode.IsSpace))
		e.inDirective = true
		t = t[i+len(e.opener):]
	}

	return e.send(out.String())
}

// Flush sends text held back at the end of the stream
func (e *Emitter) Flush() error {
	pending := e.pending
	e.pending = ""
	if e.inDirective {
		return nil
	}
	return e.send(pending)
}

// Complete sends the turn completion event
func (e *Emitter) Complete(detected bool) error {
	return e.sink.Send(completeEvent(detected))
}

func (e *Emitter) send(visible string) error {
	if visible == "" {
		return nil
	}
	return e.sink.Send(aiEvent(visible))
}

// holdback returns the length of the longest suffix of t that could begin an opener
func (e *Emitter) holdback(t string) int {
	full := e.marker + e.opener
	k := len(full) - 1
	if k > len(t) {
		k = len(t)
	}
	for ; k > 0; k-- {
		suffix := t[len(t)-k:]
		if strings.HasPrefix(full, suffix) || strings.HasPrefix(e.opener, suffix) {
			return k
		}
	}
	return 0
}
