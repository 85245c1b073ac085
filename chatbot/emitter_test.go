package chatbot

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Sink that keeps every event it is sent
type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Send(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// visible returns the concatenated content of every ai event
func (r *recorder) visible() string {
	var b strings.Builder
	for _, ev := range r.Events() {
		if ev.Role == EventAI {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

func emit(t *testing.T, p *Pattern, chunks ...string) *recorder {
	t.Helper()
	rec := &recorder{}
	e := NewEmitter(rec, p)
	for _, c := range chunks {
		require.NoError(t, e.Chunk(c))
	}
	require.NoError(t, e.Flush())
	return rec
}

func TestEmitterPlainText(t *testing.T) {
	rec := emit(t, DefaultPattern(), "Hello", " there, friend.")

	assert.Equal(t, []Event{aiEvent("Hello"), aiEvent(" there, friend.")}, rec.Events())
}

func TestEmitterStripsDirective(t *testing.T) {
	rec := emit(t, DefaultPattern(), "Sure thing! _prompt: a red fox_")

	assert.Equal(t, []Event{aiEvent("Sure thing!")}, rec.Events())
}

func TestEmitterStripsDirectiveMidText(t *testing.T) {
	rec := emit(t, DefaultPattern(), "Here you go _prompt: a cat_ Enjoy!")

	assert.Equal(t, "Here you go Enjoy!", rec.visible())
}

func TestEmitterDirectiveAcrossChunks(t *testing.T) {
	rec := emit(t, DefaultPattern(), "Sure thing! _pro", "mpt: a red", " fox_ Enjoy!")

	assert.Equal(t, []Event{aiEvent("Sure thing!"), aiEvent(" Enjoy!")}, rec.Events())
	assert.NotContains(t, rec.visible(), "prompt")
	assert.NotContains(t, rec.visible(), "fox")
}

func TestEmitterUnterminatedDirective(t *testing.T) {
	rec := emit(t, DefaultPattern(), "Look: prompt: a cat", " on a mat")

	assert.Equal(t, []Event{aiEvent("Look:")}, rec.Events())
}

func TestEmitterHeldTailFlushed(t *testing.T) {
	rec := emit(t, DefaultPattern(), "snake_")

	assert.Equal(t, []Event{aiEvent("snake"), aiEvent("_")}, rec.Events())
}

func TestEmitterHoldsTrailingWhitespace(t *testing.T) {
	rec := emit(t, DefaultPattern(), "Here you go ", " ", "_prompt: a cat_")
	assert.Equal(t, []Event{aiEvent("Here you go")}, rec.Events())

	rec = emit(t, DefaultPattern(), "Hello ", "world  ")
	assert.Equal(t, []Event{aiEvent("Hello"), aiEvent(" world"), aiEvent("  ")}, rec.Events())
}

func TestEmitterHeldTailResolved(t *testing.T) {
	rec := emit(t, DefaultPattern(), "map", "le syrup")

	assert.Equal(t, "maple syrup", rec.visible())
	for _, ev := range rec.Events() {
		assert.NotEmpty(t, ev.Content)
	}
}

func TestEmitterNoEmptyEvents(t *testing.T) {
	rec := emit(t, DefaultPattern(), "", "_prompt: a boat_", "")

	assert.Empty(t, rec.Events())
}

func TestEmitterCustomPattern(t *testing.T) {
	p, err := NewPattern("*", "draw")
	require.NoError(t, err)

	rec := emit(t, p, "Here *draw: a sailboat* ok")

	assert.Equal(t, "Here ok", rec.visible())
}

func TestEmitterComplete(t *testing.T) {
	rec := &recorder{}
	e := NewEmitter(rec, DefaultPattern())

	require.NoError(t, e.Complete(true))

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAIComplete, events[0].Role)
	require.NotNil(t, events[0].PromptDetected)
	assert.True(t, *events[0].PromptDetected)
}

func TestEmitterSinkError(t *testing.T) {
	rec := &recorder{err: errors.New("closed")}
	e := NewEmitter(rec, DefaultPattern())

	assert.Error(t, e.Chunk("Hello"))
}

func TestEmitterVisibleTextIgnoresChunking(t *testing.T) {
	tests := []struct {
		response string
		visible  string
	}{
		{"Sure thing! _prompt: a red fox_ Enjoy!", "Sure thing! Enjoy!"},
		{"Here you go _prompt: a cat on a mat_", "Here you go"},
		{"Look: prompt: a lighthouse at dusk", "Look:"},
		{"snake_case and map keys _prompt: _ ok", "snake_case and map keys ok"},
		{"no directive here, just prose.  ", "no directive here, just prose.  "},
		{"a__prompt:x_b", "a_b"},
	}

	p := DefaultPattern()
	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			whole := emit(t, p, tt.response).visible()
			require.Equal(t, tt.visible, whole)

			s := tt.response
			for i := 0; i <= len(s); i++ {
				for j := i; j <= len(s); j++ {
					got := emit(t, p, s[:i], s[i:j], s[j:]).visible()
					if got != whole {
						t.Fatalf("split at %d,%d: got %q, want %q", i, j, got, whole)
					}
				}
			}
		})
	}
}
