package chatbot

// Event roles sent from server to client
const (
	EventUser       = "user"
	EventAI         = "ai"
	EventAIComplete = "ai_complete"
	EventImage      = "image"
)

// Event is the message format from server to client.
// Inbound client messages are raw text, one chat turn per message.
type Event struct {
	Role           string `json:"role"`                     // "user", "ai", "ai_complete", or "image"
	Content        string `json:"content,omitempty"`        // text, error text, or image payload
	PromptDetected *bool  `json:"promptDetected,omitempty"` // sent with "ai_complete"
}

// genericError is shown to the client when a turn fails upstream
const genericError = "Sorry, I encountered an error, bro!"

func userEvent(content string) Event {
	return Event{Role: EventUser, Content: content}
}

func aiEvent(content string) Event {
	return Event{Role: EventAI, Content: content}
}

func completeEvent(detected bool) Event {
	return Event{Role: EventAIComplete, PromptDetected: &detected}
}

func imageEvent(content string) Event {
	return Event{Role: EventImage, Content: content}
}
