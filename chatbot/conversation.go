package chatbot

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message in OpenAI format
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Conversation is the ordered message log of a single connection.
// The first message is always the system message.
// Conversation is not safe for concurrent use; it is owned by one Session.
type Conversation struct {
	messages []Message
}

// NewConversation creates a conversation seeded with the system message
func NewConversation(system string) *Conversation {
	return &Conversation{
		messages: []Message{{Role: RoleSystem, Content: system}},
	}
}

// Append adds a message to the end of the conversation
func (c *Conversation) Append(role, content string) {
	c.messages = append(c.messages, Message{Role: role, Content: content})
}

// Snapshot returns a copy of the full ordered history
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the conversation
func (c *Conversation) Len() int {
	return len(c.messages)
}
