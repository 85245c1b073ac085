package chatbot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// PromptSource supplies the system message for new connections
type PromptSource interface {
	SystemPrompt() (string, error)
}

// StaticPrompt is a fixed system prompt
type StaticPrompt string

// SystemPrompt returns p
func (p StaticPrompt) SystemPrompt() (string, error) {
	return string(p), nil
}

// FilePrompt reads the system prompt from Path each time it is requested.
// If the file does not exist and Fallback is non-empty, Fallback is used.
type FilePrompt struct {
	Path     string
	Fallback string
}

// SystemPrompt returns the file's contents verbatim
func (p FilePrompt) SystemPrompt() (string, error) {
	buf, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && p.Fallback != "" {
			return p.Fallback, nil
		}
		return "", fmt.Errorf("could not read system prompt: %w", err)
	}
	return string(buf), nil
}

// DefaultSystemPrompt returns the system prompt used when no prompt file is configured
func DefaultSystemPrompt() string {
	return `You are a friendly, laid-back chat companion. Keep answers short and conversational.

## Images
You can show the user a picture. When an image would help, or the user asks for one, add a
single image directive at the very end of your reply in exactly this form:

_prompt: <a short, vivid description of the image>_

Rules:
- Use at most one directive per reply.
- Never use the underscore character inside the description.
- Do not mention the directive or explain it; the user never sees it.
- Keep the description under 200 characters.

## Examples

User: "Show me a fox in the snow"
→ Sure thing, here it comes! _prompt: a red fox standing in fresh snow, soft morning light_

User: "What's the capital of France?"
→ Paris, of course.
`
}
