package domain

// Chat message roles understood by the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the handler
// and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionStream is a finite, non-restartable sequence of generated text
// fragments. Recv returns fragments in the order the provider produced them
// and io.EOF once the provider signals completion. Close releases the
// underlying session and must be called on every exit path.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}
