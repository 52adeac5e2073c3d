package llms

// Message is a single message of the conversation sent to the model.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole describes who the message is from
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)
