package llms

// PromptOptions holds everything a client needs besides the prompt itself.
type PromptOptions struct {
	Instructions string
	History      []Message
	// Temperature is left to the provider default when nil.
	Temperature *float64
	MaxTokens   int
}

type PromptOption func(*PromptOptions)

// WithSystemPrompt sets the system instructions. Repeating this option
// overwrites the previous value.
func WithSystemPrompt(prompt string) PromptOption {
	return func(opts *PromptOptions) {
		opts.Instructions = prompt
	}
}

// WithHistory appends messages to the conversation history sent before the
// prompt. Repeating this option keeps adding messages in order.
func WithHistory(messages ...Message) PromptOption {
	return func(opts *PromptOptions) {
		opts.History = append(opts.History, messages...)
	}
}

func WithTemperature(temperature float64) PromptOption {
	return func(opts *PromptOptions) {
		opts.Temperature = &temperature
	}
}

func WithMaxTokens(maxTokens int) PromptOption {
	return func(opts *PromptOptions) {
		opts.MaxTokens = maxTokens
	}
}

func ApplyPromptOptions(opts ...PromptOption) PromptOptions {
	options := PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
