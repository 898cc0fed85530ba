// Package llm defines the chat-completion surface used for summarization
// calls. Provider adapters live in sub-packages.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// ToolSchema describes a tool to the model. Parameters is a JSON schema object.
type ToolSchema struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = ""
	// ToolChoiceNone describes tools to the model but forbids calling them.
	ToolChoiceNone ToolChoice = "none"
)

type InvokeOptions struct {
	Temperature float64
	Stream      bool
	MaxTokens   int
	ToolChoice  ToolChoice
	Tools       []ToolSchema
}

type Status string

const (
	StatusSuccess  Status = "success"
	StatusFiltered Status = "filtered"
	StatusError    Status = "error"
)

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type Response struct {
	Status Status
	Text   string
	// Reason carries the endpoint's explanation for a non-success status.
	Reason string
	Usage  *Usage
}

// Descriptor identifies an endpoint for prompt rendering and logging.
type Descriptor struct {
	Provider        string `json:"provider" yaml:"provider"`
	Model           string `json:"model" yaml:"model"`
	MaxPromptTokens int    `json:"max_prompt_tokens" yaml:"max_prompt_tokens"`
}

// Endpoint performs one chat-completion request. Transport failures are
// returned as errors; refusals and provider-side failures that produced a
// response are reported through Response.Status.
type Endpoint interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, messages []Message, opts InvokeOptions) (*Response, error)
}

// SplitSystem separates leading system messages from the rest, for providers
// that take the system prompt out of band.
func SplitSystem(messages []Message) (string, []Message) {
	system := ""
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
