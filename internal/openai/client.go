package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client wraps the OpenAI SDK for reply summarisation.
type Client struct {
	apiKey string
	client *openai.Client
	model  openai.ChatModel
}

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("openai client not initialised")

// DefaultPrompt is used when a template carries no custom summary prompt.
const DefaultPrompt = "Summarize the following accountability update concisely (2-3 sentences max):"

// replyPlaceholder marks where a custom prompt wants the reply inserted.
const replyPlaceholder = "{reply}"

// SummaryContext describes the commitment a reply belongs to.
type SummaryContext struct {
	Name  string
	Tags  []string
	Goals string
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(model) != "" {
			c.model = openai.ChatModel(model)
		}
	}
}

// WithRequestOptions passes SDK options through, e.g. a base URL in tests.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *Client) {
		if c.client == nil {
			return
		}
		client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(c.apiKey)}, opts...)...)
		c.client = &client
	}
}

// New returns an OpenAI client. Without an apiKey every call fails with
// ErrClientNotInitialised.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{model: openai.ChatModelGPT4oMini}
	if apiKey != "" {
		client := openai.NewClient(option.WithAPIKey(apiKey))
		c.apiKey = apiKey
		c.client = &client
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summarize asks the model to summarise a cleaned reply. sc and
// customPrompt are both optional.
func (c *Client) Summarize(ctx context.Context, reply string, sc *SummaryContext, customPrompt string) (string, error) {
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("reply cannot be empty")
	}
	if c.client == nil {
		return "", ErrClientNotInitialised
	}

	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String("You summarise personal accountability check-ins for a progress log."),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(BuildPrompt(reply, sc, customPrompt)),
					},
				},
			},
		},
		Temperature:         openai.Float(0.3),
		MaxCompletionTokens: openai.Int(300),
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion received")
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("empty completion received")
	}
	return summary, nil
}

// BuildPrompt assembles the user message. A custom prompt containing
// {reply} has it substituted; otherwise the reply is appended after a blank
// line. Known commitment context is placed ahead of the prompt.
func BuildPrompt(reply string, sc *SummaryContext, customPrompt string) string {
	var prompt string
	switch {
	case strings.TrimSpace(customPrompt) == "":
		prompt = DefaultPrompt + "\n\n" + reply
	case strings.Contains(customPrompt, replyPlaceholder):
		prompt = strings.Replace(customPrompt, replyPlaceholder, reply, 1)
	default:
		prompt = customPrompt + "\n\n" + reply
	}

	header := contextHeader(sc)
	if header == "" {
		return prompt
	}
	return header + "\n" + prompt
}

func contextHeader(sc *SummaryContext) string {
	if sc == nil {
		return ""
	}
	var sb strings.Builder
	if sc.Name != "" {
		sb.WriteString(fmt.Sprintf("Commitment: %s\n", sc.Name))
	}
	if len(sc.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(sc.Tags, ", ")))
	}
	if sc.Goals != "" {
		sb.WriteString(fmt.Sprintf("Related goals:\n%s\n", sc.Goals))
	}
	return sb.String()
}
