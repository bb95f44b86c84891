// Package llmgen generates flashcard material directly with the Anthropic
// Messages API, as an alternative to the generation backend.
package llmgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/conorfennell/flashstudy/internal/domain"
)

// ErrPDFUnsupported is returned by FromPDF; documents must go through the backend.
var ErrPDFUnsupported = errors.New("pdf generation is not supported by the anthropic generator")

const (
	toolName = "save_material"

	systemPrompt = `You write study material. Always answer by calling the save_material tool exactly once.
"points" are short standalone flashcard facts. Every question has 3 or 4 options and "answer" is exactly one of them.
If you cannot call the tool, reply with the same fields as a single JSON object and nothing else.`
)

// materialInput is the save_material tool input; it decodes into domain.Material.
type materialInput struct {
	Topic     string          `json:"topic" jsonschema:"required,description=A short title for the subject"`
	Points    []string        `json:"points" jsonschema:"required,description=Standalone flashcard facts"`
	Questions []questionInput `json:"questions" jsonschema:"required,description=Multiple choice exam questions"`
}

type questionInput struct {
	QuestionID int      `json:"questionId" jsonschema:"required,description=1-based question number"`
	Question   string   `json:"question" jsonschema:"required"`
	Options    []string `json:"options" jsonschema:"required,minItems=2,maxItems=4"`
	Answer     string   `json:"answer" jsonschema:"required,description=Exactly one of the options"`
}

func materialTool() anthropic.ToolUnionParam {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(materialInput{})
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        toolName,
			Description: anthropic.String("Store the generated flashcards and exam questions"),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: schema.Properties},
		},
	}
}

// Generator asks a Claude model for material.
type Generator struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	validate  *validator.Validate
}

// New returns a Generator using apiKey. Extra request options (base URL, HTTP client) may be passed.
func New(apiKey, model string, maxTokens int64, opts ...option.RequestOption) *Generator {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Generator{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		validate:  validator.New(),
	}
}

// FromTopic generates material for a typed topic. id is only used for logging.
func (g *Generator) FromTopic(ctx context.Context, id, topic string) (*domain.Material, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	slog.Debug("Requesting material from model", "id", id, "model", g.model, "topic", topic)
	response, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Create flashcards and an exam about: " + topic)),
		},
		Tools: []anthropic.ToolUnionParam{materialTool()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call Anthropic API: %w", err)
	}

	m, err := materialFromResponse(response)
	if err != nil {
		return nil, err
	}
	if err := g.validate.Struct(m); err != nil {
		return nil, fmt.Errorf("invalid material from model: %w", err)
	}
	return m, nil
}

// FromPDF always fails with ErrPDFUnsupported.
func (g *Generator) FromPDF(ctx context.Context, filename string, r io.Reader) (*domain.Material, error) {
	return nil, ErrPDFUnsupported
}

// materialFromResponse prefers the save_material tool call and falls back to JSON in the text.
func materialFromResponse(response *anthropic.Message) (*domain.Material, error) {
	var text strings.Builder
	for _, block := range response.Content {
		switch block := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			if block.Name != toolName {
				continue
			}
			input, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to read tool input: %w", err)
			}
			return ParseMaterial(string(input))
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		}
	}
	return ParseMaterial(text.String())
}

// ParseMaterial extracts the JSON object from a model reply, tolerating code fences or prose around it.
func ParseMaterial(reply string) (*domain.Material, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, errors.New("model reply contains no JSON object")
	}

	var m domain.Material
	if err := json.Unmarshal([]byte(reply[start:end+1]), &m); err != nil {
		return nil, fmt.Errorf("failed to decode model reply: %w", err)
	}
	return &m, nil
}
