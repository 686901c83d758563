// Package openai implements the extraction port against an OpenAI-compatible
// chat completions endpoint. One call per caller utterance: the model is
// forced to answer through a single tool whose JSON schema is derived from
// the active node's field declarations.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/surreyclinic/intake/pkg/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	toolName       = "record_turn"
)

// Option configures the extractor.
type Option func(*Extractor)

// WithBaseURL overrides the API base URL (Azure, local gateways, tests).
func WithBaseURL(url string) Option {
	return func(e *Extractor) { e.baseURL = strings.TrimRight(url, "/") }
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(e *Extractor) { e.model = model }
}

// WithHTTPClient overrides the HTTP client used for requests. Timeouts are
// governed by the per-call context, not the client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) { e.client = client }
}

// Extractor implements ports.Extractor using chat completions with a forced
// tool call.
type Extractor struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// New creates an extractor.
func New(apiKey string, opts ...Option) *Extractor {
	e := &Extractor{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// --- wire types ---

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools"`
	ToolChoice any           `json:"tool_choice"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// turnPayload is the tool-call argument shape the model fills in.
type turnPayload struct {
	Fields          map[string]any `mapstructure:"fields"`
	Intent          string         `mapstructure:"intent"`
	Confidence      float64        `mapstructure:"confidence"`
	EmergencyReason string         `mapstructure:"emergency_reason"`
	Specialty       string         `mapstructure:"specialty"`
}

// Extract implements ports.Extractor.
func (e *Extractor) Extract(ctx context.Context, node domain.Node, utterance string, record *domain.IntakeRecord) (domain.TurnResult, error) {
	reqBody := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(node, record)},
			{Role: "user", Content: utterance},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: toolFunction{
				Name:        toolName,
				Description: "Record the structured interpretation of the caller's answer.",
				Parameters:  toolSchema(node),
			},
		}},
		ToolChoice: map[string]any{
			"type":     "function",
			"function": map[string]string{"name": toolName},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return domain.TurnResult{}, fmt.Errorf("openai: API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return domain.TurnResult{}, fmt.Errorf("openai: decode response: %w", err)
	}

	return parseToolCall(chat)
}

func parseToolCall(chat chatResponse) (domain.TurnResult, error) {
	if len(chat.Choices) == 0 || len(chat.Choices[0].Message.ToolCalls) == 0 {
		return domain.TurnResult{}, fmt.Errorf("%w: no tool call in response", domain.ErrMalformedTurnResult)
	}
	call := chat.Choices[0].Message.ToolCalls[0].Function
	if call.Name != toolName {
		return domain.TurnResult{}, fmt.Errorf("%w: unexpected tool %q", domain.ErrMalformedTurnResult, call.Name)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &raw); err != nil {
		return domain.TurnResult{}, fmt.Errorf("%w: %v", domain.ErrMalformedTurnResult, err)
	}

	var payload turnPayload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &payload,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return domain.TurnResult{}, fmt.Errorf("openai: build decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return domain.TurnResult{}, fmt.Errorf("%w: %v", domain.ErrMalformedTurnResult, err)
	}

	intent := domain.Intent(payload.Intent)
	if payload.Intent == "" {
		intent = domain.IntentContinue
	}
	if !intent.Valid() {
		return domain.TurnResult{}, fmt.Errorf("%w: intent %q", domain.ErrMalformedTurnResult, payload.Intent)
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return domain.TurnResult{
		Fields:          payload.Fields,
		Intent:          intent,
		Confidence:      confidence,
		EmergencyReason: payload.EmergencyReason,
		Specialty:       payload.Specialty,
	}, nil
}

// systemPrompt frames the extraction task with the active question and the
// record collected so far, so corrections resolve against earlier answers.
func systemPrompt(node domain.Node, record *domain.IntakeRecord) string {
	var b strings.Builder
	b.WriteString("You extract structured intake data from one caller utterance in a medical pre-appointment interview.\n")
	b.WriteString("The caller was just asked: ")
	b.WriteString(node.Prompt)
	b.WriteString("\nClassify the utterance intent and extract any of the expected fields it answers.")
	b.WriteString("\nSet intent to \"emergency\" if the caller describes an urgent or life-threatening situation.")

	if record != nil && record.Len() > 0 {
		b.WriteString("\nAlready collected: ")
		for i, f := range record.Fields() {
			v, _ := record.Get(f)
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", f, v)
		}
	}
	return b.String()
}

// toolSchema builds the tool's JSON schema from the node's field
// declarations. All fields are optional: a partial answer is a normal turn.
func toolSchema(node domain.Node) map[string]any {
	fieldProps := make(map[string]any, len(node.RequiredFields))
	for _, f := range node.RequiredFields {
		fieldProps[f] = jsonType(node.FieldTypes[f])
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fields": map[string]any{
				"type":        "object",
				"description": "Field values the utterance provides. Omit fields it does not answer.",
				"properties":  fieldProps,
			},
			"intent": map[string]any{
				"type": "string",
				"enum": []string{"continue", "repeat", "emergency", "switch_specialty"},
			},
			"confidence": map[string]any{
				"type":        "number",
				"description": "Extraction confidence between 0 and 1.",
			},
			"emergency_reason": map[string]any{
				"type":        "string",
				"description": "Why the situation is an emergency, when intent is emergency.",
			},
			"specialty": map[string]any{
				"type":        "string",
				"description": "Target specialty branch, when intent is switch_specialty.",
			},
		},
		"required": []string{"intent", "confidence"},
	}
}

func jsonType(fieldType string) map[string]any {
	switch fieldType {
	case "int":
		return map[string]any{"type": "integer"}
	case "float":
		return map[string]any{"type": "number"}
	case "bool":
		return map[string]any{"type": "boolean"}
	default:
		if strings.HasPrefix(fieldType, "[") && strings.HasSuffix(fieldType, "]") {
			return map[string]any{
				"type":  "array",
				"items": jsonType(fieldType[1 : len(fieldType)-1]),
			}
		}
		return map[string]any{"type": "string"}
	}
}
