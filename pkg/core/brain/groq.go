package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vigil-live/vigil/pkg/core"
	"github.com/vigil-live/vigil/pkg/core/crisis"
)

const (
	// DefaultBaseURL is the Groq OpenAI-compatible API endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel balances latency against instruction-following; crisis
	// replies need the former more than raw capability.
	DefaultModel = "llama-3.3-70b-versatile"

	defaultMaxTokens   = 300
	defaultTemperature = 0.7
)

// Groq is a Responder backed by Groq's chat completions API.
type Groq struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client

	// systemPrompt overrides the built-in persona when set.
	systemPrompt string
}

// Option configures the Groq responder.
type Option func(*Groq)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(g *Groq) { g.baseURL = url }
}

// WithModel overrides the model identifier.
func WithModel(model string) Option {
	return func(g *Groq) { g.model = model }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Groq) { g.httpClient = c }
}

// WithSystemPrompt replaces the built-in persona, e.g. for the telephony
// bridge where the caller is a guardian rather than the user.
func WithSystemPrompt(prompt string) Option {
	return func(g *Groq) { g.systemPrompt = prompt }
}

// NewGroq creates a Groq responder.
func NewGroq(apiKey string, opts ...Option) *Groq {
	g := &Groq{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		maxTokens:  defaultMaxTokens,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Respond sends the conversation to Groq and returns the raw reply text.
func (g *Groq) Respond(ctx context.Context, transcript string, mode crisis.Mode, history []Message) (string, error) {
	system := g.systemPrompt
	if system == "" {
		system = SystemPrompt(mode)
	}

	msgs := make([]chatMessage, 0, len(history)+2)
	msgs = append(msgs, chatMessage{Role: string(RoleSystem), Content: system})
	for _, m := range history {
		if m.Role == RoleSystem {
			continue
		}
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, chatMessage{Role: string(RoleUser), Content: transcript})

	req := chatRequest{
		Model:       g.model,
		Messages:    msgs,
		MaxTokens:   g.maxTokens,
		Temperature: defaultTemperature,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.chatCompletionsURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", core.NewTimeoutError("intelligence", ctx.Err())
		}
		return "", core.NewCollaboratorError("intelligence", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", g.parseError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.NewCollaboratorError("intelligence", fmt.Errorf("read response: %w", err))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", core.NewCollaboratorError("intelligence", fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", core.NewCollaboratorError("intelligence", fmt.Errorf("empty choices"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (g *Groq) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		return core.NewCollaboratorError("intelligence", fmt.Errorf("groq: %s (%s)", ae.Error.Message, ae.Error.Type))
	}
	return core.NewCollaboratorError("intelligence", fmt.Errorf("groq: http %d", resp.StatusCode))
}

func (g *Groq) chatCompletionsURL() string {
	return strings.TrimRight(g.baseURL, "/") + "/chat/completions"
}
