package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/chart"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/config"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/source"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

// Draft is a synthesized post plus its chart description.
type Draft struct {
	Text  string
	Chart chart.Spec
}

// Selection is the model's pick from a candidate pool.
type Selection struct {
	Index  int
	Reason string
}

// Bounds are the length constraints applied to synthesized text.
type Bounds struct {
	MinChars int
	MaxChars int
}

// LLM is the language-model surface the pipeline depends on. The production
// implementation talks to OpenAI-compatible endpoints; tests substitute fakes.
type LLM interface {
	SelectStory(ctx context.Context, creds Credentials, candidates []source.Story, recentTitles []string) (Selection, error)
	Research(ctx context.Context, creds Credentials, story source.Story) (string, error)
	Synthesize(ctx context.Context, creds Credentials, story source.Story, facts, style string, b Bounds) (Draft, error)
	Refine(ctx context.Context, creds Credentials, text string, b Bounds) (string, error)
}

// Client implements LLM against OpenAI-compatible APIs. Research calls go to
// a separate endpoint (typically Perplexity) selected by base URL.
type Client struct {
	model           string
	researchModel   string
	researchBaseURL string

	limiter *Limiter
	policy  Policy
	log     logx.Logger
}

func NewClient(cfg config.GatewayConfig, limiter *Limiter, log logx.Logger) *Client {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	researchModel := cfg.ResearchModel
	if researchModel == "" {
		researchModel = "sonar-pro"
	}
	return &Client{
		model:           model,
		researchModel:   researchModel,
		researchBaseURL: cfg.ResearchBaseURL,
		limiter:         limiter,
		policy:          PolicyFromConfig(cfg.Retry),
		log:             log,
	}
}

func (c *Client) SelectStory(ctx context.Context, creds Credentials, candidates []source.Story, recentTitles []string) (Selection, error) {
	if creds.LLMAPIKey == "" {
		return Selection{}, Reject("llm", "no API key configured")
	}
	prompt := selectionPrompt(candidates, recentTitles)

	raw, err := c.complete(ctx, "select", creds.LLMAPIKey, "", c.model, selectionSystem, prompt, 300)
	if err != nil {
		return Selection{}, err
	}

	var out struct {
		SelectedIndex int    `json:"selected_index"`
		Reason        string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return Selection{}, fmt.Errorf("parse selection: %w", err)
	}
	if out.SelectedIndex < 0 || out.SelectedIndex >= len(candidates) {
		return Selection{}, fmt.Errorf("selection index %d out of range [0,%d)", out.SelectedIndex, len(candidates))
	}
	return Selection{Index: out.SelectedIndex, Reason: out.Reason}, nil
}

func (c *Client) Research(ctx context.Context, creds Credentials, story source.Story) (string, error) {
	if creds.ResearchAPIKey == "" {
		return "", Reject("research", "no API key configured")
	}
	prompt := researchPrompt(story)

	raw, err := c.complete(ctx, "research", creds.ResearchAPIKey, c.researchBaseURL, c.researchModel, researchSystem, prompt, 2000)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (c *Client) Synthesize(ctx context.Context, creds Credentials, story source.Story, facts, style string, b Bounds) (Draft, error) {
	if creds.LLMAPIKey == "" {
		return Draft{}, Reject("llm", "no API key configured")
	}
	prompt := synthesisPrompt(story, facts, style, b)

	raw, err := c.complete(ctx, "synthesize", creds.LLMAPIKey, "", c.model, synthesisSystem, prompt, 3000)
	if err != nil {
		return Draft{}, err
	}

	var out struct {
		Post  string     `json:"post"`
		Chart chart.Spec `json:"chart"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return Draft{}, fmt.Errorf("parse draft: %w", err)
	}
	out.Post = strings.TrimSpace(out.Post)
	if out.Post == "" {
		return Draft{}, fmt.Errorf("empty post in draft")
	}
	return Draft{Text: out.Post, Chart: out.Chart.Normalize()}, nil
}

func (c *Client) Refine(ctx context.Context, creds Credentials, text string, b Bounds) (string, error) {
	if creds.LLMAPIKey == "" {
		return "", Reject("llm", "no API key configured")
	}
	prompt := refinePrompt(text, b)

	raw, err := c.complete(ctx, "refine", creds.LLMAPIKey, "", c.model, synthesisSystem, prompt, 3000)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// complete issues one chat completion under the rate limit and retry policy.
func (c *Client) complete(ctx context.Context, op, apiKey, baseURL, model, system, prompt string, maxTokens int64) (string, error) {
	var content string
	err := Do(ctx, c.policy, c.log, op, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		client := openai.NewClient(opts...)

		resp, err := client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
			Model: model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				{
					OfSystem: &openai.ChatCompletionSystemMessageParam{
						Content: openai.ChatCompletionSystemMessageParamContentUnion{
							OfString: openai.String(system),
						},
					},
				},
				{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(prompt),
						},
					},
				},
			},
			Temperature: openai.Float(0.7),
			MaxTokens:   openai.Int(maxTokens),
		})
		if err != nil {
			return classifyOpenAIErr(op, err)
		}
		if len(resp.Choices) == 0 {
			return Unavailable(op, fmt.Errorf("no choices in response"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

func classifyOpenAIErr(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return Reject(provider, "authentication failed (%d)", apiErr.StatusCode)
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 404 || apiErr.StatusCode == 422:
			return Reject(provider, "request refused (%d)", apiErr.StatusCode)
		}
	}
	return Unavailable(provider, err)
}

// extractJSON strips markdown code fences around a JSON payload. Models
// sometimes wrap structured output despite instructions.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		return strings.TrimSpace(s)
	}
	// Fall back to the outermost object when the model added prose.
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i : j+1]
		}
	}
	return s
}
