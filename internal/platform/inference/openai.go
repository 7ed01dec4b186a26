package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ehr/assessment/internal/domain/dsm"
)

const (
	defaultMaxTokens     = 2048
	defaultExplainMethod = "shap"
	maxCandidates        = 20
)

// Config selects the endpoint and model.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client implements classification and explanation over chat completions.
type Client struct {
	client *openai.Client
	model  string
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

// ModelID names the model recorded on audit entries.
func (c *Client) ModelID() string {
	return c.model
}

const classifySystemPrompt = `You are a psychiatric triage classifier. Given a symptom description, propose DSM-5-TR diagnoses.
Respond with a single JSON object: {"candidates":[{"code":"F32.1","category":"depressive","name":"...","criteria":"...","severity":"mild|moderate|severe|unspecified","confidence":0.0}]}.
category must be one of: %s.
confidence is a probability between 0 and 1. Do not add prose.`

const explainSystemPrompt = `You explain a psychiatric triage classification.
Respond with a single JSON object: {"method":"shap","summary":"...","features":[{"feature":"...","importance":0.0}]}.
Features are either "symptom:<phrase>" for evidence in the text or "<attribute>_<value>" for subject attributes you relied on.
importance is signed: positive supports the diagnosis. Do not add prose.`

// Classify asks the model for diagnosis candidates.
func (c *Client) Classify(ctx context.Context, text string, lang dsm.Language, cc Context) (*Classification, error) {
	cats := make([]string, 0, len(dsm.Categories()))
	for _, cat := range dsm.Categories() {
		cats = append(cats, string(cat))
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Language: %s\n", lang)
	if cc.Age != nil {
		fmt.Fprintf(&user, "Age: %d\n", *cc.Age)
	}
	if cc.CulturalBackground != "" {
		fmt.Fprintf(&user, "Cultural background: %s\n", cc.CulturalBackground)
	}
	if len(cc.PriorDiagnoses) > 0 {
		fmt.Fprintf(&user, "Prior diagnoses: %s\n", strings.Join(cc.PriorDiagnoses, ", "))
	}
	if len(cc.Medications) > 0 {
		fmt.Fprintf(&user, "Current medications: %s\n", strings.Join(cc.Medications, ", "))
	}
	fmt.Fprintf(&user, "Symptoms:\n%s", text)

	content, model, err := c.complete(ctx, fmt.Sprintf(classifySystemPrompt, strings.Join(cats, ", ")), user.String())
	if err != nil {
		return nil, err
	}

	var doc struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := decodeJSON(content, &doc); err != nil {
		return nil, err
	}
	candidates, err := normalizeCandidates(doc.Candidates)
	if err != nil {
		return nil, err
	}
	return &Classification{ModelID: model, Candidates: candidates}, nil
}

// Explain asks the model to attribute a diagnosis to input features.
func (c *Client) Explain(ctx context.Context, in ExplainInput) (*Explanation, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Diagnosis: %s %s (confidence %.2f)\n", in.Diagnosis.Code, in.Diagnosis.Name, in.Diagnosis.Confidence)
	fmt.Fprintf(&user, "Language: %s\n", in.Language)
	keys := make([]string, 0, len(in.Attributes))
	for k := range in.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&user, "Attribute %s: %s\n", k, in.Attributes[k])
	}
	fmt.Fprintf(&user, "Symptoms:\n%s", in.Text)

	content, _, err := c.complete(ctx, explainSystemPrompt, user.String())
	if err != nil {
		return nil, err
	}

	var exp Explanation
	if err := decodeJSON(content, &exp); err != nil {
		return nil, err
	}
	for _, f := range exp.Features {
		if strings.TrimSpace(f.Feature) == "" || math.IsNaN(f.Importance) || math.IsInf(f.Importance, 0) {
			return nil, fmt.Errorf("%w: invalid attribution %+v", ErrMalformedResponse, f)
		}
	}
	if exp.Method == "" {
		exp.Method = defaultExplainMethod
	}
	return &exp, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (content, model string, err error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("inference: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", ErrEmptyResponse
	}
	model = resp.Model
	if model == "" {
		model = c.model
	}
	return resp.Choices[0].Message.Content, model, nil
}

// decodeJSON strips markdown fences some endpoints add even in JSON mode and
// rejects unknown shapes.
func decodeJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		lines := strings.Split(raw, "\n")
		end := len(lines)
		if end > 1 && strings.TrimSpace(lines[end-1]) == "```" {
			end--
		}
		raw = strings.Join(lines[1:end], "\n")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func normalizeCandidates(in []Candidate) ([]Candidate, error) {
	if len(in) > maxCandidates {
		in = in[:maxCandidates]
	}
	out := make([]Candidate, 0, len(in))
	for _, cand := range in {
		cand.Code = strings.TrimSpace(cand.Code)
		if cand.Code == "" {
			return nil, fmt.Errorf("%w: candidate without code", ErrMalformedResponse)
		}
		if math.IsNaN(cand.Confidence) || cand.Confidence < 0 || cand.Confidence > 1 {
			return nil, fmt.Errorf("%w: confidence %v out of range for %s", ErrMalformedResponse, cand.Confidence, cand.Code)
		}
		cand.Category = dsm.Category(strings.ToLower(strings.TrimSpace(string(cand.Category))))
		if !dsm.ValidCategory(cand.Category) {
			cand.Category = dsm.CategoryOther
		}
		cand.Severity = dsm.ParseSeverity(string(cand.Severity))
		out = append(out, cand)
	}
	return out, nil
}
