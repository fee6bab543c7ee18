package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ProductInput carries the product fields the prompts are built from.
type ProductInput struct {
	Code        string
	Description string
	Brand       string
	Model       string
	Category    string
	Specs       map[string]string
}

// Models selects which model serves each generation task.
type Models struct {
	Content string
	Specs   string
	GTIN    string
}

// Generator produces catalog content from product data.
type Generator struct {
	client    Client
	models    Models
	maxTokens int64
}

// NewGenerator creates a Generator on top of a Client.
func NewGenerator(client Client, models Models, maxTokens int64) *Generator {
	return &Generator{client: client, models: models, maxTokens: maxTokens}
}

const contentSystemPrompt = `You write Spanish-language marketplace listings for an
Ecuadorian electronics retailer. Respond with only the requested text, no
preamble and no markdown.`

func (g *Generator) describeProduct(in ProductInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Code: %s\nDescription: %s\n", in.Code, in.Description)
	if in.Brand != "" {
		fmt.Fprintf(&b, "Brand: %s\n", in.Brand)
	}
	if in.Model != "" {
		fmt.Fprintf(&b, "Model: %s\n", in.Model)
	}
	if in.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", in.Category)
	}
	for k, v := range in.Specs {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return b.String()
}

func (g *Generator) complete(ctx context.Context, model, system, prompt, stage string) (string, error) {
	resp, err := g.client.CreateMessage(ctx, MessageRequest{
		Model:     model,
		MaxTokens: g.maxTokens,
		System:    []SystemBlock{{Text: system}},
		Messages:  []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(model, stage)
	return strings.TrimSpace(resp.Text()), nil
}

// GenerateTitle produces a marketplace listing title. Length and denylist
// enforcement happen in the content stage, not here.
func (g *Generator) GenerateTitle(ctx context.Context, in ProductInput) (string, error) {
	prompt := fmt.Sprintf(
		"Write a listing title for this product. One line, at most 60 characters, "+
			"brand and model first, no promotional words.\n\n%s",
		g.describeProduct(in))
	title, err := g.complete(ctx, g.models.Content, contentSystemPrompt, prompt, "content_title")
	if err != nil {
		return "", eris.Wrap(err, "generate title")
	}
	// Models occasionally wrap the title in quotes despite instructions.
	return strings.Trim(title, `"“”`), nil
}

// GenerateDescription produces a multi-paragraph listing description.
func (g *Generator) GenerateDescription(ctx context.Context, in ProductInput) (string, error) {
	prompt := fmt.Sprintf(
		"Write a listing description for this product: two or three short paragraphs "+
			"followed by a bullet list of key specifications. Plain text only.\n\n%s",
		g.describeProduct(in))
	desc, err := g.complete(ctx, g.models.Content, contentSystemPrompt, prompt, "content_description")
	if err != nil {
		return "", eris.Wrap(err, "generate description")
	}
	return desc, nil
}

const specsSystemPrompt = `You extract technical specifications from product
descriptions. Respond with a single JSON object mapping attribute names to
string values. Use lowercase Spanish attribute names. Respond with JSON only.`

// GenerateSpecs extracts a structured attribute map from the raw description.
func (g *Generator) GenerateSpecs(ctx context.Context, in ProductInput) (map[string]string, error) {
	prompt := fmt.Sprintf("Extract the specifications of this product.\n\n%s", g.describeProduct(in))
	raw, err := g.complete(ctx, g.models.Specs, specsSystemPrompt, prompt, "specs")
	if err != nil {
		return nil, eris.Wrap(err, "generate specs")
	}

	specs := map[string]string{}
	if err := json.Unmarshal([]byte(stripFences(raw)), &specs); err != nil {
		return nil, eris.Wrapf(err, "generate specs: parse model output %q", truncateForLog(raw))
	}
	return specs, nil
}

const gtinSystemPrompt = `You identify GTIN barcodes (UPC, EAN) for retail
products. Respond with a single JSON object: {"gtin": "<digits>"} when you know
the product's GTIN with high confidence, or {"gtin": null} when you do not.
Never guess. Respond with JSON only.`

// SearchGTIN asks the model for the barcode of the product named by query,
// from its own knowledge. Returns the empty string when the model does not
// know. The caller chooses the query text, so the same call serves every
// lookup strategy.
func (g *Generator) SearchGTIN(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf("What is the GTIN of this product?\n\n%s", query)
	raw, err := g.complete(ctx, g.models.GTIN, gtinSystemPrompt, prompt, "gtin")
	if err != nil {
		return "", eris.Wrap(err, "search gtin")
	}

	var out struct {
		GTIN *string `json:"gtin"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return "", eris.Wrapf(err, "search gtin: parse model output %q", truncateForLog(raw))
	}
	if out.GTIN == nil {
		return "", nil
	}
	return strings.TrimSpace(*out.GTIN), nil
}

// stripFences removes a markdown code fence if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
