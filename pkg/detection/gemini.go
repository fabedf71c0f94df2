package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/httpclient"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// candidateTextPath pulls the generated text out of a generateContent response.
var candidateTextPath = jmespath.MustCompile("candidates[0].content.parts[0].text")

// GeminiConfig holds the Gemini provider settings.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GeminiDetector asks Gemini to name the quantity and price fields of a
// sample record.
type GeminiDetector struct {
	cfg    GeminiConfig
	client *httpclient.Client
	logger ectologger.Logger
}

// NewGeminiDetector creates a GeminiDetector.
func NewGeminiDetector(cfg GeminiConfig, client *httpclient.Client, logger ectologger.Logger) *GeminiDetector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	return &GeminiDetector{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// DetectFields sends the sample to Gemini and parses its JSON verdict.
func (d *GeminiDetector) DetectFields(ctx context.Context, sample map[string]any) (*Result, error) {
	prompt, err := buildPrompt(sample)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build detection prompt")
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(d.cfg.BaseURL, "/"), d.cfg.Model)
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": prompt}}},
		},
	}
	headers := map[string]string{"x-goog-api-key": d.cfg.APIKey}

	resp, err := d.client.PostJSON(ctx, url, headers, body)
	if err != nil {
		return nil, errors.Wrap(err, "detection request failed")
	}
	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return nil, errors.Errorf("detection request returned status %d", resp.StatusCode)
	}

	if err := httpclient.ParseResponse(resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse detection response")
	}

	text, err := candidateTextPath.Search(resp.BodyJSON)
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract candidate text")
	}
	answer, ok := text.(string)
	if !ok || answer == "" {
		return nil, errors.New("detection response contained no candidate text")
	}

	quantityField, priceField, err := parseVerdict(answer)
	if err != nil {
		return nil, err
	}

	raw, _ := resp.BodyJSON.(map[string]any)

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"quantity_field": stringOrNull(quantityField),
		"price_field":    stringOrNull(priceField),
	}).Info("field detection completed")

	return &Result{
		QuantityField: quantityField,
		PriceField:    priceField,
		Raw:           raw,
	}, nil
}

// buildPrompt renders the detection prompt around the sample record.
func buildPrompt(sample map[string]any) (string, error) {
	sampleJSON, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`
Identify which fields represent quantity and price in this retail data.
Data: %s

Return JSON with exactly this structure:
{
  "quantity_field": "<field_name_or_null>",
  "price_field": "<field_name_or_null>"
}

Only return the JSON, no other text.
`, string(sampleJSON)), nil
}

// parseVerdict decodes the model's JSON answer, tolerating markdown fences.
func parseVerdict(text string) (*string, *string, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[7:]
	}
	if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[3:]
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = cleaned[:len(cleaned)-3]
	}
	cleaned = strings.TrimSpace(cleaned)

	var verdict struct {
		QuantityField any `json:"quantity_field"`
		PriceField    any `json:"price_field"`
	}
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return nil, nil, errors.Wrap(err, "detection verdict was not valid JSON")
	}

	return asFieldName(verdict.QuantityField), asFieldName(verdict.PriceField), nil
}

// asFieldName accepts only non-empty strings as detected field names.
func asFieldName(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" || s == "null" {
		return nil
	}
	return &s
}

func stringOrNull(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
