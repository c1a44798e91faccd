package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// Client talks to the Gemini generateContent API. Two operations are
// exposed: Analyze (text out) and Generate (image out). Model selection is
// per call; the client itself is tier-agnostic.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
}

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// RPS caps outgoing requests per second; 0 disables pacing.
	RPS   float64
	Burst int
}

type ImageInput struct {
	Data     []byte
	MimeType string
}

// SamplingConfig mirrors the generationConfig block of a generate call.
// Zero values are omitted from the wire request.
type SamplingConfig struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int

	// ResponseModalities requests image output; image models need
	// ["TEXT","IMAGE"] or they reply with text only.
	ResponseModalities []string
}

// Result is the payload of a generate call. ImageData may be nil; callers
// decide whether that is a failure.
type Result struct {
	ImageData []byte
	MimeType  string
	Text      string
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limit := rate.Inf
	burst := opts.Burst
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
		if burst < 1 {
			burst = 1
		}
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: opts.HTTPClient,
		logger:     logger,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// Analyze sends the instruction plus image attachments to a text-capable
// model and returns the raw response text. When JSON is expected the text
// may arrive wrapped in markdown fences; see ParseModelJSON.
func (c *Client) Analyze(ctx context.Context, model, instruction string, images ...ImageInput) (string, error) {
	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: buildParts(instruction, images)}},
	}

	resp, err := c.generateContent(ctx, model, req)
	if err != nil {
		return "", err
	}

	text, _, _ := extractParts(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("model %s returned no text", model)
	}
	return text, nil
}

// Generate sends the instruction plus image attachments to an image-capable
// model. The returned Result carries no image when the model declined to
// produce one; that is not an error at this layer.
func (c *Client) Generate(ctx context.Context, model, instruction string, images []ImageInput, cfg SamplingConfig) (Result, error) {
	gen := generationConfig{
		Temperature:        cfg.Temperature,
		TopP:               cfg.TopP,
		TopK:               cfg.TopK,
		MaxOutputTokens:    cfg.MaxOutputTokens,
		ResponseModalities: cfg.ResponseModalities,
	}

	req := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: buildParts(instruction, images)}},
		GenerationConfig: &gen,
	}

	resp, err := c.generateContent(ctx, model, req)
	if err != nil {
		return Result{}, err
	}

	text, imageData, mimeType := extractParts(resp)
	return Result{ImageData: imageData, MimeType: mimeType, Text: text}, nil
}

func buildParts(instruction string, images []ImageInput) []part {
	parts := make([]part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, part{InlineData: &blob{
			Data:     base64.StdEncoding.EncodeToString(img.Data),
			MimeType: img.MimeType,
		}})
	}
	parts = append(parts, part{Text: instruction})
	return parts
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (generateContentResponse, error) {
	if c.httpClient == nil {
		return generateContentResponse{}, errors.New("http client is nil")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return generateContentResponse{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return generateContentResponse{}, fmt.Errorf("vision API %s: %s", httpResp.Status, strings.TrimSpace(string(rawBody)))
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return decoded, nil
}

func extractParts(resp generateContentResponse) (text string, imageData []byte, mimeType string) {
	if len(resp.Candidates) == 0 {
		return "", nil, ""
	}

	var textBuilder strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			textBuilder.WriteString(p.Text)
		}
		if imageData == nil && p.InlineData != nil && p.InlineData.Data != "" {
			decoded, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err == nil && len(decoded) > 0 {
				imageData = decoded
				mimeType = p.InlineData.MimeType
			}
		}
	}

	return textBuilder.String(), imageData, mimeType
}
