package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"sketchmagic_back/dataurl"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModelID = "gemini-2.5-flash-image"
	defaultTimeout = 90 * time.Second
)

// TransformRequest is one sketch-to-image call.
type TransformRequest struct {
	Image       string
	Style       string
	Category    string
	Detail      string
	AspectRatio string
}

// Transformer turns a sketch into a generated image.
type Transformer interface {
	Transform(ctx context.Context, req TransformRequest) (string, error)
}

// Sketcher draws a reference underdrawing from a text prompt.
type Sketcher interface {
	Sketch(ctx context.Context, prompt string) (string, error)
}

// Client calls the Gemini generateContent REST endpoint. It never retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	modelID    string

	mu     sync.RWMutex
	apiKey string
}

// NewClientFromEnv reads GEMINI_API_KEY (or API_KEY), GEMINI_BASE_URL,
// GEMINI_MODEL_ID and GENERATOR_TIMEOUT. A missing key is not an error: calls
// fail with a credential error until SetAPIKey is used.
func NewClientFromEnv() (*Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}

	baseURL := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if raw := strings.TrimSpace(os.Getenv("GENERATOR_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("generator: invalid GENERATOR_TIMEOUT %q", raw)
		}
		timeout = parsed
	}

	return NewClient(baseURL, strings.TrimSpace(os.Getenv("GEMINI_MODEL_ID")), apiKey, &http.Client{Timeout: timeout})
}

// NewClient builds a client against baseURL. An empty modelID selects the
// default image model.
func NewClient(baseURL, modelID, apiKey string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("generator: invalid base URL %q", baseURL)
	}
	if modelID == "" {
		modelID = defaultModelID
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		modelID:    modelID,
		apiKey:     apiKey,
	}, nil
}

// SetAPIKey replaces the credential at runtime.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = strings.TrimSpace(key)
	c.mu.Unlock()
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool {
	return c.key() != ""
}

// key returns the current API key under the read lock.
func (c *Client) key() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type contentPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []contentPart `json:"parts"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Transform sends the sketch with the style prompt and returns the first
// generated image.
func (c *Client) Transform(ctx context.Context, req TransformRequest) (string, error) {
	ratio := strings.TrimSpace(req.AspectRatio)
	if ratio == "" {
		ratio = DefaultAspectRatio
	}
	if !IsSupportedAspectRatio(ratio) {
		return "", errorf(KindInvalidArgument, "unsupported aspect ratio %q", ratio)
	}

	mimeType, payload, err := dataurl.Split(req.Image)
	if err != nil {
		return "", newError(KindInvalidArgument, "sketch image", err)
	}

	parts := []contentPart{
		{InlineData: &inlineData{MimeType: mimeType, Data: payload}},
		{Text: BuildPrompt(req.Style, req.Category, req.Detail)},
	}
	return c.generate(ctx, parts, ratio)
}

// Sketch asks the model for a black-on-white reference drawing of prompt.
func (c *Client) Sketch(ctx context.Context, prompt string) (string, error) {
	subject := strings.TrimSpace(prompt)
	if subject == "" {
		return "", errorf(KindInvalidArgument, "sketch prompt is empty")
	}
	return c.generate(ctx, []contentPart{{Text: BuildSketchPrompt(subject)}}, DefaultAspectRatio)
}

// generate posts one generateContent call and returns the first inline image.
func (c *Client) generate(ctx context.Context, parts []contentPart, ratio string) (string, error) {
	if c == nil {
		return "", errors.New("generator: client is nil")
	}
	apiKey := c.key()
	if apiKey == "" {
		return "", errorf(KindCredential, "no API key configured")
	}

	payload := generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig:        &imageConfig{AspectRatio: ratio},
		},
	}
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return "", fmt.Errorf("generator: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.modelID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("generator: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", newError(KindTransient, "execute request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var decoded apiError
		_ = json.Unmarshal(snippet, &decoded)
		genErr := errorf(classifyStatus(resp.StatusCode, decoded), "unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
		genErr.Status = resp.StatusCode
		return "", genErr
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", newError(KindTransient, "decode response", err)
	}
	return extractImage(decoded)
}

// extractImage pulls the first inline image out of a response or classifies
// why there is none.
func extractImage(resp generateResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", errorf(KindSafety, "prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	finish := ""
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				mimeType := part.InlineData.MimeType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return "data:" + mimeType + ";base64," + part.InlineData.Data, nil
			}
		}
		if finish == "" {
			finish = candidate.FinishReason
		}
	}
	if isSafetyFinish(finish) {
		return "", errorf(KindSafety, "generation stopped: %s", finish)
	}
	return "", errorf(KindTransient, "response contained no image")
}
