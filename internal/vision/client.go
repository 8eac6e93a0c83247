// Package vision asks a chat-completions style vision model to name the bird in a photo.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/httpclient"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/species"
)

// Prompt is the fixed instruction sent with every photo.
const Prompt = `Identify the bird in this photo. Answer in plain text with exactly these four lines and nothing else:
Common Name: <common name>
Scientific Name: <binomial name>
Species: <species>
Family: <family>`

const (
	// DefaultMaxTokens is enough for the four-line answer.
	DefaultMaxTokens = 300
	DefaultModel     = "gpt-4o"
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultTimeout   = 60 * time.Second

	maxErrorBody = 512
)

// Config holds the vision endpoint settings.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Client calls the vision model. It makes a single attempt per Identify call.
type Client struct {
	config     Config
	httpClient *httpclient.Client
	log        logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, mainly so tests can inject transports.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient validates config and returns a client.
func NewClient(config Config, opts ...Option) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("vision API key is required").
			Component("vision").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	c := &Client{config: config}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().Module("vision")
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.New(&httpclient.Config{DefaultTimeout: config.Timeout, Logger: c.log})
	}
	return c, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.httpClient.Close()
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// newRequest builds the chat completion body for a base64 JPEG.
func (c *Client) newRequest(base64Image string) chatRequest {
	return chatRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64Image}},
			},
		}},
	}
}

// Identify sends a base64 encoded JPEG to the model and parses its answer.
// Transport failures, non-2xx statuses, empty or undecodable bodies and answers without
// content all fail with CategoryIdentification.
func (c *Client) Identify(ctx context.Context, base64Image string) (species.Record, error) {
	start := time.Now()
	endpoint := c.config.BaseURL + "/chat/completions"
	log := c.log.WithContext(ctx)

	resp, err := c.httpClient.PostJSON(ctx, endpoint,
		map[string]string{"Authorization": "Bearer " + c.config.APIKey},
		c.newRequest(base64Image))
	if err != nil {
		return species.Record{}, identificationError(err, "request").
			NetworkContext(endpoint, c.config.Timeout).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return species.Record{}, identificationError(err, "read_body").Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("vision model returned error status",
			logger.Int("status_code", resp.StatusCode),
			logger.String("body", logger.RedactSensitiveData(truncate(body))))
		return species.Record{}, identificationError(
			fmt.Errorf("vision model returned status %d: %s", resp.StatusCode, truncate(body)), "status").
			Context("status_code", resp.StatusCode).
			Build()
	}

	if strings.TrimSpace(string(body)) == "" {
		return species.Record{}, identificationError(fmt.Errorf("vision model returned an empty body"), "decode").Build()
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return species.Record{}, identificationError(fmt.Errorf("failed to decode vision response: %w", err), "decode").
			Context("response_size", len(body)).
			Build()
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return species.Record{}, identificationError(fmt.Errorf("vision model returned no answer"), "decode").Build()
	}

	rec := ParseAnswer(parsed.Choices[0].Message.Content)
	log.Debug("vision model answered",
		logger.String("common_name", rec.CommonName),
		logger.String("scientific_name", rec.ScientificName),
		logger.Duration("elapsed", time.Since(start)))

	return rec, nil
}

func identificationError(err error, operation string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("vision").
		Category(errors.CategoryIdentification).
		Context("operation", operation)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
