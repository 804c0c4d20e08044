package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ClientError is an upstream 4xx response; it is never retried
type ClientError struct {
	Status int
	Body   string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("AI request failed with client error %d: %s", e.Status, e.Body)
}

// Observer is notified after every upstream call
type Observer func(mode, kind, status string, duration time.Duration)

// Option configures an OpenAIProvider
type Option func(*OpenAIProvider)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(p *OpenAIProvider) { p.httpClient = c }
}

// WithBackoff sets the base delay between retries
func WithBackoff(d time.Duration) Option {
	return func(p *OpenAIProvider) { p.backoff = d }
}

// WithObserver registers a call observer
func WithObserver(o Observer) Option {
	return func(p *OpenAIProvider) { p.observer = o }
}

// OpenAIProvider talks to an OpenAI compatible chat/completions endpoint
type OpenAIProvider struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    time.Duration
	observer   Observer
	logger     *logrus.Logger
}

// NewOpenAIProvider creates a provider for cfg
func NewOpenAIProvider(cfg config.ProviderConfig, logger *logrus.Logger, opts ...Option) *OpenAIProvider {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	p := &OpenAIProvider{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: cfg.Timeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, burst),
		backoff: 2 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	logger.WithFields(logrus.Fields{
		"baseURL": cfg.BaseURL,
		"model":   cfg.DefaultModel,
	}).Info("AI provider initialized")

	return p
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate gets a complete response with retry logic
func (p *OpenAIProvider) Generate(ctx context.Context, prompt Prompt) (string, error) {
	maxRetries := p.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		response, err := p.generateOnce(ctx, prompt, attempt)
		if err == nil {
			return response, nil
		}
		lastErr = err

		var clientErr *ClientError
		if errors.As(err, &clientErr) || ctx.Err() != nil {
			break
		}

		p.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
			"mode":    prompt.Mode,
		}).Warn("AI request failed, retrying...")

		if attempt < maxRetries {
			// Exponential backoff: base, 2*base, 4*base
			wait := p.backoff << uint(attempt-1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
}

func (p *OpenAIProvider) generateOnce(ctx context.Context, prompt Prompt, attempt int) (string, error) {
	start := time.Now()
	status := "error"
	defer func() { p.observe(prompt, "generate", status, time.Since(start)) }()

	reqCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	resp, err := p.send(reqCtx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if err := p.checkStatus(resp.StatusCode, body, attempt); err != nil {
		return "", err
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != nil && result.Error.Message != "" {
		return "", fmt.Errorf("AI error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	status = "ok"
	return result.Choices[0].Message.Content, nil
}

// GenerateStream opens a streaming completion. Streams are not retried.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, prompt Prompt) (Stream, error) {
	start := time.Now()

	resp, err := p.send(ctx, prompt, true)
	if err != nil {
		p.observe(prompt, "stream", "error", time.Since(start))
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		p.observe(prompt, "stream", "error", time.Since(start))
		return nil, p.checkStatus(resp.StatusCode, body, 1)
	}

	p.observe(prompt, "stream", "ok", time.Since(start))
	return &sseStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

func (p *OpenAIProvider) send(ctx context.Context, prompt Prompt, stream bool) (*http.Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider throttle: %w", err)
	}

	messages := make([]Message, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		messages = append(messages, Message{Role: "system", Content: prompt.System})
	}
	messages = append(messages, prompt.Messages...)

	reqBody := completionRequest{
		Model:       p.cfg.ModelFor(string(prompt.Mode)),
		Messages:    messages,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: prompt.Temperature,
		Stream:      stream,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(p.cfg.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.cfg.APIKey))
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	p.logger.WithFields(logrus.Fields{
		"model":  reqBody.Model,
		"stream": stream,
	}).Debug("Sending AI request")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func (p *OpenAIProvider) checkStatus(status int, body []byte, attempt int) error {
	if status == http.StatusOK {
		return nil
	}

	p.logger.WithFields(logrus.Fields{
		"status":  status,
		"body":    string(body),
		"attempt": attempt,
	}).Error("AI request failed")

	// Don't retry for client errors (4xx)
	if status >= 400 && status < 500 {
		return &ClientError{Status: status, Body: string(body)}
	}
	return fmt.Errorf("AI request failed with status %d: %s", status, string(body))
}

func (p *OpenAIProvider) observe(prompt Prompt, kind, status string, d time.Duration) {
	if p.observer != nil {
		p.observer(string(prompt.Mode), kind, status, d)
	}
}

type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

// Recv returns the next non-empty content delta
func (s *sseStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}

		data, err := s.readEvent()
		if err == io.EOF {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("failed to read stream: %w", err)
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return "", io.EOF
		}

		var chunk completionResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return "", fmt.Errorf("failed to parse stream chunk: %w", err)
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return "", fmt.Errorf("AI error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

// readEvent returns the joined data lines of the next SSE event
func (s *sseStream) readEvent() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		// Ignore other fields (event:, id:, retry:, comments)
		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
	}
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}
