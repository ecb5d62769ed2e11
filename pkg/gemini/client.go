package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoldenRal/modSTR/pkg/config"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

const (
	defaultTimeout    = 120 * time.Second
	resourceExhausted = "RESOURCE_EXHAUSTED"
)

var (
	errAPIKeyRequired = errors.New("gemini api key is required")
	errLoggerRequired = errors.New("gemini logger is required")

	// ErrRateLimited marks a provider refusal caused by rate limiting. Callers
	// match it with errors.Is to decide whether to back off and retry.
	ErrRateLimited = errors.New("gemini rate limited")

	// ErrEmptyResponse marks a completed call that produced no candidate text.
	ErrEmptyResponse = errors.New("gemini returned no candidates")
)

// Client wraps the Gemini generateContent REST endpoint with centralized
// auth, logging, and error mapping.
type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	logger     *logger.Logger
}

// NewClient initializes the Gemini wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.GeminiConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     logg,
	}

	logg.Info(ctx, "gemini client initialized")
	return c, nil
}

// Model reports the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// GenerateContent performs one generateContent call and returns the first
// candidate's text along with the token counts the provider reports.
func (c *Client) GenerateContent(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	if c == nil {
		return nil, errAPIKeyRequired
	}

	payload, err := params.toRequest()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gemini request")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding gemini request")
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building gemini request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	c.log(ctx, "request", params.Operation, map[string]any{
		"model":      c.model,
		"file_parts": len(params.Files),
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx, "error", params.Operation, map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "gemini request failed")
	}
	defer closeBody(ctx, c.logger, resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "reading gemini response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.mapAPIError(ctx, params.Operation, resp.StatusCode, raw)
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decoding gemini response")
	}

	text := decoded.firstCandidateText()
	if text == "" {
		c.log(ctx, "error", params.Operation, map[string]any{"error": "empty response"})
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, ErrEmptyResponse, "gemini returned no text")
	}

	result := &GenerateResult{
		Text:             text,
		PromptTokens:     decoded.UsageMetadata.PromptTokenCount,
		CompletionTokens: decoded.UsageMetadata.CandidatesTokenCount,
	}
	c.log(ctx, "response", params.Operation, map[string]any{
		"prompt_tokens":     result.PromptTokens,
		"completion_tokens": result.CompletionTokens,
	})
	return result, nil
}

func (c *Client) mapAPIError(ctx context.Context, op string, status int, raw []byte) error {
	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &payload)

	c.log(ctx, "error", op, map[string]any{
		"status":  status,
		"api_err": payload.Error.Status,
	})

	if status == http.StatusTooManyRequests || payload.Error.Status == resourceExhausted {
		return pkgerrors.Wrap(pkgerrors.CodeRateLimited, ErrRateLimited, "gemini rate limit hit")
	}

	message := strings.TrimSpace(payload.Error.Message)
	if message == "" {
		message = fmt.Sprintf("gemini returned status %d", status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, message)
	case status >= 400 && status < 500:
		return pkgerrors.New(pkgerrors.CodeProvider, message)
	default:
		return pkgerrors.New(pkgerrors.CodeProvider, message)
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("gemini %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("gemini %s", phase))
	}
}

func closeBody(ctx context.Context, logg *logger.Logger, body io.Closer) {
	if body == nil {
		return
	}
	if err := body.Close(); err != nil && logg != nil {
		logg.Warn(ctx, "closing gemini response body")
	}
}
