package judgment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"SigWatch/internal/domain/models"
	"SigWatch/internal/domain/repository"
	apphttp "SigWatch/pkg/http"
	"SigWatch/pkg/logger"

	"github.com/go-playground/validator/v10"
)

const defaultSystemPrompt = "You are a monitoring analyst. Evaluate the supplied evidence and respond with a single JSON object: {\"signal\": one of STRONG_SELL|SELL|WAIT|BUY|STRONG_BUY, \"urgency\": one of info|warning|error, \"message\": short free-text rationale, \"action\": optional suggested action, \"position\": optional position note}. Respond with JSON only, no prose around it."

// ClientOption configures Client.
type ClientOption func(*Client)

// Client calls an OpenAI-compatible judgment provider and normalizes
// its response into an AnalysisOutcome. Transient failures are retried
// with exponential backoff; schema failures are not.
type Client struct {
	httpc       *apphttp.Client
	endpoint    string
	apiKey      string
	model       string
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	log         *logger.Logger
	metrics     repository.Metrics
	validate    *validator.Validate
}

// NewClient creates a judgment client.
func NewClient(log *logger.Logger, endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		httpc:       apphttp.NewClient(apphttp.WithTimeout(30 * time.Second)),
		endpoint:    strings.TrimRight(endpoint, "/"),
		model:       "gpt-4o-mini",
		maxAttempts: 3,
		backoffBase: 500 * time.Millisecond,
		backoffMax:  5 * time.Second,
		log:         log,
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithModel sets the default model.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithRequestTimeout sets the per-attempt HTTP timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpc = apphttp.NewClient(apphttp.WithTimeout(d))
		}
	}
}

// WithRetry sets attempt count and backoff bounds.
func WithRetry(maxAttempts int, base, max time.Duration) ClientOption {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if base > 0 {
			c.backoffBase = base
		}
		if max > 0 {
			c.backoffMax = max
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m repository.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// judgmentResponse is the fixed schema every provider response must
// conform to. Anything else is a MalformedJudgmentResponse.
type judgmentResponse struct {
	Signal   string `json:"signal" validate:"required,oneof=STRONG_SELL SELL WAIT BUY STRONG_BUY"`
	Urgency  string `json:"urgency" validate:"required,oneof=info warning error"`
	Message  string `json:"message" validate:"required"`
	Action   string `json:"action"`
	Position string `json:"position"`
}

// Analyze asks the provider for an outcome. On unrecoverable failure it
// returns a degraded WAIT outcome together with the classifying error,
// never a nil outcome.
func (c *Client) Analyze(ctx context.Context, entity *models.Entity, req *models.JudgmentRequest) (*models.AnalysisOutcome, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.RecordJudgmentRetry()
			}
			if err := c.sleep(ctx, attempt); err != nil {
				lastErr = fmt.Errorf("%w: %v", models.ErrTransientProvider, err)
				break
			}
		}

		outcome, err := c.attempt(ctx, entity, req)
		if err == nil {
			return outcome, nil
		}
		if !retryable(err) {
			c.log.Error("judgment response rejected",
				logger.String("entity_id", entity.ID),
				logger.Error(err),
			)
			return models.DegradedOutcome(models.SourceJudgment, "judgment provider returned an invalid response"), err
		}
		lastErr = err
		c.log.Warn("judgment attempt failed",
			logger.String("entity_id", entity.ID),
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)
	}

	return models.DegradedOutcome(models.SourceJudgment, "judgment provider unavailable, degraded to WAIT"), lastErr
}

func (c *Client) attempt(ctx context.Context, entity *models.Entity, req *models.JudgmentRequest) (*models.AnalysisOutcome, error) {
	system := defaultSystemPrompt
	model := c.model
	if entity.Judgment != nil {
		if entity.Judgment.Prompt != "" {
			system = entity.Judgment.Prompt + "\n\n" + defaultSystemPrompt
		}
		if entity.Judgment.Model != "" {
			model = entity.Judgment.Model
		}
	}

	userPayload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", models.ErrMalformedJudgmentResponse, err)
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: string(userPayload)},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp chatResponse
	err = c.httpc.SendAndParse(ctx, &apphttp.RequestOptions{
		Method:  "POST",
		URL:     c.endpoint + "/chat/completions",
		Headers: headers,
		Body:    body,
	}, &resp)
	if err != nil {
		if se, ok := apphttp.AsStatusError(err); ok {
			if se.Transient() {
				return nil, fmt.Errorf("%w: provider status %d", models.ErrTransientProvider, se.Code)
			}
			return nil, fmt.Errorf("%w: provider status %d", models.ErrMalformedJudgmentResponse, se.Code)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTransientProvider, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", models.ErrMalformedJudgmentResponse)
	}

	return c.parseContent(resp.Choices[0].Message.Content)
}

func (c *Client) parseContent(content string) (*models.AnalysisOutcome, error) {
	var jr judgmentResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &jr); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedJudgmentResponse, err)
	}
	if err := c.validate.Struct(&jr); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedJudgmentResponse, err)
	}

	sig, err := models.ParseSignal(jr.Signal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedJudgmentResponse, err)
	}

	return &models.AnalysisOutcome{
		Signal:   sig,
		Urgency:  models.Urgency(jr.Urgency),
		Message:  jr.Message,
		Source:   models.SourceJudgment,
		Action:   jr.Action,
		Position: jr.Position,
	}, nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	d := c.backoffBase << (attempt - 1)
	if d > c.backoffMax {
		d = c.backoffMax
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryable(err error) bool {
	return errors.Is(err, models.ErrTransientProvider)
}

// extractJSON strips markdown code fences some providers wrap around
// JSON payloads.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		return strings.TrimSpace(s)
	}
	// tolerate prose around a single JSON object
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i : j+1]
		}
	}
	return s
}
