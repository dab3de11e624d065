package nlp_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the NLP service is considered down.
var ErrCircuitOpen = errors.New("nlp service circuit breaker is open")

// StatusError is a non-200 reply of the NLP service. The body is relayed to
// the API caller unchanged.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("NLP service returned status %d: %s", e.StatusCode, string(e.Body))
}

type Config struct {
	BaseURL          string
	ServiceToken     string
	Timeout          time.Duration
	BreakerFailures  uint32
	BreakerOpenDelay time.Duration
	// OnRequest, when set, is told the outcome of every call.
	OnRequest func(operation, outcome string, elapsed time.Duration)
}

// Client is a client for the NLP training service API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	onRequest  func(operation, outcome string, elapsed time.Duration)
	logger     *zap.Logger
}

// TrainRequest asks the NLP service to train one language of a version.
type TrainRequest struct {
	RepositoryVersion       int64  `json:"repository_version"`
	ByUser                  int64  `json:"by_user"`
	RepositoryAuthorization string `json:"repository_authorization"`
	Language                string `json:"language"`
}

type EvaluateRequest struct {
	RepositoryVersion       int64  `json:"repository_version"`
	ByUser                  int64  `json:"by_user"`
	RepositoryAuthorization string `json:"repository_authorization"`
	Language                string `json:"language"`
}

type ParseRequest struct {
	RepositoryVersion       int64  `json:"repository_version"`
	RepositoryAuthorization string `json:"repository_authorization"`
	Language                string `json:"language"`
	Text                    string `json:"text"`
}

// TaskStatus is the state of a queued training or evaluation task.
type TaskStatus struct {
	Status  int     `json:"status"`
	MLUnits float64 `json:"ml_units"`
}

// UnmarshalJSON accepts status as a number or a numeric string.
func (t *TaskStatus) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status  json.RawMessage `json:"status"`
		MLUnits *float64        `json:"ml_units"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.MLUnits != nil {
		t.MLUnits = *raw.MLUnits
	}
	s := strings.Trim(string(raw.Status), `"`)
	if s == "" || s == "null" {
		return errors.New("task status: missing status")
	}
	status, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("task status: %w", err)
	}
	t.Status = status
	return nil
}

// Queue names understood by the task-queue endpoint, indexed by from_queue.
var queueNames = map[int]string{
	0: "celery",
	1: "ai-platform",
}

// NewClient creates a new NLP service client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        "nlp",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// upstream replies, even 5xx, prove the service is reachable
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			return err == nil || errors.As(err, &statusErr) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("NLP circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.ServiceToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		onRequest:  cfg.OnRequest,
		logger:     logger,
	}
}

// base picks the repository's own NLP server when it has one.
func (c *Client) base(server string) string {
	if server != "" {
		return strings.TrimRight(server, "/")
	}
	return c.baseURL
}

// Outcomes reported to Config.OnRequest.
const (
	OutcomeOK          = "ok"
	OutcomeUpstream    = "upstream_error"
	OutcomeTransport   = "transport_error"
	OutcomeCircuitOpen = "circuit_open"
)

func outcome(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrCircuitOpen):
		return OutcomeCircuitOpen
	case errors.As(err, &statusErr):
		return OutcomeUpstream
	default:
		return OutcomeTransport
	}
}

func (c *Client) do(ctx context.Context, operation, method, endpoint string, payload any) ([]byte, error) {
	start := time.Now()
	body, err := c.send(ctx, method, endpoint, payload)
	if c.onRequest != nil {
		c.onRequest(operation, outcome(err), time.Since(start))
	}
	return body, err
}

// send issues one request through the breaker and returns the raw 200 body.
func (c *Client) send(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
		}
		return respBody, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		c.logger.Warn("NLP request failed", zap.String("url", endpoint), zap.Error(err))
		return nil, err
	}
	return result.([]byte), nil
}

// Train forwards a training request and returns the service reply as is.
func (c *Client) Train(ctx context.Context, server string, req TrainRequest) (json.RawMessage, error) {
	return c.do(ctx, "train", http.MethodPost, c.base(server)+"/v2/train/", req)
}

func (c *Client) Evaluate(ctx context.Context, server string, req EvaluateRequest) (json.RawMessage, error) {
	return c.do(ctx, "evaluate", http.MethodPost, c.base(server)+"/v2/evaluate/", req)
}

func (c *Client) Parse(ctx context.Context, server string, req ParseRequest) (json.RawMessage, error) {
	return c.do(ctx, "parse", http.MethodPost, c.base(server)+"/v2/parse/", req)
}

// TaskStatus polls the task queue for a training or evaluation task.
func (c *Client) TaskStatus(ctx context.Context, idTask string, fromQueue int) (*TaskStatus, error) {
	params := url.Values{}
	params.Set("id_task", idTask)
	params.Set("from_queue", queueNames[fromQueue])

	body, err := c.do(ctx, "task_status", http.MethodGet, c.baseURL+"/v2/task-queue/?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result TaskStatus
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
