package client

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

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config is read from SIMGATE_* environment variables.
type Config struct {
	URL          string        `envconfig:"URL" default:"http://localhost:8080"`
	Token        string        `envconfig:"TOKEN"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
	PollTimeout  time.Duration `envconfig:"POLL_TIMEOUT" default:"60s"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("SIMGATE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process client env: %w", err)
	}
	return &cfg, nil
}

type Transaction struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	Operator        string  `json:"operator"`
	PhoneNumber     string  `json:"phone_number"`
	Status          string  `json:"status"`
	RawResponse     string  `json:"raw_response"`
	CustomerMessage string  `json:"customer_message"`
	UssdCode        string  `json:"ussd_code"`
	Amount          float64 `json:"amount,omitempty"`
	DateResponse    int64   `json:"date_response"`
}

type Profile struct {
	ID      string  `json:"id"`
	Phone   string  `json:"phone"`
	Role    string  `json:"role"`
	Balance float64 `json:"balance"`
}

type ActivationRequest struct {
	Operator    string `json:"operator"`
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Serial      string `json:"serial,omitempty"`
}

type TopupRequest struct {
	Operator    string  `json:"operator"`
	PhoneNumber string  `json:"phone_number"`
	Amount      float64 `json:"amount"`
	Offer       string  `json:"offer,omitempty"`
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(cfg *Config, logger *logrus.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/") + "/api/v1",
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions/"+id, nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) SubmitActivation(ctx context.Context, req ActivationRequest) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, http.MethodPost, "/activations", req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) SubmitTopup(ctx context.Context, req TopupRequest) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, http.MethodPost, "/topups", req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
