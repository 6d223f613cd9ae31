/**
 * @description
 * This package provides a client for the payment provider's payouts API
 * (Stripe-compatible `POST /v1/payouts`). It encapsulates authentication, form
 * encoding of the payout request, idempotency headers, and decoding of both the
 * success payload and the provider's structured error body.
 *
 * @dependencies
 * - context, encoding/json, net/http, net/url: Standard Go libraries.
 */
package payoutclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned when the client has no credential configured.
var ErrMissingAPIKey = errors.New("payout api key is not set")

// Client is a client for the payouts API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new payouts API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PayoutRequest is one disbursement call.
type PayoutRequest struct {
	Amount              int64
	Currency            string
	Method              string
	StatementDescriptor string
	Destination         string
	IdempotencyKey      string
	Metadata            map[string]string
}

// Payout is the subset of the provider's payout object the gateway consumes.
type Payout struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// ProviderError represents an error from the payouts API.
type ProviderError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Param      string `json:"param"`
}

type errorEnvelope struct {
	Error *ProviderError `json:"error"`
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payout api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payout api error (%d): %s", e.StatusCode, e.Message)
}

// Configured reports whether the client can make authenticated calls.
func (c *Client) Configured() bool {
	return c != nil && c.APIKey != ""
}

// CreatePayout sends a payout request to the provider.
func (c *Client) CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIKey
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	if req.Method != "" {
		form.Set("method", req.Method)
	}
	if req.StatementDescriptor != "" {
		form.Set("statement_descriptor", req.StatementDescriptor)
	}
	if req.Destination != "" {
		form.Set("destination", req.Destination)
	}
	for key, value := range req.Metadata {
		form.Set("metadata["+key+"]", value)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/payouts", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create payout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute payout request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payout response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope errorEnvelope
		if err := json.Unmarshal(bodyBytes, &envelope); err != nil || envelope.Error == nil {
			log.Printf("level=warn component=payout_client op=create_payout status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, &ProviderError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		envelope.Error.StatusCode = resp.StatusCode
		log.Printf("level=warn component=payout_client op=create_payout status=%d type=%q code=%q", resp.StatusCode, envelope.Error.Type, envelope.Error.Code)
		return nil, envelope.Error
	}

	var payout Payout
	if err := json.Unmarshal(bodyBytes, &payout); err != nil {
		return nil, fmt.Errorf("failed to decode payout response: %w", err)
	}
	return &payout, nil
}
