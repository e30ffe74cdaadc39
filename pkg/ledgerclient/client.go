/**
 * @description
 * Client for the ledger (transaction) service. The execution runner uses it
 * to record the financial transaction produced by one schedule occurrence.
 */

package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateTransactionParams is the payload for recording one ledger transaction.
type CreateTransactionParams struct {
	HouseholdID          uuid.UUID  `json:"household_id"`
	RequestorID          uuid.UUID  `json:"requestor_id"`
	Amount               int64      `json:"amount"` // in kobo
	Currency             string     `json:"currency"`
	SourceAccountID      uuid.UUID  `json:"source_account_id"`
	DestinationAccountID *uuid.UUID `json:"destination_account_id,omitempty"`
	CategoryID           *uuid.UUID `json:"category_id,omitempty"`
	Description          string     `json:"description"`
	Date                 time.Time  `json:"date"`
}

// Client is a client for the ledger service's internal API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new ledger service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateTransaction records a transaction and returns the ledger's
// transaction ID. Any non-2xx response is returned as an error; the caller
// treats it as an execution failure.
func (c *Client) CreateTransaction(ctx context.Context, params CreateTransactionParams) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("ledger service base URL is not configured")
	}

	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transaction payload: %w", err)
	}

	url := fmt.Sprintf("%s/transactions/internal/transactions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request to ledger service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			return "", fmt.Errorf("ledger service rejected transaction (status %d): %s", resp.StatusCode, errBody.Error)
		}
		return "", fmt.Errorf("ledger service returned error status %d", resp.StatusCode)
	}

	var result struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode ledger service response: %w", err)
	}
	if result.TransactionID == "" {
		return "", fmt.Errorf("ledger service response missing transaction id")
	}

	return result.TransactionID, nil
}
