/**
 * @description
 * Client for the household service's permission API. Every lifecycle
 * operation on a schedule is authorized through it before touching the store.
 */

package permissionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrPermissionDenied is returned when the household service rejects the
// requested permission for the user.
var ErrPermissionDenied = errors.New("permission denied")

// Client is a client for the household service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new household permission client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type checkPermissionPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	HouseholdID uuid.UUID `json:"household_id"`
	Permission  string    `json:"permission"`
}

// CheckPermission verifies that the user holds the permission within the
// household. It returns nil when allowed, ErrPermissionDenied when the
// household service answers 403, and a transport error otherwise.
func (c *Client) CheckPermission(ctx context.Context, userID, householdID uuid.UUID, permission string) error {
	if c.baseURL == "" {
		return fmt.Errorf("household service base URL is not configured")
	}

	body, err := json.Marshal(checkPermissionPayload{
		UserID:      userID,
		HouseholdID: householdID,
		Permission:  permission,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal permission payload: %w", err)
	}

	url := fmt.Sprintf("%s/households/internal/permissions/check", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to household service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return ErrPermissionDenied
	case resp.StatusCode >= 400:
		return fmt.Errorf("household service returned error status %d", resp.StatusCode)
	}

	return nil
}
