// Package verify is the client for the external face-verification service.
// The service itself is out of scope; this is the narrow interface the
// worker consumes, with a bounded request timeout.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result is the verification outcome.
type Result struct {
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

// Client calls the external verification service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a verification client. timeout bounds every request;
// the service being slow must not wedge the worker.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type verifyRequest struct {
	UserID   string `json:"user_id"`
	PhotoURL string `json:"photo_url"`
}

// VerifyAvatar submits an avatar photo for face verification.
func (c *Client) VerifyAvatar(ctx context.Context, userID uuid.UUID, photoURL string) (*Result, error) {
	body, err := json.Marshal(verifyRequest{UserID: userID.String(), PhotoURL: photoURL})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verification call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verification status: %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("verification result",
		zap.String("user_id", userID.String()),
		zap.Bool("verified", result.Verified),
		zap.Float64("confidence", result.Confidence))
	return &result, nil
}
