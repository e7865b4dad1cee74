// Package vision provides a client for the object detection service.
// Cameras treat the detector as optional: any error here degrades the
// pipeline to motion-only scoring instead of failing the tick.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ursa-watch/ursa/pkg/messages"
)

// Client is an HTTP client for the detection service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a detection service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// detectRequest is the input payload for a detection call.
type detectRequest struct {
	CameraID string `json:"camera_id"`
	FrameRef string `json:"frame_ref"`
}

// detectResponse is the detector's answer.
type detectResponse struct {
	Objects []messages.DetectedObject `json:"objects"`
}

// Detect runs object detection on the referenced frame. A nil error
// with an empty slice means the detector ran and saw nothing.
func (c *Client) Detect(ctx context.Context, cameraID, frameRef string) ([]messages.DetectedObject, error) {
	reqBody, err := json.Marshal(detectRequest{CameraID: cameraID, FrameRef: frameRef})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detect request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/detect", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read detection response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection service returned %d: %s", resp.StatusCode, string(body))
	}

	var result detectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse detection response: %w", err)
	}

	if result.Objects == nil {
		result.Objects = []messages.DetectedObject{}
	}
	return result.Objects, nil
}

// Health checks whether the detection service is reachable.
func (c *Client) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("detection service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
