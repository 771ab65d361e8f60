package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SFUClient talks to the external media-relay process. One call: tear down
// the relay router for a room's channel when the room dies.
type SFUClient struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewSFUClient(baseURL, secret string) *SFUClient {
	return &SFUClient{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SFUClient) DeleteRouter(ctx context.Context, channelID string) error {
	body, err := json.Marshal(map[string]string{"secret": c.secret})
	if err != nil {
		return fmt.Errorf("marshal relay secret: %w", err)
	}

	url := fmt.Sprintf("%s/router/delete/%s", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay teardown: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("relay teardown: unexpected status %d", resp.StatusCode)
	}
	return nil
}
